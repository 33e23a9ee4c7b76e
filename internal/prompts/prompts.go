// Package prompts renders the request prompts sent to the model.
package prompts

import (
	"strings"
	"text/template"
)

var (
	explanationVerbose = template.Must(template.New("explanation_verbose").Parse(`Help explain the following in simple english.
It is likely a unix / powershell command.
Explain what it does, how to use it, and 1-2 short examples.

Here are some examples:
Question)
ls | grep match

Answer)
The command 'ls | grep match' lists non-hidden files and folders in the current directory, filtered to those that contain the search term 'match'. We can use this command to search for files in the current directory, for example, 'ls | grep example', will find files or folders containing example.

Question)
rm -rf dir

Answer)
The command 'rm -rf dir' will remove the file 'dir', or if 'dir' is a folder, it will recursively delete the contents of the folder. The 'r' flag is for recursively deleting contents, and the 'f' flag is for force, meaning it will not ask for confirmation. We can use this command to delete a folder / file without having to be asked for confirmation. For example 'rm -rf git-repo' will delete 'git-repo', without us having to provide any confirmation.

Question)
{{.Query}}

Answer)
`))

	explanationShort = template.Must(template.New("explanation").Parse(`Help explain the following in simple english.
It is likely a unix / powershell command.
Explain what it does.

Here is the concept / command:
{{.Query}}
`))

	suggestion = template.Must(template.New("suggestion").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(`Given the terminal history of the user, along with their current aliases, please provide suggestions for new aliases to help speed up their workflows.
Write each suggested alias on its own line in the form: alias name='command'

History:
{{range $i, $e := .History}}line {{inc $i}}: {{$e}}{{end}}
Aliases:
{{.Aliases}}
`))

	summary = template.Must(template.New("summary").Parse(`Given the contents of a file please provide a summary. The user may then ask questions regarding the file's contents.

file content:
{{.Contents}}
`))

	chatGreeting = `You are an AI assistant for the terminal, commonly referred to as 'her'. The user is likely to ask about help with unix / powershell commands, or programming related content.`
)

func render(t *template.Template, data any) string {
	var b strings.Builder
	// Templates are fixed and the data is plain strings; Execute cannot fail.
	_ = t.Execute(&b, data)
	return b.String()
}

// Explanation asks the model to explain a command or concept.
func Explanation(query string, verbose bool) string {
	data := struct{ Query string }{Query: query}
	if verbose {
		return render(explanationVerbose, data)
	}
	return render(explanationShort, data)
}

// Suggestion asks for alias ideas from recent history entries and the
// user's current aliases. Entries keep their own trailing line breaks.
func Suggestion(history []string, aliases string) string {
	return render(suggestion, struct {
		History []string
		Aliases string
	}{History: history, Aliases: aliases})
}

// Summary asks for a summary of file contents.
func Summary(contents string) string {
	return render(summary, struct{ Contents string }{Contents: contents})
}

// Chat returns the system prompt opening a conversation.
func Chat(input []string) string {
	if len(input) == 0 {
		return chatGreeting + " Please greet the user."
	}
	return chatGreeting + "\nHere is the user's first input:\n" + strings.Join(input, " ")
}
