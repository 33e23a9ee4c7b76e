// Package answer pulls shell commands and alias definitions out of model
// answers.
package answer

import "strings"

const fence = "```"

var shellLangs = map[string]bool{
	"sh":      true,
	"bash":    true,
	"zsh":     true,
	"shell":   true,
	"console": true,
}

// ExtractCommands returns the commands in text in order of first appearance.
// Every line of a fenced block tagged with a shell language counts, except
// comments. Elsewhere only "$ " and "> " prompt lines do.
func ExtractCommands(text string) []string {
	var (
		commands []string
		seen     = map[string]bool{}
		inBlock  bool
		shell    bool
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if tag, ok := strings.CutPrefix(line, fence); ok {
			if inBlock {
				inBlock, shell = false, false
			} else {
				inBlock, shell = true, shellLangs[strings.ToLower(strings.TrimSpace(tag))]
			}
			continue
		}

		cmd, ok := promptCommand(line)
		if !ok && shell && line != "" && !strings.HasPrefix(line, "#") {
			cmd, ok = line, true
		}
		if !ok || cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		commands = append(commands, cmd)
	}
	return commands
}

func promptCommand(line string) (string, bool) {
	for _, prefix := range []string{"$ ", "> "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
