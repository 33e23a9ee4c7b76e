package answer

import (
	"fmt"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Alias is one suggested shell alias.
type Alias struct {
	Name    string
	Command string
}

// String renders the alias as a shell definition with the command quoted.
func (a Alias) String() string {
	return fmt.Sprintf("alias %s=%s", a.Name, shellescape.Quote(a.Command))
}

var aliasRe = regexp.MustCompile(`^(?:\$\s+)?alias\s+([A-Za-z0-9_.:+-]+)=(.+)$`)

// ExtractAliases returns the alias definitions in text, keeping the first
// definition of each name. Backticks and list markers around a line are
// ignored.
func ExtractAliases(text string) []Alias {
	aliases := []Alias{}
	seen := map[string]struct{}{}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, "`")

		m := aliasRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		cmd := unquote(strings.TrimSpace(m[2]))
		if cmd == "" {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		aliases = append(aliases, Alias{Name: m[1], Command: cmd})
	}
	return aliases
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
