package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExplanation(t *testing.T) {
	short := Explanation("tar -xzf a.tgz", false)
	require.True(t, strings.HasSuffix(short, "Here is the concept / command:\ntar -xzf a.tgz\n"))
	require.NotContains(t, short, "Question)")

	verbose := Explanation("tar -xzf a.tgz", true)
	require.Contains(t, verbose, "Question)\ntar -xzf a.tgz\n\nAnswer)\n")
	require.Contains(t, verbose, "ls | grep match")
}

func TestSuggestionNumbersHistory(t *testing.T) {
	got := Suggestion([]string{"git status\n", "cd /tmp\n"}, "alias ll='ls -l'")

	require.Contains(t, got, "History:\nline 1: git status\nline 2: cd /tmp\n\nAliases:\nalias ll='ls -l'\n")
}

func TestSuggestionEmptyHistory(t *testing.T) {
	got := Suggestion(nil, "")
	require.Contains(t, got, "History:\n\nAliases:\n\n")
}

func TestSummary(t *testing.T) {
	require.True(t, strings.HasSuffix(Summary("hello"), "file content:\nhello\n"))
}

func TestChat(t *testing.T) {
	require.True(t, strings.HasSuffix(Chat(nil), "Please greet the user."))
	require.True(t, strings.HasSuffix(Chat([]string{"how", "do", "I"}), "first input:\nhow do I"))
}
