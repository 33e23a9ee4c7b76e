package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, historyContent string) string {
	t.Helper()
	dir := t.TempDir()
	hist := filepath.Join(dir, "history")
	require.NoError(t, os.WriteFile(hist, []byte(historyContent), 0o600))

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"history_file = \""+hist+"\"\n"+
			"history_lines = 2\n"+
			"session_dir = \""+filepath.Join(dir, "state")+"\"\n"), 0o600))
	return path
}

func TestHistoryCommand(t *testing.T) {
	path := writeConfig(t, "t1;ls -la\nt2;git status\nt3;cd /tmp\n")

	out, err := runCmd(t, "--config", path, "history")
	require.NoError(t, err)
	require.Equal(t, "line 1: git status\nline 2: cd /tmp\n", out)

	out, err = runCmd(t, "--config", path, "history", "-n", "3")
	require.NoError(t, err)
	require.Equal(t, "line 1: ls -la\nline 2: git status\nline 3: cd /tmp\n", out)
}

func TestHistoryCommandPlainFlag(t *testing.T) {
	path := writeConfig(t, "ls\npwd\n")

	out, err := runCmd(t, "--config", path, "--history-format", "plain", "history", "-n", "1")
	require.NoError(t, err)
	require.Equal(t, "line 1: pwd\n", out)
}

func TestSuggestionsRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, "t1;ls\n")
	t.Setenv("HER_API_KEY", "")

	_, err := runCmd(t, "--config", path, "suggestions")
	require.Error(t, err)
}

func TestConfigInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "her", "config.toml")

	out, err := runCmd(t, "--config", path, "config", "init")
	require.NoError(t, err)
	require.Equal(t, path+"\n", out)

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = runCmd(t, "--config", path, "config", "init")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	require.Equal(t, version+"\n", out)
}
