package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/her/internal/config"
	"github.com/ZanzyTHEbar/her/internal/llm"
	"github.com/ZanzyTHEbar/her/internal/session"
)

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]llm.Message
	usage   *llm.UsageReport
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "ok", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) Usage(context.Context, time.Time) (*llm.UsageReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.usage, nil
}

type harness struct {
	app *App
	llm *fakeLLM
	out *bytes.Buffer
	cfg *config.Config
	log *test.Hook
}

func newHarness(t *testing.T, historyContent, input string) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.APIKey = "sk-test"
	cfg.HistoryFile = filepath.Join(dir, ".zsh_history")
	cfg.HistoryLines = 2
	cfg.SessionDir = filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(cfg.HistoryFile, []byte(historyContent), 0o600))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store, err := session.Open(cfg.SessionDir, session.Options{MaxStoredMessages: 50}, logger)
	require.NoError(t, err)

	fake := &fakeLLM{}
	out := &bytes.Buffer{}
	a := New(context.Background(), Options{
		Config:   cfg,
		Logger:   logger,
		LLM:      fake,
		Sessions: store,
		In:       strings.NewReader(input),
		Out:      out,
	})
	return &harness{app: a, llm: fake, out: out, cfg: cfg, log: hook}
}

// withInput rebuilds the app around the same config, store and fake with a
// new input stream.
func (h *harness) withInput(in io.Reader) {
	h.app = New(context.Background(), Options{
		Config:   h.cfg,
		Logger:   h.app.logger,
		LLM:      h.llm,
		Sessions: h.app.sessions,
		In:       in,
		Out:      h.out,
	})
}

func TestPrintHistory(t *testing.T) {
	h := newHarness(t, "t1;ls -la\nt2;git status\nt3;cd /tmp\n", "")

	require.NoError(t, h.app.PrintHistory(2))
	require.Equal(t, "line 1: git status\nline 2: cd /tmp\n", h.out.String())
}

func TestPrintHistoryShortResult(t *testing.T) {
	h := newHarness(t, "t1;only\n", "")

	require.NoError(t, h.app.PrintHistory(10))
	require.Equal(t, "line 1: only\n", h.out.String())
}

func TestHistoryMissingFile(t *testing.T) {
	h := newHarness(t, "", "")
	h.cfg.HistoryFile = filepath.Join(t.TempDir(), "missing")

	_, err := h.app.History(3)
	require.Error(t, err)
}

func TestHistoryPlainFormat(t *testing.T) {
	h := newHarness(t, "ls\npwd\n", "")
	h.cfg.HistoryFormat = "plain"

	entries, err := h.app.History(5)
	require.NoError(t, err)
	require.Equal(t, []string{"ls\n", "pwd\n"}, entries)
}

func TestHistoryInvalidFormat(t *testing.T) {
	h := newHarness(t, "a;b\n", "")
	h.cfg.HistoryFormat = "fish"

	_, err := h.app.History(1)
	require.Error(t, err)
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t, "t1;ls -la\nt2;git status\nt3;git status\n", "")
	aliases := filepath.Join(t.TempDir(), "aliases")
	require.NoError(t, os.WriteFile(aliases, []byte("alias ll='ls -l'\n"), 0o600))
	h.cfg.AliasesFile = aliases
	h.llm.replies = []string{"You run git status a lot.\nalias gs='git status'\n"}

	require.NoError(t, h.app.Suggestions(context.Background()))

	require.Len(t, h.llm.calls, 1)
	prompt := h.llm.calls[0][0].Content
	require.Contains(t, prompt, "line 1: git status\nline 2: git status\n")
	require.Contains(t, prompt, "alias ll='ls -l'")
	require.Contains(t, h.out.String(), "Suggested aliases:\nalias gs='git status'\n")
}

func TestSuggestionsLogsShortHistory(t *testing.T) {
	h := newHarness(t, "t1;ls\n", "")

	require.NoError(t, h.app.Suggestions(context.Background()))

	var found bool
	for _, entry := range h.log.AllEntries() {
		if entry.Message == "history shorter than requested" {
			found = true
		}
	}
	require.True(t, found)
}

func TestExplainReadsInputWhenEmpty(t *testing.T) {
	h := newHarness(t, "", "tar -xzf x.tgz\n")
	h.llm.replies = []string{"Extracts.\n```bash\ntar -xzf x.tgz\n```"}

	require.NoError(t, h.app.Explain(context.Background(), nil, true))

	require.Contains(t, h.llm.calls[0][0].Content, "Question)\ntar -xzf x.tgz\n")
	require.Contains(t, h.out.String(), "Commands:\n  tar -xzf x.tgz\n")
}

func TestExplainNothingToExplain(t *testing.T) {
	h := newHarness(t, "", "")

	require.Error(t, h.app.Explain(context.Background(), nil, false))
	require.Empty(t, h.llm.calls)
}

func TestChatPersistsConversation(t *testing.T) {
	h := newHarness(t, "", "how do I list files?\nexit\n")
	h.llm.replies = []string{"Hello!", "Use `ls`."}

	require.NoError(t, h.app.Chat(context.Background(), nil, ChatOptions{Persist: true}))
	require.Len(t, h.llm.calls, 2)
	require.Len(t, h.llm.calls[1], 3)

	current, ok := h.app.sessions.Current()
	require.True(t, ok)
	require.Len(t, current.Messages, 4)
	require.Equal(t, "Use `ls`.", current.LastAnswer)

	_, err := os.Stat(filepath.Join(h.cfg.SessionDir, "sessions", current.ID+".json"))
	require.NoError(t, err)
}

func TestChatResume(t *testing.T) {
	h := newHarness(t, "", "")
	h.llm.replies = []string{"Hello!"}
	require.NoError(t, h.app.Chat(context.Background(), []string{"hi"}, ChatOptions{Persist: true}))

	h.withInput(strings.NewReader("again\n"))
	h.llm.replies = []string{"Welcome back"}
	require.NoError(t, h.app.Chat(context.Background(), nil, ChatOptions{Resume: true}))

	require.Contains(t, h.out.String(), "Resumed Session")
	last := h.llm.calls[len(h.llm.calls)-1]
	require.Len(t, last, 3)
	require.Equal(t, "again", last[2].Content)
}

func TestChatReturnsWhenCancelledWaitingForInput(t *testing.T) {
	h := newHarness(t, "", "")
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	h.withInput(pr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.app.Chat(ctx, nil, ChatOptions{})
	}()

	require.Eventually(t, func() bool {
		return h.llm.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat kept waiting for input after cancel")
	}
}

func TestChatCompletionError(t *testing.T) {
	h := newHarness(t, "", "")
	h.llm.err = errors.New("boom")

	require.Error(t, h.app.Chat(context.Background(), []string{"hi"}, ChatOptions{}))
}

func TestSummarize(t *testing.T) {
	h := newHarness(t, "", "what is line two?\n")
	file := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("line one\nline two\n"), 0o600))
	h.llm.replies = []string{"Two lines.", "It says line two."}

	require.NoError(t, h.app.Summarize(context.Background(), file))
	require.Contains(t, h.llm.calls[0][0].Content, "file content:\nline one\nline two\n")
	require.Contains(t, h.out.String(), "It says line two.")
}

func TestSummarizeMissingFile(t *testing.T) {
	h := newHarness(t, "", "")
	require.Error(t, h.app.Summarize(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestUsage(t *testing.T) {
	h := newHarness(t, "", "")
	h.llm.usage = &llm.UsageReport{Object: "list"}

	require.NoError(t, h.app.Usage(context.Background(), time.Now()))
	require.Contains(t, h.out.String(), `"object": "list"`)
}

func TestFollowHistoryStopsOnCancel(t *testing.T) {
	h := newHarness(t, "t1;ls\n", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.app.FollowHistory(ctx))
}
