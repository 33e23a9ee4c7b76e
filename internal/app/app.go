// Package app implements the her commands on top of the history, prompt,
// session and llm packages.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/her/internal/config"
	"github.com/ZanzyTHEbar/her/internal/history"
	"github.com/ZanzyTHEbar/her/internal/llm"
	"github.com/ZanzyTHEbar/her/internal/session"
)

// Completer is the part of the llm client the commands need.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	Usage(ctx context.Context, date time.Time) (*llm.UsageReport, error)
}

type App struct {
	cfg      *config.Config
	logger   logrus.FieldLogger
	llm      Completer
	sessions *session.Store
	in       io.Reader
	out      io.Writer

	lines chan string
	start sync.Once
}

type Options struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	LLM      Completer
	Sessions *session.Store
	In       io.Reader
	Out      io.Writer
}

func New(ctx context.Context, opts Options) *App {
	assert.Assert(ctx, opts.Config != nil, "config should not be nil")
	assert.Assert(ctx, opts.LLM != nil, "llm client should not be nil")

	a := &App{
		cfg:      opts.Config,
		logger:   opts.Logger,
		llm:      opts.LLM,
		sessions: opts.Sessions,
		out:      opts.Out,
	}
	if a.logger == nil {
		a.logger = logrus.StandardLogger()
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	a.in = opts.In
	if a.in == nil {
		a.in = os.Stdin
	}
	return a
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}

func (a *App) segmenter() (history.Segmenter, error) {
	format, err := history.ParseFormat(a.cfg.HistoryFormat)
	if err != nil {
		return history.Segmenter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid history_format").
			WithCause(err)
	}
	return history.NewSegmenter(
		history.WithFormat(format),
		history.WithMaxLinesPerEntry(a.cfg.MaxEntryLines),
	), nil
}

// History returns the last n entries of the configured history file.
func (a *App) History(n int) ([]string, error) {
	seg, err := a.segmenter()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(a.cfg.HistoryFile)
	if err != nil {
		return nil, historyError(a.cfg.HistoryFile, fmt.Errorf("%w: %w", history.ErrSourceUnavailable, err))
	}
	defer f.Close()

	entries, err := seg.Extract(f, n)
	if err != nil {
		return nil, historyError(a.cfg.HistoryFile, err)
	}

	a.logger.WithFields(logrus.Fields{
		"path":      a.cfg.HistoryFile,
		"requested": n,
		"found":     len(entries),
	}).Debug("read history")
	return entries, nil
}

func historyError(path string, err error) error {
	switch {
	case errors.Is(err, history.ErrSourceUnavailable):
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("could not read history file " + path).
			WithCause(err)
	case errors.Is(err, history.ErrMalformedRecord):
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("history file " + path + " has no entry delimiters; try history_format = \"plain\"").
			WithCause(err)
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("history extraction failed").
			WithCause(err)
	}
}

// PrintHistory writes the numbered listing of the last n entries. Entries
// keep their own line breaks.
func (a *App) PrintHistory(n int) error {
	entries, err := a.History(n)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		fmt.Fprintf(a.out, "line %d: %s", i+1, entry)
	}
	return nil
}

// FollowHistory prints entries appended to the history file until ctx ends.
func (a *App) FollowHistory(ctx context.Context) error {
	seg, err := a.segmenter()
	if err != nil {
		return err
	}
	a.logger.WithField("path", a.cfg.HistoryFile).Info("following history")
	err = history.Follow(ctx, a.cfg.HistoryFile, seg, func(entry string) error {
		_, werr := io.WriteString(a.out, entry)
		return werr
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return historyError(a.cfg.HistoryFile, err)
	}
	return nil
}

func (a *App) complete(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	start := time.Now()
	answer, err := a.llm.Complete(ctx, messages)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("completion request failed").
			WithCause(err)
	}
	a.logger.WithField("elapsed", time.Since(start).String()).Debug("completion done")
	return strings.TrimSpace(answer), nil
}

// input starts the goroutine that scans a.in on first use. A read blocked
// on a terminal cannot be interrupted, so lines arrive over a channel that
// readLine can stop waiting on.
func (a *App) input() <-chan string {
	a.start.Do(func() {
		a.lines = make(chan string)
		go func() {
			defer close(a.lines)
			sc := newScanner(a.in)
			for sc.Scan() {
				a.lines <- sc.Text()
			}
		}()
	})
	return a.lines
}

// readLine prompts on out and reads one line of input. ok is false at EOF
// or once ctx is done.
func (a *App) readLine(ctx context.Context, prompt string) (string, bool) {
	if prompt != "" {
		fmt.Fprint(a.out, prompt)
	}
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-a.input():
		if !ok {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
}
