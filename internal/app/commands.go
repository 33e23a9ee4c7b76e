package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/her/internal/answer"
	"github.com/ZanzyTHEbar/her/internal/llm"
	"github.com/ZanzyTHEbar/her/internal/prompts"
	"github.com/ZanzyTHEbar/her/internal/session"
)

// Suggestions sends recent history and current aliases to the model and
// prints its alias ideas.
func (a *App) Suggestions(ctx context.Context) error {
	entries, err := a.History(a.cfg.HistoryLines)
	if err != nil {
		return err
	}
	if len(entries) < a.cfg.HistoryLines {
		a.logger.WithFields(logrus.Fields{
			"requested": a.cfg.HistoryLines,
			"found":     len(entries),
		}).Info("history shorter than requested")
	}

	aliases, err := a.readAliases()
	if err != nil {
		return err
	}

	reply, err := a.complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompts.Suggestion(entries, aliases)},
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, reply)
	if suggested := answer.ExtractAliases(reply); len(suggested) > 0 {
		fmt.Fprintln(a.out, "\nSuggested aliases:")
		for _, alias := range suggested {
			fmt.Fprintln(a.out, alias.String())
		}
	}
	return nil
}

func (a *App) readAliases() (string, error) {
	if a.cfg.AliasesFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(a.cfg.AliasesFile)
	if err != nil {
		if os.IsNotExist(err) {
			a.logger.WithField("path", a.cfg.AliasesFile).Warn("aliases file not found")
			return "", nil
		}
		return "", errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("could not read aliases file " + a.cfg.AliasesFile).
			WithCause(err)
	}
	return string(b), nil
}

// Explain asks the model to explain a command or concept. With no input the
// user is asked for one.
func (a *App) Explain(ctx context.Context, input []string, verbose bool) error {
	query := strings.TrimSpace(strings.Join(input, " "))
	if query == "" {
		line, ok := a.readLine(ctx, "What would you like explained? ")
		if !ok || line == "" {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("nothing to explain")
		}
		query = line
	}

	reply, err := a.complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompts.Explanation(query, verbose)},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, reply)
	if verbose {
		if commands := answer.ExtractCommands(reply); len(commands) > 0 {
			fmt.Fprintln(a.out, "\nCommands:")
			for _, cmd := range commands {
				fmt.Fprintln(a.out, "  "+cmd)
			}
		}
	}
	return nil
}

// Summarize summarises a file, then answers follow-up questions about it
// until the input ends.
func (a *App) Summarize(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("unable to open file " + path).
			WithCause(err)
	}
	a.logger.WithFields(logrus.Fields{"path": path, "bytes": len(b)}).Debug("summarizing file")

	s := a.newSession(false)
	return a.converse(ctx, s, prompts.Summary(string(b)))
}

// ChatOptions selects the session a chat runs in.
type ChatOptions struct {
	Persist bool
	Resume  bool
}

// Chat opens an interactive conversation, optionally seeded with input.
func (a *App) Chat(ctx context.Context, input []string, opts ChatOptions) error {
	var s *session.Session
	if opts.Resume && a.sessions != nil {
		if current, ok := a.sessions.Current(); ok {
			s = current
			a.logger.WithField("session", s.ID).Info("resuming session")
		}
	}
	if s == nil {
		s = a.newSession(opts.Persist)
	}

	if len(s.Messages) > 0 {
		fmt.Fprintf(a.out, "Resumed %s (%d messages)\n", s.Name, len(s.Messages))
		return a.converse(ctx, s, "")
	}
	return a.converse(ctx, s, prompts.Chat(input))
}

func (a *App) newSession(persist bool) *session.Session {
	if a.sessions == nil {
		now := time.Now()
		return &session.Session{Name: "Session", CreatedAt: now, UpdatedAt: now}
	}
	s := a.sessions.New(persist)
	if persist {
		if err := a.sessions.SetCurrent(s.ID); err != nil {
			a.logger.WithError(err).Warn("failed to select session")
		}
	}
	return s
}

// converse sends opening (when set) and then one message per input line.
// "exit", "quit", end of input or a done ctx stop the loop.
func (a *App) converse(ctx context.Context, s *session.Session, opening string) error {
	if opening != "" {
		if err := a.turn(ctx, s, opening); err != nil {
			return interrupted(ctx, err)
		}
	}

	for {
		line, ok := a.readLine(ctx, ">>> ")
		if !ok {
			fmt.Fprintln(a.out)
			return nil
		}
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := a.turn(ctx, s, line); err != nil {
			return interrupted(ctx, err)
		}
	}
}

// interrupted drops err when it was caused by the user ending the session.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) turn(ctx context.Context, s *session.Session, content string) error {
	s.Append(llm.RoleUser, content)

	reply, err := a.complete(ctx, s.Context(a.cfg.MaxContextMessages))
	if err != nil {
		s.LastError = err.Error()
		a.save(s)
		return err
	}

	s.Append(llm.RoleAssistant, reply)
	s.LastCommands = answer.ExtractCommands(reply)
	a.save(s)
	fmt.Fprintln(a.out, reply)
	return nil
}

func (a *App) save(s *session.Session) {
	if a.sessions == nil {
		return
	}
	if err := a.sessions.Save(s); err != nil {
		a.logger.WithError(err).WithField("session", s.ID).Warn("failed to save session")
	}
}

// Usage prints the usage report for date.
func (a *App) Usage(ctx context.Context, date time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	report, err := a.llm.Usage(ctx, date)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to get usage").
			WithCause(err)
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode usage").
			WithCause(err)
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}
