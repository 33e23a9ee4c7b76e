// Package session persists chat conversations between runs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/her/internal/llm"
)

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Persistent   bool      `json:"persistent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	System       string    `json:"system,omitempty"`
	Messages     []Message `json:"messages"`
	LastAnswer   string    `json:"last_answer"`
	LastCommands []string  `json:"last_commands"`
	LastError    string    `json:"last_error"`
}

// Append records a message and bumps UpdatedAt.
func (s *Session) Append(role, content string) {
	now := time.Now()
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Time: now})
	if role == llm.RoleAssistant {
		s.LastAnswer = content
		s.LastError = ""
	}
	s.UpdatedAt = now
}

// Context returns the system prompt followed by at most n of the latest
// messages, ready for a completion request. n <= 0 includes every message.
func (s *Session) Context(n int) []llm.Message {
	history := s.Messages
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	out := make([]llm.Message, 0, len(history)+1)
	if s.System != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: s.System})
	}
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

type state struct {
	CurrentSessionID string `json:"current_session_id"`
}

type Options struct {
	MaxStoredMessages int
	MaxSessions       int
}

// Store keeps persistent sessions as one JSON file each under dir.
type Store struct {
	dir    string
	opts   Options
	logger logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*Session
	state    state
}

// Open loads the sessions stored under dir. Unreadable files are skipped.
func Open(dir string, opts Options, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		dir:      dir,
		opts:     opts,
		logger:   logger,
		sessions: map[string]*Session{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sessionsDir() string {
	return filepath.Join(s.dir, "sessions")
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir(), fmt.Sprintf("%s.json", id))
}

func (s *Store) statePath() string {
	return filepath.Join(s.dir, "state.json")
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read sessions dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.sessionsDir(), entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("failed to read session")
			continue
		}
		var session Session
		if err := json.Unmarshal(content, &session); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("failed to parse session")
			continue
		}
		if session.ID == "" {
			continue
		}
		session.Persistent = true
		s.sessions[session.ID] = &session
	}

	if content, err := os.ReadFile(s.statePath()); err == nil {
		if err := json.Unmarshal(content, &s.state); err != nil {
			s.logger.WithError(err).Warn("failed to parse state")
		}
	}
	return nil
}

// New creates a session. Persistent sessions are tracked by the store and
// written on Save; others live only in memory.
func (s *Store) New(persistent bool) *Session {
	now := time.Now()
	session := &Session{
		ID:         uuid.NewString(),
		Name:       fmt.Sprintf("Session %s", now.Format("2006-01-02 15:04")),
		Persistent: persistent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if persistent {
		s.mu.Lock()
		s.sessions[session.ID] = session
		s.mu.Unlock()
	}
	return session
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// List returns persistent sessions, most recently updated first.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result
}

// Current returns the session selected by SetCurrent, if it still exists.
func (s *Store) Current() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[s.state.CurrentSessionID]
	return session, ok
}

func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s not found", id)
	}
	s.state.CurrentSessionID = id
	return s.writeJSON(s.statePath(), s.state)
}

// Save prunes old messages and writes a persistent session. Sessions beyond
// MaxSessions are removed oldest first.
func (s *Store) Save(session *Session) error {
	if session == nil || !session.Persistent {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit := s.opts.MaxStoredMessages; limit > 0 && len(session.Messages) > limit {
		session.Messages = session.Messages[len(session.Messages)-limit:]
	}
	s.sessions[session.ID] = session

	if err := s.writeJSON(s.sessionPath(session.ID), session); err != nil {
		return err
	}
	s.pruneLocked()
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return nil
	}
	delete(s.sessions, id)
	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	if s.state.CurrentSessionID == id {
		s.state.CurrentSessionID = ""
		return s.writeJSON(s.statePath(), s.state)
	}
	return nil
}

func (s *Store) pruneLocked() {
	limit := s.opts.MaxSessions
	if limit <= 0 || len(s.sessions) <= limit {
		return
	}

	type pair struct {
		id   string
		time time.Time
	}
	list := make([]pair, 0, len(s.sessions))
	for id, session := range s.sessions {
		list = append(list, pair{id: id, time: session.UpdatedAt})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].time.Before(list[j].time)
	})

	for _, p := range list[:len(list)-limit] {
		if err := os.Remove(s.sessionPath(p.id)); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("session", p.id).Warn("failed to prune session")
		}
		delete(s.sessions, p.id)
		if s.state.CurrentSessionID == p.id {
			s.state.CurrentSessionID = ""
		}
	}
}

func (s *Store) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
