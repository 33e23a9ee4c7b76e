// Package history reconstructs logical shell history entries from a history
// log by reading it backwards from the end.
package history

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

const (
	// DefaultDelimiter separates the metadata prefix of a boundary line from
	// the command text, as in zsh extended history (": 1700000000:0;ls").
	DefaultDelimiter = ';'

	// DefaultMaxLinesPerEntry caps the physical lines gathered for one entry.
	DefaultMaxLinesPerEntry = 1000
)

// Format selects how physical lines are grouped into entries.
type Format string

const (
	// FormatExtended groups continuation lines under the preceding boundary
	// line that carries the delimiter.
	FormatExtended Format = "extended"
	// FormatPlain treats every physical line as its own entry.
	FormatPlain Format = "plain"
)

// ParseFormat maps a config value onto a Format. Unknown values are rejected.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatExtended:
		return FormatExtended, nil
	case FormatPlain:
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("unknown history format %q", s)
	}
}

// Segmenter turns a reverse scan of a history log into logical entries.
// The zero value uses the default delimiter, extended format and line cap.
type Segmenter struct {
	Delimiter        byte
	Format           Format
	MaxLinesPerEntry int
	ChunkSize        int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithFormat sets the grouping format.
func WithFormat(f Format) Option {
	return func(s *Segmenter) { s.Format = f }
}

// WithMaxLinesPerEntry sets the physical line cap for a single entry.
func WithMaxLinesPerEntry(n int) Option {
	return func(s *Segmenter) { s.MaxLinesPerEntry = n }
}

// WithChunkSize sets the backward read chunk size.
func WithChunkSize(n int) Option {
	return func(s *Segmenter) { s.ChunkSize = n }
}

// NewSegmenter returns a Segmenter with defaults applied, then opts.
func NewSegmenter(opts ...Option) Segmenter {
	s := Segmenter{
		Delimiter:        DefaultDelimiter,
		Format:           FormatExtended,
		MaxLinesPerEntry: DefaultMaxLinesPerEntry,
		ChunkSize:        DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Segmenter) delimiter() byte {
	if s.Delimiter == 0 {
		return DefaultDelimiter
	}
	return s.Delimiter
}

func (s Segmenter) maxLines() int {
	if s.MaxLinesPerEntry <= 0 {
		return DefaultMaxLinesPerEntry
	}
	return s.MaxLinesPerEntry
}

// Extract returns up to maxEntries of the most recent entries in src, the
// oldest of the batch first and the last entry of the log last. A log with
// fewer boundaries yields a shorter result without error.
func (s Segmenter) Extract(src io.ReadSeeker, maxEntries int) ([]string, error) {
	if maxEntries <= 0 {
		return []string{}, nil
	}

	rr := NewReverseReader(src, s.ChunkSize)
	entries := make([]string, 0, maxEntries)

	for len(entries) < maxEntries {
		entry, ok, err := s.next(rr)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, entry)
	}

	slices.Reverse(entries)
	return entries, nil
}

// ExtractAll segments src completely, oldest entry first.
func (s Segmenter) ExtractAll(src io.ReadSeeker) ([]string, error) {
	rr := NewReverseReader(src, s.ChunkSize)
	var entries []string
	for {
		entry, ok, err := s.next(rr)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	slices.Reverse(entries)
	return entries, nil
}

// next assembles one entry. ok is false once the source is exhausted before
// a boundary line is found; fragments gathered up to that point are dropped.
func (s Segmenter) next(rr *ReverseReader) (string, bool, error) {
	var collected []string
	limit := s.maxLines()
	delim := s.delimiter()

	for {
		line, err := rr.ReadLine()
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}

		if s.Format == FormatPlain {
			return line, true, nil
		}

		if i := strings.IndexByte(line, delim); i >= 0 {
			collected = append(collected, line[i+1:])
			break
		}

		collected = append(collected, line)
		if len(collected) >= limit {
			return "", false, fmt.Errorf("%w: no %q within %d lines", ErrMalformedRecord, delim, limit)
		}
	}

	slices.Reverse(collected)
	return strings.Join(collected, ""), true, nil
}

// ReadFile opens path and returns its last n entries.
func ReadFile(path string, n int, opts ...Option) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()

	return NewSegmenter(opts...).Extract(f, n)
}
