package history

import (
	"bytes"
	"fmt"
	"io"
	"iter"
)

// DefaultChunkSize is the number of bytes read per backward step.
const DefaultChunkSize = 4096

// ReverseReader yields the physical lines of a seekable source from the last
// line to the first. Each line keeps its trailing line break, except a final
// unterminated line which is returned as-is.
type ReverseReader struct {
	src     io.ReadSeeker
	chunk   int
	pos     int64
	pending []byte
	started bool
	err     error
}

// NewReverseReader creates a ReverseReader over src. A chunkSize <= 0 uses
// DefaultChunkSize.
func NewReverseReader(src io.ReadSeeker, chunkSize int) *ReverseReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReverseReader{src: src, chunk: chunkSize}
}

// ReadLine returns the next line closer to the start of the source. It
// returns io.EOF once every line has been returned.
func (r *ReverseReader) ReadLine() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if !r.started {
		size, err := r.src.Seek(0, io.SeekEnd)
		if err != nil {
			r.err = fmt.Errorf("seek end: %w", err)
			return "", r.err
		}
		r.pos = size
		r.started = true
	}

	for {
		if len(r.pending) == 0 && r.pos == 0 {
			r.err = io.EOF
			return "", io.EOF
		}

		// The last byte of pending is the current line's own terminator (or its
		// last character), so the previous break is searched before it.
		if len(r.pending) > 0 {
			if idx := bytes.LastIndexByte(r.pending[:len(r.pending)-1], '\n'); idx >= 0 {
				line := string(r.pending[idx+1:])
				r.pending = r.pending[:idx+1]
				return line, nil
			}
			if r.pos == 0 {
				line := string(r.pending)
				r.pending = r.pending[:0]
				return line, nil
			}
		}

		if err := r.fill(); err != nil {
			r.err = err
			return "", err
		}
	}
}

// fill prepends the chunk that precedes pending in the source.
func (r *ReverseReader) fill() error {
	n := int64(r.chunk)
	if n > r.pos {
		n = r.pos
	}
	r.pos -= n

	if _, err := r.src.Seek(r.pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek %d: %w", r.pos, err)
	}
	buf := make([]byte, int(n), int(n)+len(r.pending))
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return fmt.Errorf("read %d bytes at %d: %w", n, r.pos, err)
	}
	r.pending = append(buf, r.pending...)
	return nil
}

// Lines returns the remaining lines as a single-use sequence. Iteration stops
// at the start of the source; any other error is yielded once.
func (r *ReverseReader) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := r.ReadLine()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}
