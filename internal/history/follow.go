package history

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Follower reports entries appended to a history log after it starts.
//
// Shells may write one entry in several pieces, so Poll only reports bytes
// up to the last complete line. In extended format the newest entry is held
// back until a later boundary line follows it or a poll sees the file
// unchanged.
type Follower struct {
	path     string
	seg      Segmenter
	offset   int64
	lastSize int64
	pending  bool
}

// NewFollower creates a Follower for path positioned at its current end.
func NewFollower(path string, seg Segmenter) (*Follower, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return &Follower{path: path, seg: seg, offset: info.Size(), lastSize: info.Size()}, nil
}

// Offset returns the byte offset up to which entries have been reported.
func (f *Follower) Offset() int64 {
	return f.offset
}

// Poll segments the complete entries appended since the previous call. A
// file that shrank is treated as rotated and read from the start.
func (f *Follower) Poll() ([]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	size := info.Size()
	settled := f.pending && size == f.lastSize
	if size < f.lastSize || size < f.offset {
		f.offset, f.pending, settled = 0, false, false
	}
	f.lastSize = size
	if size == f.offset {
		return nil, nil
	}

	buf, err := io.ReadAll(io.NewSectionReader(file, f.offset, size-f.offset))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	end := bytes.LastIndexByte(buf, '\n') + 1
	if end == 0 {
		return nil, nil
	}
	complete := buf[:end]

	// A partial line carrying the delimiter starts the next entry, so the
	// complete lines before it are final.
	cut := end
	if f.seg.Format != FormatPlain && !settled && bytes.IndexByte(buf[end:], f.seg.delimiter()) < 0 {
		if last := lastBoundary(complete, f.seg.delimiter()); last >= 0 {
			cut = last
		}
	}

	entries, err := f.seg.ExtractAll(bytes.NewReader(complete[:cut]))
	if err != nil {
		return nil, err
	}
	f.offset += int64(cut)
	f.pending = cut < end
	return entries, nil
}

// lastBoundary returns the start of the last line in buf that holds delim,
// or -1 when no line does.
func lastBoundary(buf []byte, delim byte) int {
	i := bytes.LastIndexByte(buf, delim)
	if i < 0 {
		return -1
	}
	return bytes.LastIndexByte(buf[:i], '\n') + 1
}

// SettleInterval is how long the file must stay unwritten before Follow
// reports a held entry.
const SettleInterval = 250 * time.Millisecond

// Follow watches the log at path and calls fn for each entry appended after
// the call, oldest first, until ctx is cancelled or fn returns an error.
func Follow(ctx context.Context, path string, seg Segmenter, fn func(entry string) error) error {
	f, err := NewFollower(path, seg)
	if err != nil {
		return err
	}
	return f.Follow(ctx, fn)
}

// Follow watches the log and calls fn for each appended entry, oldest first,
// until ctx is cancelled or fn returns an error.
func (f *Follower) Follow(ctx context.Context, fn func(entry string) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Shells often rewrite the history file through a rename, so the parent
	// directory is watched rather than the file itself.
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	tick := time.NewTicker(SettleInterval)
	defer tick.Stop()
	var lastWrite time.Time

	emit := func() error {
		entries, err := f.Poll()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if !f.pending || time.Since(lastWrite) < SettleInterval {
				continue
			}
			if err := emit(); err != nil {
				return err
			}
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			lastWrite = time.Now()
			if err := emit(); err != nil {
				return err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", f.path, err)
		}
	}
}
