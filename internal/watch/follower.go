// Package watch tails a live simulation's event log.
//
// A Follower watches the simulation directory with fsnotify and reads newly
// appended lines from the canonical segment, surviving rotation by
// re-opening the fresh canonical file. It is a pure reader and tolerates a
// partially written trailing line by holding it until the next write
// completes it.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/writer"
)

// Handler receives each event in file order.
type Handler func(*event.Event)

// Follower delivers events appended to a simulation's canonical segment.
type Follower struct {
	dir     string
	handler Handler
	logger  *slog.Logger

	offset  int64
	partial []byte
}

// NewFollower creates a follower over a simulation's log directory.
func NewFollower(dir string, handler Handler, logger *slog.Logger) (*Follower, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{dir: dir, handler: handler, logger: logger}, nil
}

// Run delivers the segment's existing events, then blocks following new
// appends until ctx is done. Events written to the old file in the instant
// between our last read and its rotation are not re-read; follow mode is a
// live view, the query service is the authoritative one.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	f.readAppended()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != writer.CurrentSegment {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// Rotation: a fresh canonical file replaced the
				// one we were reading.
				f.offset = 0
				f.partial = nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				f.readAppended()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watch error", "dir", f.dir, "error", err)
		}
	}
}

// readAppended reads everything past the remembered offset and delivers the
// complete lines. Best-effort: any failure leaves the offset alone for the
// next notification.
func (f *Follower) readAppended() {
	path := filepath.Join(f.dir, writer.CurrentSegment)
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return
	}
	if fi.Size() < f.offset {
		// The file shrank: rotation happened between notifications.
		f.offset = 0
		f.partial = nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		f.logger.Warn("reading segment", "segment", path, "error", err)
		return
	}
	f.offset += int64(len(data))

	f.partial = append(f.partial, data...)
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			return
		}
		line := bytes.TrimSpace(f.partial[:i])
		f.partial = f.partial[i+1:]
		if len(line) == 0 {
			continue
		}
		e, err := event.Parse(line)
		if err != nil {
			f.logger.Debug("skipping unparsable line", "segment", path, "error", err)
			continue
		}
		f.handler(e)
	}
}
