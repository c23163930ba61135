// Package retention removes old rotated segments on a schedule so an
// output root does not grow without bound.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/szaher/simstream/internal/writer"
)

// Options configures a Pruner.
type Options struct {
	// OutputRoot holds one subdirectory per simulation.
	OutputRoot string
	// MaxAge removes rotated segments with a modification time older
	// than this. Zero disables the age rule.
	MaxAge time.Duration
	// MaxSegments keeps at most this many rotated segments per
	// simulation, newest first. Zero disables the count rule.
	MaxSegments int
	// Schedule is a cron expression for the background sweep. Default
	// "@hourly".
	Schedule string
	// Logger receives per-file diagnostics. Default slog.Default().
	Logger *slog.Logger
	// Clock is injectable for tests. Default time.Now.
	Clock func() time.Time
}

// Pruner sweeps rotated segments. The canonical segment is never touched:
// only the writer retires it, via rotation.
type Pruner struct {
	root        string
	maxAge      time.Duration
	maxSegments int
	schedule    string
	logger      *slog.Logger
	clock       func() time.Time
	cron        *cron.Cron
}

// NewPruner creates a pruner. Call PruneOnce for a one-shot sweep or Start
// for the scheduled background sweep.
func NewPruner(opts Options) (*Pruner, error) {
	if opts.OutputRoot == "" {
		return nil, fmt.Errorf("retention: OutputRoot is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "@hourly"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pruner{
		root:        opts.OutputRoot,
		maxAge:      opts.MaxAge,
		maxSegments: opts.MaxSegments,
		schedule:    opts.Schedule,
		logger:      opts.Logger,
		clock:       opts.Clock,
	}, nil
}

// Start schedules the background sweep. Returns an error only for an
// invalid cron expression.
func (p *Pruner) Start() error {
	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		removed, err := p.PruneOnce()
		if err != nil {
			p.logger.Warn("retention sweep failed", "error", err)
			return
		}
		if removed > 0 {
			p.logger.Info("retention sweep", "removed_segments", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", p.schedule, err)
	}
	c.Start()
	p.cron = c
	return nil
}

// Stop halts the background sweep, waiting for a running one to finish.
func (p *Pruner) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// PruneOnce applies the age and count rules to every simulation directory
// under the root. Per-file removal failures are logged and skipped; the
// sweep keeps going.
func (p *Pruner) PruneOnce() (int, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("retention: scan output root: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		removed += p.pruneSimulation(filepath.Join(p.root, entry.Name()))
	}
	return removed, nil
}

type segment struct {
	path    string
	modTime time.Time
}

func (p *Pruner) pruneSimulation(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		p.logger.Warn("skipping unreadable simulation directory", "dir", dir, "error", err)
		return 0
	}

	var rotated []segment
	for _, entry := range entries {
		if entry.IsDir() || !writer.IsRotatedSegment(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rotated = append(rotated, segment{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	// Rotated names embed their timestamp, so name order is age order,
	// oldest first.
	sort.Slice(rotated, func(i, j int) bool { return rotated[i].path < rotated[j].path })

	doomed := make(map[string]bool)
	if p.maxAge > 0 {
		cutoff := p.clock().Add(-p.maxAge)
		for _, seg := range rotated {
			if seg.modTime.Before(cutoff) {
				doomed[seg.path] = true
			}
		}
	}
	if p.maxSegments > 0 && len(rotated) > p.maxSegments {
		for _, seg := range rotated[:len(rotated)-p.maxSegments] {
			doomed[seg.path] = true
		}
	}

	removed := 0
	for _, seg := range rotated {
		if !doomed[seg.path] {
			continue
		}
		if err := os.Remove(seg.path); err != nil {
			p.logger.Warn("removing segment", "segment", seg.path, "error", err)
			continue
		}
		removed++
	}
	return removed
}
