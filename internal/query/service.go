// Package query implements the read side of the event log: segment
// discovery, filtering, pagination, and causality traversal.
//
// The service is stateless per call. Every query re-scans the simulation's
// directory, so it can run concurrently with an active writer; a partially
// written trailing line in the current segment is skipped like any other
// unparsable line.
package query

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/writer"
)

// scanParallelism bounds how many segments are parsed at once.
const scanParallelism = 4

// maxLineSize is the scanner buffer cap for one JSONL line.
const maxLineSize = 4 * 1024 * 1024

// Service answers queries over an output root written by event writers.
type Service struct {
	root   string
	logger *slog.Logger
}

// NewService creates a read-side service over the given output root.
func NewService(root string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{root: root, logger: logger}
}

// SimulationInfo summarizes one simulation's log directory.
type SimulationInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	EventCount int       `json:"event_count"`
}

// Page is one slice of a filtered, sorted event query.
type Page struct {
	Events  []*event.Event `json:"events"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// ListSimulations scans the output root's immediate subdirectories. A
// directory qualifies if it holds at least one segment file. Malformed or
// unreadable files reduce the summary, never fail it.
func (s *Service) ListSimulations(ctx context.Context) ([]SimulationInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan output root: %w", err)
	}

	var sims []SimulationInfo
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		segments := segmentPaths(dir)
		if len(segments) == 0 {
			continue
		}
		info := SimulationInfo{ID: entry.Name(), Name: entry.Name()}
		for _, p := range segments {
			info.EventCount += countLines(p)
		}
		if first := firstEvent(segments, s.logger); first != nil {
			info.StartTime = first.Timestamp
			if name, ok := first.Details["name"].(string); ok && name != "" {
				info.Name = name
			}
		}
		sims = append(sims, info)
	}
	return sims, nil
}

// Events returns the filtered, sorted, paginated events of a simulation.
// A missing simulation yields an empty page; only a malformed Where
// expression is an error.
func (s *Service) Events(ctx context.Context, simulationID string, filter Filter) (*Page, error) {
	program, err := filter.compileWhere()
	if err != nil {
		return nil, err
	}
	filter.normalize()

	all, err := s.loadEvents(ctx, simulationID)
	if err != nil {
		return nil, err
	}

	matched := all[:0:0]
	for _, e := range all {
		if filter.matches(e, program) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return &Page{
		Events:  matched[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// EventByID finds one event by id. Returns (nil, nil) when absent; ids are
// expected unique, so the first match in sorted order is authoritative.
func (s *Service) EventByID(ctx context.Context, simulationID, eventID string) (*event.Event, error) {
	all, err := s.loadEvents(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.EventID == eventID {
			return e, nil
		}
	}
	return nil, nil
}

// Tail returns the last n events of a simulation in sorted order.
func (s *Service) Tail(ctx context.Context, simulationID string, n int) ([]*event.Event, error) {
	all, err := s.loadEvents(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// loadEvents reads every segment of a simulation, in parallel, skipping
// unreadable files and unparsable lines, and returns the events sorted by
// (timestamp, event_id) so the order never depends on file layout.
func (s *Service) loadEvents(ctx context.Context, simulationID string) ([]*event.Event, error) {
	dir := filepath.Join(s.root, simulationID)
	segments := segmentPaths(dir)
	if len(segments) == 0 {
		return nil, nil
	}

	var (
		mu  sync.Mutex
		all []*event.Event
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for _, path := range segments {
		g.Go(func() error {
			events := readSegment(path, s.logger)
			mu.Lock()
			all = append(all, events...)
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortEvents(all)
	return all, nil
}

// segmentPaths lists the simulation's segment files, rotated ones first in
// name order (chronological), the canonical segment last. Errors collapse
// to "no segments": a missing directory is an empty result, not a failure.
func segmentPaths(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var rotated []string
	hasCurrent := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch {
		case entry.Name() == writer.CurrentSegment:
			hasCurrent = true
		case writer.IsRotatedSegment(entry.Name()):
			rotated = append(rotated, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(rotated)
	if hasCurrent {
		rotated = append(rotated, filepath.Join(dir, writer.CurrentSegment))
	}
	return rotated
}

// readSegment parses one segment, skipping anything that does not decode.
func readSegment(path string, logger *slog.Logger) []*event.Event {
	f, err := os.Open(path)
	if err != nil {
		logger.Debug("skipping unreadable segment", "segment", path, "error", err)
		return nil
	}
	defer f.Close()

	var events []*event.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := event.Parse(line)
		if err != nil {
			logger.Debug("skipping unparsable line", "segment", path, "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		logger.Debug("segment scan stopped early", "segment", path, "error", err)
	}
	return events
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n
}

// firstEvent returns the first parseable event of the earliest segment,
// falling back to later segments when the earliest is unreadable.
func firstEvent(segments []string, logger *slog.Logger) *event.Event {
	for _, path := range segments {
		if events := readSegment(path, logger); len(events) > 0 {
			return events[0]
		}
	}
	return nil
}

func sortEvents(events []*event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].EventID < events[j].EventID
	})
}
