package writer

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/telemetry"
)

func testLogger() *slog.Logger {
	return telemetry.NewLogger(io.Discard, slog.LevelError)
}

func newTestWriter(t *testing.T, opts Options) *Writer {
	t.Helper()
	if opts.OutputRoot == "" {
		opts.OutputRoot = t.TempDir()
	}
	if opts.SimulationID == "" {
		opts.SimulationID = "sim-test"
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New returned unexpected error: %v", err)
	}
	return w
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if IsSegment(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestNewRequiresIdentity(t *testing.T) {
	if _, err := New(Options{SimulationID: "x"}); err == nil {
		t.Error("New without OutputRoot should return an error")
	}
	if _, err := New(Options{OutputRoot: t.TempDir()}); err == nil {
		t.Error("New without SimulationID should return an error")
	}
}

func TestDirectModeWritesDurably(t *testing.T) {
	w := newTestWriter(t, Options{Mode: ModeDirect, Verbosity: event.LevelDetail})
	w.Start()

	want := 5
	for i := 0; i < want; i++ {
		w.Emit(event.NewMilestone("sim-test", i, "turn_start"))
	}

	// Direct mode is durable before Stop.
	lines := readLines(t, filepath.Join(w.Dir(), CurrentSegment))
	if len(lines) != want {
		t.Fatalf("segment has %d lines, want %d", len(lines), want)
	}
	for _, line := range lines {
		if _, err := event.Parse([]byte(line)); err != nil {
			t.Errorf("line does not parse: %v", err)
		}
	}
	w.Stop(time.Second)
}

func TestVerbosityFilteringNotCountedAsDropped(t *testing.T) {
	w := newTestWriter(t, Options{Mode: ModeDirect, Verbosity: event.LevelMilestone})
	w.Start()

	w.Emit(event.NewMilestone("sim-test", 1, "turn_start"))
	w.Emit(event.NewDetail("sim-test", 1, map[string]any{"noise": 1}))
	w.Emit(event.NewSystem("sim-test", 1, "internal"))
	w.Emit(event.NewAction("sim-test", 1, "buy", nil))
	w.Stop(time.Second)

	lines := readLines(t, filepath.Join(w.Dir(), CurrentSegment))
	if len(lines) != 1 {
		t.Errorf("segment has %d lines, want 1 (only the milestone)", len(lines))
	}
	if w.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0: filtered events are not drops", w.Dropped())
	}
}

func TestConcurrentModeWritesAndDrains(t *testing.T) {
	w := newTestWriter(t, Options{Mode: ModeConcurrent, Verbosity: event.LevelDetail})
	w.Start()

	want := 200
	for i := 0; i < want; i++ {
		w.Emit(event.NewAction("sim-test", i, "tick", nil))
	}
	w.Stop(5 * time.Second)

	lines := readLines(t, filepath.Join(w.Dir(), CurrentSegment))
	if got := len(lines) + int(w.Dropped()); got != want {
		t.Errorf("written %d + dropped %d = %d, want %d", len(lines), w.Dropped(), got, want)
	}

	// FIFO: on-disk order equals emit order.
	prevTurn := -1
	for _, line := range lines {
		e, err := event.Parse([]byte(line))
		if err != nil {
			t.Fatalf("line does not parse: %v", err)
		}
		if e.TurnNumber <= prevTurn {
			t.Fatalf("turn %d written after turn %d", e.TurnNumber, prevTurn)
		}
		prevTurn = e.TurnNumber
	}
}

func TestEmitNonBlockingAndDropAccounting(t *testing.T) {
	const queueSize = 16
	// Never started: the queue fills and everything past it must drop
	// without blocking.
	w := newTestWriter(t, Options{
		Mode:         ModeConcurrent,
		Verbosity:    event.LevelDetail,
		MaxQueueSize: queueSize,
	})

	const emits = 10000
	start := time.Now()
	for i := 0; i < emits; i++ {
		w.Emit(event.NewDetail("sim-test", i, map[string]any{"i": i}))
	}
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Errorf("%d emits took %v, expected bounded non-blocking time", emits, elapsed)
	}
	if got := w.Dropped(); got != emits-queueSize {
		t.Errorf("Dropped = %d, want %d", got, emits-queueSize)
	}

	// Stop without Start must still account for the queued remainder.
	w.Stop(time.Second)
	if got := w.Dropped(); got != emits {
		t.Errorf("Dropped after Stop = %d, want %d", got, emits)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	w := newTestWriter(t, Options{Mode: ModeConcurrent})
	w.Start()
	w.Start()
	w.Emit(event.NewMilestone("sim-test", 0, "turn_start"))
	w.Stop(time.Second)
	w.Stop(time.Second)

	// Emit after Stop is a counted drop, not a panic.
	w.Emit(event.NewMilestone("sim-test", 1, "turn_end"))
	if w.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1 after post-stop emit", w.Dropped())
	}
}

func TestRotationBoundsAndUniqueNames(t *testing.T) {
	const maxFileSize = 400
	w := newTestWriter(t, Options{
		Mode:        ModeDirect,
		Verbosity:   event.LevelDetail,
		MaxFileSize: maxFileSize,
	})
	w.Start()

	var oneEvent int
	for i := 0; i < 40; i++ {
		e := event.NewAction("sim-test", i, "trade", map[string]any{"qty": i})
		if oneEvent == 0 {
			line, err := e.JSON()
			if err != nil {
				t.Fatalf("JSON returned unexpected error: %v", err)
			}
			oneEvent = len(line) + 1
		}
		w.Emit(e)
	}
	w.Stop(time.Second)

	names := segmentFiles(t, w.Dir())
	if len(names) < 2 {
		t.Fatalf("expected rotation to produce multiple segments, got %v", names)
	}

	seen := make(map[string]bool)
	hasCurrent := false
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate segment name %q", name)
		}
		seen[name] = true
		if name == CurrentSegment {
			hasCurrent = true
			continue
		}
		if !IsRotatedSegment(name) {
			t.Errorf("segment %q does not match the rotated naming pattern", name)
		}
		fi, err := os.Stat(filepath.Join(w.Dir(), name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		// Tolerance is one serialized event; +8 covers the turn-number
		// digits varying across events.
		if limit := int64(maxFileSize + oneEvent + 8); fi.Size() > limit {
			t.Errorf("segment %q is %d bytes, want <= %d (threshold + one event)",
				name, fi.Size(), limit)
		}
	}
	if !hasCurrent {
		t.Errorf("canonical segment %q missing after rotation", CurrentSegment)
	}

	// Nothing lost or duplicated across the rotation boundary.
	total := 0
	for _, name := range names {
		total += len(readLines(t, filepath.Join(w.Dir(), name)))
	}
	if total != 40 {
		t.Errorf("total lines across segments = %d, want 40", total)
	}
}

func TestRotateHookReceivesRotatedPath(t *testing.T) {
	var rotated []string
	w := newTestWriter(t, Options{
		Mode:        ModeDirect,
		Verbosity:   event.LevelDetail,
		MaxFileSize: 100,
		OnRotate:    func(path string) { rotated = append(rotated, path) },
	})
	w.Start()
	for i := 0; i < 5; i++ {
		w.Emit(event.NewDetail("sim-test", i, map[string]any{"padding": "xxxxxxxxxxxxxxxxxxxxxxxx"}))
	}
	w.Stop(time.Second)

	if len(rotated) == 0 {
		t.Fatal("OnRotate was never called")
	}
	for _, p := range rotated {
		if !IsRotatedSegment(filepath.Base(p)) {
			t.Errorf("OnRotate path %q is not a rotated segment", p)
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("rotated segment %q missing: %v", p, err)
		}
	}
}

func TestWriterResumesExistingSegment(t *testing.T) {
	root := t.TempDir()
	w1 := newTestWriter(t, Options{OutputRoot: root, Mode: ModeDirect, Verbosity: event.LevelDetail})
	w1.Start()
	w1.Emit(event.NewMilestone("sim-test", 0, "turn_start"))
	w1.Stop(time.Second)

	w2 := newTestWriter(t, Options{OutputRoot: root, Mode: ModeDirect, Verbosity: event.LevelDetail})
	w2.Start()
	w2.Emit(event.NewMilestone("sim-test", 1, "turn_start"))
	w2.Stop(time.Second)

	lines := readLines(t, filepath.Join(w2.Dir(), CurrentSegment))
	if len(lines) != 2 {
		t.Errorf("segment has %d lines, want 2 (append, not truncate)", len(lines))
	}
}
