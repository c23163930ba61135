// Package writer implements the producer-facing event sink: a durable,
// append-only JSONL log with size-based rotation.
//
// A writer runs in one of two modes. Direct mode serializes, appends, and
// fsyncs inside Emit. Concurrent mode hands events to a bounded queue
// drained by a single consumer goroutine, so Emit never blocks the
// simulation loop; when the queue is full the event is dropped and counted.
// Nothing on the write path returns an error to the caller: failures are
// logged, metered, and the writer stays usable.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/telemetry"
)

// Mode selects how Emit hands events to the log file.
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeDirect     Mode = "direct"
)

// Defaults for the configuration surface.
const (
	DefaultMaxFileSize  = 500 * 1024 * 1024
	DefaultMaxQueueSize = 10000
)

// Options configures a Writer. Zero values fall back to the defaults noted
// per field.
type Options struct {
	// OutputRoot is the directory under which per-simulation log
	// directories are created. Required.
	OutputRoot string
	// SimulationID names the log directory. Required.
	SimulationID string
	// Verbosity is the persistence threshold. Default MILESTONE.
	Verbosity event.Level
	// Mode is concurrent or direct. Default concurrent.
	Mode Mode
	// MaxFileSize is the rotation threshold in bytes. Default 500 MiB.
	// The size check runs after each write, so a segment may exceed the
	// threshold by at most one serialized event.
	MaxFileSize int64
	// MaxQueueSize bounds the concurrent-mode queue. Default 10000.
	MaxQueueSize int
	// Logger receives write-path diagnostics. Default slog.Default().
	Logger *slog.Logger
	// Metrics receives write-path counters. Default unregistered metrics.
	Metrics *telemetry.Metrics
	// Clock is injectable for tests. Default time.Now.
	Clock func() time.Time
	// OnRotate, if set, is called with the path of each rotated segment.
	OnRotate func(path string)
}

// Writer is the single producer-facing sink for one simulation run. One
// Writer owns one active segment file.
type Writer struct {
	dir          string
	simulationID string
	verbosity    event.Level
	mode         Mode
	maxFileSize  int64
	clock        func() time.Time
	onRotate     func(string)
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	queue         chan *event.Event
	stopCh        chan struct{}
	doneCh        chan struct{}
	drainDeadline time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool
	dropped   atomic.Uint64

	mu   sync.Mutex // guards file and size
	file *os.File
	size int64
}

// New creates a Writer and its log directory. The writer is inert until
// Start is called.
func New(opts Options) (*Writer, error) {
	if opts.OutputRoot == "" {
		return nil, fmt.Errorf("writer: OutputRoot is required")
	}
	if opts.SimulationID == "" {
		return nil, fmt.Errorf("writer: SimulationID is required")
	}
	if opts.Verbosity == 0 {
		opts.Verbosity = event.LevelMilestone
	}
	if opts.Mode == "" {
		opts.Mode = ModeConcurrent
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = DefaultMaxQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	dir := filepath.Join(opts.OutputRoot, opts.SimulationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Writer{
		dir:          dir,
		simulationID: opts.SimulationID,
		verbosity:    opts.Verbosity,
		mode:         opts.Mode,
		maxFileSize:  opts.MaxFileSize,
		clock:        opts.Clock,
		onRotate:     opts.OnRotate,
		logger:       telemetry.SimulationLogger(opts.Logger, opts.SimulationID),
		metrics:      opts.Metrics,
		queue:        make(chan *event.Event, opts.MaxQueueSize),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Dir returns the simulation's log directory.
func (w *Writer) Dir() string { return w.dir }

// Dropped returns the number of events lost to overload or shutdown.
// Verbosity-filtered events are not counted.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Start makes the writer live. In concurrent mode it spawns the single
// consumer goroutine; in direct mode it is a no-op. Idempotent, never
// panics.
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		w.started.Store(true)
		if w.mode == ModeConcurrent {
			go w.consume()
		}
	})
}

// Emit persists the event subject to the verbosity policy. In concurrent
// mode it is a non-blocking enqueue; a full queue drops the event and
// increments the dropped counter. In direct mode the event is written and
// fsynced before Emit returns. Never blocks on I/O in concurrent mode,
// never panics in either.
func (w *Writer) Emit(e *event.Event) {
	if e == nil {
		return
	}
	if !w.verbosity.Includes(e.Type) {
		w.metrics.EventsFiltered.Inc()
		return
	}
	if w.stopped.Load() {
		w.drop(e, telemetry.DropShutdown)
		return
	}
	if w.mode == ModeDirect {
		w.writeEvent(e)
		return
	}
	select {
	case w.queue <- e:
	default:
		w.drop(e, telemetry.DropOverload)
	}
}

// Stop shuts the writer down. In concurrent mode the consumer drains queued
// events until timeout expires; anything still queued after the deadline is
// counted as dropped rather than blocking shutdown. Direct mode only closes
// the file, since every write is already durable. Idempotent, never panics.
func (w *Writer) Stop(timeout time.Duration) {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		if w.mode == ModeConcurrent && w.started.Load() {
			w.drainDeadline = w.clock().Add(timeout)
			close(w.stopCh)
			select {
			case <-w.doneCh:
			case <-time.After(timeout + time.Second):
				w.logger.Warn("consumer did not exit before deadline")
			}
		}
		// Account for anything that never reached the consumer: events
		// enqueued before Start, or racing in as the drain finished.
		for {
			select {
			case e := <-w.queue:
				w.drop(e, telemetry.DropShutdown)
			default:
				w.closeFile()
				if n := w.Dropped(); n > 0 {
					w.logger.Info("writer stopped", "dropped_events", n)
				} else {
					w.logger.Debug("writer stopped", "dropped_events", 0)
				}
				return
			}
		}
	})
}

// consume is the only goroutine that touches the file in concurrent mode.
// It blocks on the queue, not on polling, and survives write failures.
func (w *Writer) consume() {
	defer close(w.doneCh)
	for {
		select {
		case e := <-w.queue:
			w.writeEvent(e)
			w.metrics.QueueDepth.Set(float64(len(w.queue)))
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

// drain writes the remaining queued events until the deadline, then counts
// whatever is left as dropped so no event goes unaccounted.
func (w *Writer) drain() {
	for {
		select {
		case e := <-w.queue:
			if w.clock().After(w.drainDeadline) {
				w.drop(e, telemetry.DropShutdown)
				continue
			}
			w.writeEvent(e)
		default:
			return
		}
	}
}

func (w *Writer) drop(e *event.Event, reason string) {
	w.dropped.Add(1)
	w.metrics.EventsDropped.WithLabelValues(reason).Inc()
	w.logger.Debug("event dropped",
		"reason", reason,
		"event_id", e.EventID,
		"event_type", string(e.Type))
}

// writeEvent serializes, appends, fsyncs, and checks rotation. Every
// failure path logs and returns; the writer stays usable for the next
// event.
func (w *Writer) writeEvent(e *event.Event) {
	line, err := e.JSON()
	if err != nil {
		w.writeError("serialize event", err, e)
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureFile(); err != nil {
		w.writeError("open segment", err, e)
		return
	}
	n, err := w.file.Write(line)
	w.size += int64(n)
	if err != nil {
		w.writeError("append event", err, e)
		return
	}
	if err := w.file.Sync(); err != nil {
		w.writeError("sync segment", err, e)
	}
	w.metrics.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
	if w.size > w.maxFileSize {
		w.rotate()
	}
}

func (w *Writer) writeError(op string, err error, e *event.Event) {
	w.metrics.WriteErrors.Inc()
	w.logger.Error("write failed",
		"op", op,
		"error", err,
		"event_id", e.EventID)
}

// ensureFile opens the canonical segment for append, resuming the size
// counter when the file already has content.
func (w *Writer) ensureFile() error {
	if w.file != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(w.dir, CurrentSegment), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = fi.Size()
	return nil
}

func (w *Writer) closeFile() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	if err := w.file.Close(); err != nil {
		w.logger.Warn("closing segment", "error", err)
	}
	w.file = nil
}
