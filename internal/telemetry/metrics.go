package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label on EventsDropped.
const (
	DropOverload = "overload"
	DropShutdown = "shutdown"
)

// Metrics collects counters for the event write path. Filtered events are
// tracked separately from drops: filtering is deliberate, dropping is loss.
type Metrics struct {
	EventsEmitted  *prometheus.CounterVec
	EventsFiltered prometheus.Counter
	EventsDropped  *prometheus.CounterVec
	Rotations      prometheus.Counter
	WriteErrors    prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// NewMetrics creates the write-path metrics, registered with reg. A nil
// registerer leaves the metrics unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simstream_events_emitted_total",
			Help: "Events written to the log, by event type.",
		}, []string{"event_type"}),
		EventsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "simstream_events_filtered_total",
			Help: "Events discarded below the verbosity threshold.",
		}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simstream_events_dropped_total",
			Help: "Events lost to queue overload or shutdown, by reason.",
		}, []string{"reason"}),
		Rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "simstream_segment_rotations_total",
			Help: "Segment rotations performed.",
		}),
		WriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "simstream_write_errors_total",
			Help: "Serialization or I/O failures on the write path.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simstream_queue_depth",
			Help: "Events waiting in the writer queue.",
		}),
	}
}
