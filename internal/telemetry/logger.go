// Package telemetry provides observability for the simstream event core.
package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured JSON logger. Writers and services take a
// logger explicitly so multiple instances can coexist in tests without
// touching process-wide state.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SimulationLogger returns a logger with simulation-scoped fields.
func SimulationLogger(logger *slog.Logger, simulationID string) *slog.Logger {
	return logger.With(slog.String("simulation_id", simulationID))
}
