// Package event defines the records that make up a simulation's event log.
//
// Every event shares a common envelope: a lexicographically sortable id, a
// UTC timestamp, provenance (simulation id and turn number), an optional
// agent scope, and a list of causal parent ids. Variant-specific data lives
// in the open Details map.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the event variants.
type Type string

const (
	TypeMilestone Type = "MILESTONE"
	TypeDecision  Type = "DECISION"
	TypeAction    Type = "ACTION"
	TypeState     Type = "STATE"
	TypeDetail    Type = "DETAIL"
	TypeSystem    Type = "SYSTEM"
)

// Types lists all event types in verbosity order, SYSTEM last.
func Types() []Type {
	return []Type{TypeMilestone, TypeDecision, TypeAction, TypeState, TypeDetail, TypeSystem}
}

// Valid reports whether t is one of the six known event types.
func (t Type) Valid() bool {
	switch t {
	case TypeMilestone, TypeDecision, TypeAction, TypeState, TypeDetail, TypeSystem:
		return true
	}
	return false
}

// Event is one record in a simulation's event log. It is serialized as one
// JSON object per line in a segment file.
type Event struct {
	EventID      string         `json:"event_id"`
	Timestamp    time.Time      `json:"timestamp"`
	SimulationID string         `json:"simulation_id"`
	TurnNumber   int            `json:"turn_number"`
	Type         Type           `json:"event_type"`
	AgentID      string         `json:"agent_id,omitempty"`
	Description  string         `json:"description,omitempty"`
	CausedBy     []string       `json:"caused_by"`
	Details      map[string]any `json:"details"`
}

// JSON returns the event serialized as a single JSON object.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes one log line into an Event. The caused_by and details
// fields are normalized to empty (never nil) so decoded events behave the
// same as freshly built ones.
func Parse(line []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if e.EventID == "" {
		return nil, fmt.Errorf("parse event: missing event_id")
	}
	if e.CausedBy == nil {
		e.CausedBy = []string{}
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	return &e, nil
}
