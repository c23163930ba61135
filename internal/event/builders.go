package event

import "time"

// Option customizes an event at construction time.
type Option func(*Event)

// WithAgent scopes the event to an agent.
func WithAgent(agentID string) Option {
	return func(e *Event) { e.AgentID = agentID }
}

// WithDescription attaches a human-readable description.
func WithDescription(description string) Option {
	return func(e *Event) { e.Description = description }
}

// WithCause appends causal parent event ids.
func WithCause(eventIDs ...string) Option {
	return func(e *Event) { e.CausedBy = append(e.CausedBy, eventIDs...) }
}

func newEvent(t Type, simulationID string, turn int, details map[string]any, opts ...Option) *Event {
	if details == nil {
		details = map[string]any{}
	}
	e := &Event{
		EventID:      NewID(),
		Timestamp:    time.Now().UTC(),
		SimulationID: simulationID,
		TurnNumber:   turn,
		Type:         t,
		CausedBy:     []string{},
		Details:      details,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewMilestone records a major simulation phase boundary, such as the start
// or end of a turn.
func NewMilestone(simulationID string, turn int, milestone string, opts ...Option) *Event {
	return newEvent(TypeMilestone, simulationID, turn, map[string]any{
		"milestone": milestone,
	}, opts...)
}

// NewDecision records an agent or engine decision changing some value.
func NewDecision(simulationID string, turn int, decisionType string, oldValue, newValue any, opts ...Option) *Event {
	return newEvent(TypeDecision, simulationID, turn, map[string]any{
		"decision_type": decisionType,
		"old_value":     oldValue,
		"new_value":     newValue,
	}, opts...)
}

// NewAction records an action taken by an agent.
func NewAction(simulationID string, turn int, actionType string, payload map[string]any, opts ...Option) *Event {
	return newEvent(TypeAction, simulationID, turn, map[string]any{
		"action_type":    actionType,
		"action_payload": payload,
	}, opts...)
}

// NewStateChange records a change to a simulation variable.
func NewStateChange(simulationID string, turn int, variable string, oldValue, newValue any, scope string, opts ...Option) *Event {
	return newEvent(TypeState, simulationID, turn, map[string]any{
		"variable_name": variable,
		"old_value":     oldValue,
		"new_value":     newValue,
		"scope":         scope,
	}, opts...)
}

// NewDetail records fine-grained diagnostic data. The payload is
// caller-supplied and opaque.
func NewDetail(simulationID string, turn int, details map[string]any, opts ...Option) *Event {
	return newEvent(TypeDetail, simulationID, turn, details, opts...)
}

// NewSystem records framework-internal activity. System events are persisted
// only at DETAIL verbosity.
func NewSystem(simulationID string, turn int, message string, opts ...Option) *Event {
	return newEvent(TypeSystem, simulationID, turn, map[string]any{
		"message": message,
	}, opts...)
}
