package query

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/szaher/simstream/internal/event"
)

// DefaultLimit caps a query page when the caller does not set one.
const DefaultLimit = 1000

// Filter narrows an event query. Nil/zero fields mean "no constraint";
// pointer fields distinguish "unset" from zero values like turn 0.
type Filter struct {
	Types     []event.Type
	AgentIDs  []string
	TurnStart *int
	TurnEnd   *int
	StartTime *time.Time
	EndTime   *time.Time

	// Where is an optional boolean expression over the fields event_id,
	// event_type, agent_id, turn_number, description, simulation_id,
	// timestamp, and details. A malformed expression is a caller error
	// and fails the query up front.
	Where string

	Limit  int
	Offset int
}

func (f *Filter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// compileWhere compiles the Where expression, or returns (nil, nil) when it
// is empty. The environment shape is only known per event, so the program
// is compiled unchecked.
func (f *Filter) compileWhere() (*vm.Program, error) {
	if f.Where == "" {
		return nil, nil
	}
	program, err := expr.Compile(f.Where, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid where expression %q: %w", f.Where, err)
	}
	return program, nil
}

// matches applies every non-empty predicate. Expression evaluation errors
// count as a non-match: data-quality issues in the log never fail a query.
func (f *Filter) matches(e *event.Event, program *vm.Program) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.AgentIDs) > 0 && !containsString(f.AgentIDs, e.AgentID) {
		return false
	}
	if f.TurnStart != nil && e.TurnNumber < *f.TurnStart {
		return false
	}
	if f.TurnEnd != nil && e.TurnNumber > *f.TurnEnd {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if program != nil {
		out, err := expr.Run(program, exprEnv(e))
		if err != nil {
			return false
		}
		ok, isBool := out.(bool)
		return isBool && ok
	}
	return true
}

func exprEnv(e *event.Event) map[string]any {
	return map[string]any{
		"event_id":      e.EventID,
		"event_type":    string(e.Type),
		"agent_id":      e.AgentID,
		"turn_number":   e.TurnNumber,
		"description":   e.Description,
		"simulation_id": e.SimulationID,
		"timestamp":     e.Timestamp,
		"details":       e.Details,
	}
}

func containsType(types []event.Type, t event.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
