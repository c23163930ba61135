package query

import (
	"context"
	"testing"
	"time"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/writer"
)

// chainFixture builds the canonical causal chain
// turn_start -> action -> state_change -> turn_end, each caused by the
// previous, split across a rotated segment and the current one.
func chainFixture(t *testing.T, root, simID string) (turnStart, action, stateChange, turnEnd *event.Event) {
	t.Helper()
	base := time.Now().UTC()

	turnStart = event.NewMilestone(simID, 1, "turn_start")
	turnStart.Timestamp = base
	action = event.NewAction(simID, 1, "buy", nil, event.WithCause(turnStart.EventID))
	action.Timestamp = base.Add(time.Millisecond)
	stateChange = event.NewStateChange(simID, 1, "inventory", 3, 4, "agent", event.WithCause(action.EventID))
	stateChange.Timestamp = base.Add(2 * time.Millisecond)
	turnEnd = event.NewMilestone(simID, 1, "turn_end", event.WithCause(stateChange.EventID))
	turnEnd.Timestamp = base.Add(3 * time.Millisecond)

	writeSegment(t, root, simID, "events_2026-08-01_09-00-00-000042.jsonl", turnStart, action)
	writeSegment(t, root, simID, writer.CurrentSegment, stateChange, turnEnd)
	return turnStart, action, stateChange, turnEnd
}

func ids(events []*event.Event) map[string]bool {
	m := make(map[string]bool, len(events))
	for _, e := range events {
		m[e.EventID] = true
	}
	return m
}

func TestCausalityChainUpstream(t *testing.T) {
	root := t.TempDir()
	turnStart, action, stateChange, turnEnd := chainFixture(t, root, "sim-c")
	s := NewService(root, testLogger())

	chain, err := s.CausalityChain(context.Background(), "sim-c", turnEnd.EventID, 5)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if chain == nil {
		t.Fatal("CausalityChain returned nil for a known event")
	}
	if chain.Event.EventID != turnEnd.EventID {
		t.Errorf("chain target = %s, want %s", chain.Event.EventID, turnEnd.EventID)
	}

	up := ids(chain.Upstream)
	for _, want := range []*event.Event{turnStart, action, stateChange} {
		if !up[want.EventID] {
			t.Errorf("upstream missing ancestor %s (%s)", want.EventID, want.Type)
		}
	}
	if up[turnEnd.EventID] {
		t.Error("upstream must not include the target itself")
	}
	if len(chain.Upstream) != 3 {
		t.Errorf("upstream has %d events, want 3", len(chain.Upstream))
	}
	if len(chain.Downstream) != 0 {
		t.Errorf("downstream of the chain tail has %d events, want 0", len(chain.Downstream))
	}
}

func TestCausalityChainRootAndDownstream(t *testing.T) {
	root := t.TempDir()
	turnStart, action, _, _ := chainFixture(t, root, "sim-c")
	s := NewService(root, testLogger())

	chain, err := s.CausalityChain(context.Background(), "sim-c", turnStart.EventID, 5)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if len(chain.Upstream) != 0 {
		t.Errorf("upstream of the chain root has %d events, want 0", len(chain.Upstream))
	}
	// Downstream is one hop only: the action, not its descendants.
	if len(chain.Downstream) != 1 || chain.Downstream[0].EventID != action.EventID {
		t.Errorf("downstream = %v, want exactly the direct child %s", ids(chain.Downstream), action.EventID)
	}
}

func TestCausalityChainDepthBound(t *testing.T) {
	root := t.TempDir()
	_, _, stateChange, turnEnd := chainFixture(t, root, "sim-c")
	s := NewService(root, testLogger())

	chain, err := s.CausalityChain(context.Background(), "sim-c", turnEnd.EventID, 1)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if len(chain.Upstream) != 1 || chain.Upstream[0].EventID != stateChange.EventID {
		t.Errorf("depth-1 upstream = %v, want only the direct parent %s",
			ids(chain.Upstream), stateChange.EventID)
	}

	none, err := s.CausalityChain(context.Background(), "sim-c", turnEnd.EventID, 0)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if len(none.Upstream) != 0 {
		t.Errorf("depth-0 upstream has %d events, want 0", len(none.Upstream))
	}
}

func TestCausalityChainMultipleParents(t *testing.T) {
	root := t.TempDir()
	simID := "sim-m"
	p1 := event.NewAction(simID, 1, "buy", nil)
	p2 := event.NewAction(simID, 1, "sell", nil)
	child := event.NewStateChange(simID, 1, "balance", 10, 12, "global",
		event.WithCause(p1.EventID, p2.EventID))
	writeSegment(t, root, simID, writer.CurrentSegment, p1, p2, child)

	s := NewService(root, testLogger())
	chain, err := s.CausalityChain(context.Background(), simID, child.EventID, 3)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	up := ids(chain.Upstream)
	if !up[p1.EventID] || !up[p2.EventID] || len(up) != 2 {
		t.Errorf("upstream = %v, want both parents", up)
	}
}

// A cyclic caused_by reference is a producer bug; the traversal must
// terminate and not revisit.
func TestCausalityChainCycleGuard(t *testing.T) {
	root := t.TempDir()
	simID := "sim-cycle"
	a := event.NewAction(simID, 1, "ping", nil)
	b := event.NewAction(simID, 1, "pong", nil, event.WithCause(a.EventID))
	a.CausedBy = append(a.CausedBy, b.EventID)
	writeSegment(t, root, simID, writer.CurrentSegment, a, b)

	s := NewService(root, testLogger())
	chain, err := s.CausalityChain(context.Background(), simID, a.EventID, 10)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if len(chain.Upstream) != 1 || chain.Upstream[0].EventID != b.EventID {
		t.Errorf("upstream in a 2-cycle = %v, want only %s", ids(chain.Upstream), b.EventID)
	}
}

func TestCausalityChainDanglingParent(t *testing.T) {
	root := t.TempDir()
	simID := "sim-dangle"
	child := event.NewAction(simID, 1, "buy", nil, event.WithCause("01MISSING"))
	writeSegment(t, root, simID, writer.CurrentSegment, child)

	s := NewService(root, testLogger())
	chain, err := s.CausalityChain(context.Background(), simID, child.EventID, 5)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if len(chain.Upstream) != 0 {
		t.Errorf("upstream with a dangling parent = %v, want empty", ids(chain.Upstream))
	}
}

func TestCausalityChainAbsentTarget(t *testing.T) {
	root := t.TempDir()
	chainFixture(t, root, "sim-c")
	s := NewService(root, testLogger())

	chain, err := s.CausalityChain(context.Background(), "sim-c", "01GHOST", 5)
	if err != nil {
		t.Fatalf("CausalityChain returned unexpected error: %v", err)
	}
	if chain != nil {
		t.Errorf("CausalityChain for unknown event = %+v, want nil", chain)
	}
}
