package query

import (
	"context"

	"github.com/szaher/simstream/internal/event"
)

// Chain is the causal neighborhood of one event. Upstream holds every
// ancestor reachable through caused_by within the depth bound; Downstream
// holds only direct children. The asymmetry is deliberate: the common
// question is "what led to this", not "what is the full consequence tree".
type Chain struct {
	Event      *event.Event   `json:"event"`
	Upstream   []*event.Event `json:"upstream"`
	Downstream []*event.Event `json:"downstream"`
}

// CausalityChain builds the chain for an event. Returns (nil, nil) when the
// target is not in the log. Both maps are built in one pass over all
// segments; upstream traversal is an explicit stack DFS with a visited set,
// so a cyclic caused_by reference (a producer bug) terminates instead of
// recursing forever.
func (s *Service) CausalityChain(ctx context.Context, simulationID, eventID string, depth int) (*Chain, error) {
	all, err := s.loadEvents(ctx, simulationID)
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]*event.Event, len(all))
	children := make(map[string][]*event.Event)
	for _, e := range all {
		// Ids are expected unique; the first occurrence wins.
		if _, ok := lookup[e.EventID]; !ok {
			lookup[e.EventID] = e
		}
		for _, parentID := range e.CausedBy {
			children[parentID] = append(children[parentID], e)
		}
	}

	target, ok := lookup[eventID]
	if !ok {
		return nil, nil
	}

	upstream := collectUpstream(target, lookup, depth)
	downstream := append([]*event.Event(nil), children[eventID]...)
	sortEvents(upstream)
	sortEvents(downstream)

	return &Chain{Event: target, Upstream: upstream, Downstream: downstream}, nil
}

// collectUpstream walks caused_by references up to depth hops from the
// target, returning the de-duplicated ancestor set without the target
// itself. Parents referenced but absent from the log are skipped.
func collectUpstream(target *event.Event, lookup map[string]*event.Event, depth int) []*event.Event {
	type frame struct {
		id   string
		hops int
	}
	visited := map[string]bool{target.EventID: true}
	stack := []frame{{id: target.EventID, hops: 0}}
	var ancestors []*event.Event

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.hops >= depth {
			continue
		}
		e, ok := lookup[top.id]
		if !ok {
			continue
		}
		for _, parentID := range e.CausedBy {
			if visited[parentID] {
				continue
			}
			visited[parentID] = true
			if parent, ok := lookup[parentID]; ok {
				ancestors = append(ancestors, parent)
			}
			stack = append(stack, frame{id: parentID, hops: top.hops + 1})
		}
	}
	return ancestors
}
