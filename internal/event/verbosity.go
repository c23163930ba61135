package event

import (
	"fmt"
	"strings"
)

// Level is a verbosity threshold. Levels form a total order and each level
// includes everything below it: MILESTONE < DECISION < ACTION < STATE <
// DETAIL.
type Level int

const (
	LevelMilestone Level = iota + 1
	LevelDecision
	LevelAction
	LevelState
	LevelDetail
)

// minimumLevel maps each event type to the lowest verbosity at which it is
// persisted. SYSTEM events are detail-tier.
var minimumLevel = map[Type]Level{
	TypeMilestone: LevelMilestone,
	TypeDecision:  LevelDecision,
	TypeAction:    LevelAction,
	TypeState:     LevelState,
	TypeDetail:    LevelDetail,
	TypeSystem:    LevelDetail,
}

// Includes reports whether events of type t are persisted at level l.
// Unknown types are never persisted.
func (l Level) Includes(t Type) bool {
	min, ok := minimumLevel[t]
	return ok && l >= min
}

func (l Level) String() string {
	switch l {
	case LevelMilestone:
		return "MILESTONE"
	case LevelDecision:
		return "DECISION"
	case LevelAction:
		return "ACTION"
	case LevelState:
		return "STATE"
	case LevelDetail:
		return "DETAIL"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MILESTONE":
		return LevelMilestone, nil
	case "DECISION":
		return LevelDecision, nil
	case "ACTION":
		return LevelAction, nil
	case "STATE":
		return LevelState, nil
	case "DETAIL":
		return LevelDetail, nil
	}
	return 0, fmt.Errorf("unknown verbosity level %q", s)
}
