package completion

import (
	"fmt"
	"strings"
)

// State is the derived per-day rendering state of a habit.
type State int

const (
	Unknown State = iota
	Done
	Skipped
	PeriodDone
)

func (s State) String() string {
	switch s {
	case Done:
		return "DONE"
	case Skipped:
		return "SKIPPED"
	case PeriodDone:
		return "PERIOD_DONE"
	default:
		return "UNKNOWN"
	}
}

// ParseState accepts the names printed by String in any case.
func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNKNOWN":
		return Unknown, nil
	case "DONE":
		return Done, nil
	case "SKIPPED":
		return Skipped, nil
	case "PERIOD_DONE":
		return PeriodDone, nil
	}
	return Unknown, fmt.Errorf("unknown completion state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
