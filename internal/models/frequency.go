package models

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
)

// HabitFrequency is a target over a window, e.g. twice per week.
type HabitFrequency struct {
	Type   constants.PeriodType `json:"period_type"`
	Count  int                  `json:"period_count"`
	Target int                  `json:"target_count"`
}

// EveryDay is the frequency of a habit with no period.
var EveryDay = HabitFrequency{Type: constants.PeriodDay, Count: 1, Target: 1}

var frequencyPattern = regexp.MustCompile(`^(\d+)/(\d+)([DWMY])$`)

// ParseHabitFrequency parses the textual form "<target>/<count><type>".
func ParseHabitFrequency(s string) (HabitFrequency, error) {
	m := frequencyPattern.FindStringSubmatch(s)
	if m == nil {
		return HabitFrequency{}, fmt.Errorf("%w: %q", beavererrors.ErrInvalidFrequency, s)
	}
	target, err := strconv.Atoi(m[1])
	if err != nil {
		return HabitFrequency{}, fmt.Errorf("%w: target count %q out of range", beavererrors.ErrInvalidFrequency, m[1])
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return HabitFrequency{}, fmt.Errorf("%w: period count %q out of range", beavererrors.ErrInvalidFrequency, m[2])
	}
	f := HabitFrequency{Type: constants.PeriodType(m[3]), Count: count, Target: target}
	if err := f.Validate(); err != nil {
		return HabitFrequency{}, err
	}
	return f, nil
}

func (f HabitFrequency) String() string {
	return fmt.Sprintf("%d/%d%s", f.Target, f.Count, f.Type)
}

func (f HabitFrequency) Validate() error {
	switch f.Type {
	case constants.PeriodDay, constants.PeriodWeek, constants.PeriodMonth, constants.PeriodYear:
	default:
		return fmt.Errorf("%w: unknown period type %q", beavererrors.ErrInvalidFrequency, f.Type)
	}
	if f.Count < 1 || f.Count > constants.MaxPeriodCount {
		return fmt.Errorf("%w: period count must be between 1 and %d", beavererrors.ErrInvalidFrequency, constants.MaxPeriodCount)
	}
	if f.Target < 1 || f.Target > constants.MaxTargetCount {
		return fmt.Errorf("%w: target count must be between 1 and %d", beavererrors.ErrInvalidFrequency, constants.MaxTargetCount)
	}
	return nil
}

// IsEveryDay reports whether f imposes no rollup.
func (f *HabitFrequency) IsEveryDay() bool {
	return f == nil || *f == EveryDay
}
