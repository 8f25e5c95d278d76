package completion

import (
	"sort"
	"time"

	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

// RecordSpan returns the first and last record day, used when a query
// has no explicit range.
func RecordSpan(records []models.Record) (utils.Date, utils.Date, bool) {
	if len(records) == 0 {
		return utils.Date{}, utils.Date{}, false
	}
	first, last := records[0].Day, records[0].Day
	for _, r := range records[1:] {
		if r.Day.Before(first) {
			first = r.Day
		}
		if r.Day.After(last) {
			last = r.Day
		}
	}
	return first, last, true
}

// QuerySpan is RecordSpan widened to whole periods: from the start of the
// period holding the first record to the end of the period holding the last.
func QuerySpan(records []models.Record, period *models.HabitFrequency, firstDay time.Weekday) (utils.Date, utils.Date, bool) {
	first, last, ok := RecordSpan(records)
	if !ok || period.IsEveryDay() {
		return first, last, ok
	}
	first = utils.PeriodStart(first, period.Type, firstDay)
	last = utils.DateMove(utils.PeriodStart(last, period.Type, firstDay), period.Count, period.Type).AddDays(-1)
	return first, last, true
}

// Filter returns the days of [start, end] whose state is in want, sorted
// ascending or descending and cut to limit when limit > 0. Days missing from
// states are Unknown.
func Filter(states map[utils.Date]State, start, end utils.Date, want map[State]bool, desc bool, limit int) []utils.Date {
	var days []utils.Date
	if want[Unknown] {
		for _, d := range utils.DaysRange(start, end) {
			if want[states[d]] {
				days = append(days, d)
			}
		}
	} else {
		for d, s := range states {
			if want[s] && d.Between(start, end) {
				days = append(days, d)
			}
		}
	}
	sort.Slice(days, func(i, j int) bool {
		if desc {
			return days[i].After(days[j])
		}
		return days[i].Before(days[j])
	})
	if limit > 0 && len(days) > limit {
		days = days[:limit]
	}
	return days
}
