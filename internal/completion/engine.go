// Package completion derives per-day completion states from habit records.
package completion

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

// Source is the read side of a habit the engine needs.
type Source interface {
	Records() []models.Record
	Period() *models.HabitFrequency
	Version() uint64
}

// handler computes one partial state map over [start, end].
type handler func(records []models.Record, period *models.HabitFrequency, start, end utils.Date, firstDay time.Weekday) map[utils.Date]State

// handlers run in order; later results overlay earlier ones.
var handlers = []handler{doneHandler, skippedHandler, periodHandler}

// Compute returns the completion state of every day in [start, end] that
// is not Unknown.
func Compute(records []models.Record, period *models.HabitFrequency, start, end utils.Date, firstDay time.Weekday) map[utils.Date]State {
	out := make(map[utils.Date]State)
	if end.Before(start) {
		return out
	}
	for _, h := range handlers {
		for d, s := range h(records, period, start, end, firstDay) {
			out[d] = s
		}
	}
	return out
}

func doneHandler(records []models.Record, _ *models.HabitFrequency, start, end utils.Date, _ time.Weekday) map[utils.Date]State {
	out := make(map[utils.Date]State)
	for _, r := range records {
		if r.IsDone() && r.Day.Between(start, end) {
			out[r.Day] = Done
		}
	}
	return out
}

func skippedHandler(records []models.Record, _ *models.HabitFrequency, start, end utils.Date, _ time.Weekday) map[utils.Date]State {
	out := make(map[utils.Date]State)
	for _, r := range records {
		if r.IsSkipped() && r.Day.Between(start, end) {
			out[r.Day] = Skipped
		}
	}
	return out
}

// periodHandler marks every day of a satisfied period as PeriodDone. Periods
// are anchored on the days that carry a tick or a skip; a period is
// satisfied when it holds at least target ticks or any skip.
func periodHandler(records []models.Record, period *models.HabitFrequency, start, end utils.Date, firstDay time.Weekday) map[utils.Date]State {
	if period.IsEveryDay() {
		return nil
	}
	pt, count := period.Type, period.Count
	scanMin := utils.DateMove(start, -count, pt)
	scanMax := utils.DateMove(end, count, pt)

	var ticks, events []utils.Date
	skips := make(map[utils.Date]bool)
	for _, r := range records {
		if !r.Day.Between(scanMin, scanMax) {
			continue
		}
		switch {
		case r.IsDone():
			ticks = append(ticks, r.Day)
			events = append(events, r.Day)
		case r.IsSkipped():
			skips[r.Day] = true
			events = append(events, r.Day)
		}
	}
	sortDates(ticks)
	sortDates(events)

	out := make(map[utils.Date]State)
	anchors := make(map[utils.Date]bool)
	for _, ev := range events {
		left := utils.PeriodStart(ev, pt, firstDay)
		if anchors[left] {
			continue
		}
		anchors[left] = true
		right := utils.DateMove(left, count, pt)

		if !satisfied(left, right, ticks, skips, period.Target) {
			continue
		}
		from := left
		if from.Before(start) {
			from = start
		}
		for d := from; d.Before(right) && !d.After(end); d = d.AddDays(1) {
			out[d] = PeriodDone
		}
	}
	return out
}

// satisfied reports whether [left, right) holds target ticks or a skip.
func satisfied(left, right utils.Date, ticks []utils.Date, skips map[utils.Date]bool, target int) bool {
	n := 0
	i := sort.Search(len(ticks), func(i int) bool { return !ticks[i].Before(left) })
	for ; i < len(ticks) && ticks[i].Before(right); i++ {
		n++
	}
	if n >= target {
		return true
	}
	for d := range skips {
		if !d.Before(left) && d.Before(right) {
			return true
		}
	}
	return false
}

func sortDates(days []utils.Date) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}

type cacheKey struct {
	habit    Source
	version  uint64
	start    utils.Date
	end      utils.Date
	firstDay time.Weekday
}

// Engine caches completion results per habit version.
type Engine struct {
	cache *lru.Cache[cacheKey, map[utils.Date]State]
}

// NewEngine returns an engine holding up to size results. A size of zero
// uses the default.
func NewEngine(size int) (*Engine, error) {
	if size <= 0 {
		size = constants.DefaultCompletionCacheSize
	}
	cache, err := lru.New[cacheKey, map[utils.Date]State](size)
	if err != nil {
		return nil, err
	}
	return &Engine{cache: cache}, nil
}

// HabitDateCompletion returns the states of h over [start, end]. Results
// are cached until h changes.
func (e *Engine) HabitDateCompletion(h Source, start, end utils.Date, firstDay time.Weekday) map[utils.Date]State {
	key := cacheKey{habit: h, version: h.Version(), start: start, end: end, firstDay: firstDay}
	if cached, ok := e.cache.Get(key); ok {
		return copyStates(cached)
	}
	states := Compute(h.Records(), h.Period(), start, end, firstDay)
	e.cache.Add(key, states)
	return copyStates(states)
}

// Len is the number of cached results.
func (e *Engine) Len() int {
	return e.cache.Len()
}

func copyStates(m map[utils.Date]State) map[utils.Date]State {
	out := make(map[utils.Date]State, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
