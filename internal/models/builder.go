package models

import (
	"sort"
	"strings"

	"github.com/julianstephens/beaver/internal/constants"
)

// DefaultStatuses are the statuses listed when no filter is given.
var DefaultStatuses = []constants.HabitStatus{
	constants.HabitStatusActive,
	constants.HabitStatusArchived,
}

var statusRank = map[constants.HabitStatus]int{
	constants.HabitStatusActive:      0,
	constants.HabitStatusArchived:    1,
	constants.HabitStatusSoftDeleted: 2,
}

// HabitListBuilder builds the render order of a HabitList.
type HabitListBuilder struct {
	list     *HabitList
	statuses []constants.HabitStatus
	listID   *string
}

func NewHabitListBuilder(list *HabitList) *HabitListBuilder {
	return &HabitListBuilder{list: list}
}

// Status restricts the output to the given statuses.
func (b *HabitListBuilder) Status(statuses ...constants.HabitStatus) *HabitListBuilder {
	b.statuses = append([]constants.HabitStatus(nil), statuses...)
	return b
}

// InList restricts the output to habits of one sub-list.
func (b *HabitListBuilder) InList(id string) *HabitListBuilder {
	b.listID = &id
	return b
}

type buildEntry struct {
	habit    *Habit
	name     string
	category string
	star     bool
	rank     int
	pos      int
}

// Build returns the filtered habits sorted by the list's order_by key,
// then starred first, then by status. Each pass is a stable sort so the
// last key dominates.
func (b *HabitListBuilder) Build() []*Habit {
	statuses := b.statuses
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}
	wanted := make(map[constants.HabitStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	l := b.list
	l.mu.RLock()
	positions := make(map[string]int, len(l.order))
	for i, id := range l.order {
		if _, seen := positions[id]; !seen {
			positions[id] = i
		}
	}
	orderBy := l.orderBy
	entries := make([]buildEntry, 0, len(l.habits))
	for _, h := range l.habits {
		if !wanted[h.status] {
			continue
		}
		if b.listID != nil && (h.listID == nil || *h.listID != *b.listID) {
			continue
		}
		pos, ok := positions[h.id]
		if !ok {
			pos = len(l.order)
		}
		rank, ok := statusRank[h.status]
		if !ok {
			rank = len(statusRank)
		}
		entries = append(entries, buildEntry{
			habit:    h,
			name:     strings.ToLower(h.name),
			category: h.category(),
			star:     h.star,
			rank:     rank,
			pos:      pos,
		})
	}
	l.mu.RUnlock()

	switch orderBy {
	case constants.OrderByCategory:
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if (a.category == "") != (b.category == "") {
				return a.category != ""
			}
			return a.category < b.category
		})
	case constants.OrderByManually:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	default:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].star && !entries[j].star })
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].rank < entries[j].rank })

	out := make([]*Habit, len(entries))
	for i, e := range entries {
		out[i] = e.habit
	}
	return out
}
