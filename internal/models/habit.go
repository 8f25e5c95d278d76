package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/utils"
)

// Habit is a named habit and its per-day records. A Habit attached to a
// HabitList shares the list's lock, and every mutation notifies the list.
type Habit struct {
	// mu points at own or at the owning list's lock. It only changes while
	// the mutex it points at is write-locked.
	mu   atomic.Pointer[sync.RWMutex]
	own  sync.RWMutex
	list *HabitList

	id         string
	name       string
	star       bool
	status     constants.HabitStatus
	weeklyGoal int
	listID     *string
	tags       []string
	order      int
	period     *HabitFrequency
	records    []Record
	extra      fields

	version uint64
	byDay   map[utils.Date]int
	ticked  []utils.Date
}

// NewHabit returns a detached active habit with no records.
func NewHabit(id, name string) *Habit {
	h := &Habit{
		id:     id,
		name:   strings.TrimSpace(name),
		status: constants.HabitStatusActive,
	}
	h.mu.Store(&h.own)
	h.rebuild()
	return h
}

// lock write-locks the mutex h currently uses and returns its unlock.
func (h *Habit) lock() func() {
	for {
		mu := h.mu.Load()
		mu.Lock()
		if h.mu.Load() == mu {
			return mu.Unlock
		}
		mu.Unlock()
	}
}

// rlock is lock for readers.
func (h *Habit) rlock() func() {
	for {
		mu := h.mu.Load()
		mu.RLock()
		if h.mu.Load() == mu {
			return mu.RUnlock
		}
		mu.RUnlock()
	}
}

// ValidateHabitName trims name and checks its length.
func ValidateHabitName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", beavererrors.Validation("name", "habit name is required")
	}
	if utf8.RuneCountInString(name) > constants.MaxHabitNameLength {
		return "", beavererrors.Validation("name", "habit name must be at most %d characters", constants.MaxHabitNameLength)
	}
	return name, nil
}

// rebuild refreshes the day index and ticked days. Callers hold the write lock.
func (h *Habit) rebuild() {
	h.byDay = make(map[utils.Date]int, len(h.records))
	h.ticked = h.ticked[:0]
	for i, r := range h.records {
		h.byDay[r.Day] = i
	}
	for day, i := range h.byDay {
		if h.records[i].IsDone() {
			h.ticked = append(h.ticked, day)
		}
	}
	sort.Slice(h.ticked, func(i, j int) bool { return h.ticked[i].Before(h.ticked[j]) })
}

// update runs fn under the write lock and notifies the owning list when fn
// reports a change.
func (h *Habit) update(fn func() bool) {
	unlock := h.lock()
	changed := fn()
	if changed {
		h.version++
	}
	owner := h.list
	unlock()
	if changed && owner != nil {
		owner.changed()
	}
}

func (h *Habit) ID() string {
	defer h.rlock()()
	return h.id
}

func (h *Habit) Name() string {
	defer h.rlock()()
	return h.name
}

func (h *Habit) Star() bool {
	defer h.rlock()()
	return h.star
}

func (h *Habit) Status() constants.HabitStatus {
	defer h.rlock()()
	return h.status
}

func (h *Habit) WeeklyGoal() int {
	defer h.rlock()()
	return h.weeklyGoal
}

func (h *Habit) ListID() *string {
	defer h.rlock()()
	if h.listID == nil {
		return nil
	}
	id := *h.listID
	return &id
}

func (h *Habit) Tags() []string {
	defer h.rlock()()
	return append([]string(nil), h.tags...)
}

// Category is the lowercased first tag, or "" for an untagged habit.
func (h *Habit) Category() string {
	defer h.rlock()()
	return h.category()
}

func (h *Habit) category() string {
	if len(h.tags) == 0 {
		return ""
	}
	return strings.ToLower(h.tags[0])
}

func (h *Habit) Order() int {
	defer h.rlock()()
	return h.order
}

// Period returns a copy of the frequency, or nil for a daily habit.
func (h *Habit) Period() *HabitFrequency {
	defer h.rlock()()
	if h.period == nil {
		return nil
	}
	p := *h.period
	return &p
}

// Version increases on every mutation. It keys cached completion results.
func (h *Habit) Version() uint64 {
	defer h.rlock()()
	return h.version
}

// Records returns a copy of the records in stored order.
func (h *Habit) Records() []Record {
	defer h.rlock()()
	return append([]Record(nil), h.records...)
}

// RecordBy returns the record for day, if any.
func (h *Habit) RecordBy(day utils.Date) (Record, bool) {
	defer h.rlock()()
	i, ok := h.byDay[day]
	if !ok {
		return Record{}, false
	}
	return h.records[i], true
}

// TickedDays returns every day marked done, ascending.
func (h *Habit) TickedDays() []utils.Date {
	defer h.rlock()()
	return append([]utils.Date(nil), h.ticked...)
}

// TickedCount counts done days within the optional inclusive range.
func (h *Habit) TickedCount(start, end *utils.Date) int {
	defer h.rlock()()
	n := 0
	for _, d := range h.ticked {
		if start != nil && d.Before(*start) {
			continue
		}
		if end != nil && d.After(*end) {
			continue
		}
		n++
	}
	return n
}

// Tick sets the mark for day. A nil note keeps the existing note. Setting a
// value equal to the stored one is a no-op and does not notify. Records are
// never removed: ticking back to unset stores not-done.
func (h *Habit) Tick(day utils.Date, state CheckedState, note *string) (Record, error) {
	if day.IsZero() {
		return Record{}, beavererrors.Validation("day", "day is required")
	}
	if note != nil && utf8.RuneCountInString(*note) >= constants.MaxNoteLength {
		return Record{}, beavererrors.Validation("text", "note must be shorter than %d characters", constants.MaxNoteLength)
	}
	if state == CheckedUnset {
		state = CheckedNotDone
	}

	var out Record
	h.update(func() bool {
		i, ok := h.byDay[day]
		if !ok {
			rec := Record{Day: day, Done: state}
			if note != nil {
				rec.Text = *note
			}
			h.records = append(h.records, rec)
			h.rebuild()
			out = rec
			return true
		}
		rec := &h.records[i]
		text := rec.Text
		if note != nil {
			text = *note
		}
		if rec.Done == state && rec.Text == text {
			out = *rec
			return false
		}
		rec.Done = state
		rec.Text = text
		h.rebuild()
		out = *rec
		return true
	})
	return out, nil
}

// Skip marks day as skipped.
func (h *Habit) Skip(day utils.Date) (Record, error) {
	return h.Tick(day, CheckedSkipped, nil)
}

func (h *Habit) SetName(name string) error {
	name, err := ValidateHabitName(name)
	if err != nil {
		return err
	}
	h.update(func() bool {
		if h.name == name {
			return false
		}
		h.name = name
		return true
	})
	return nil
}

func (h *Habit) SetStar(star bool) {
	h.update(func() bool {
		if h.star == star {
			return false
		}
		h.star = star
		return true
	})
}

func (h *Habit) SetStatus(status constants.HabitStatus) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	h.update(func() bool {
		if h.status == status {
			return false
		}
		h.status = status
		return true
	})
	return nil
}

// SetPeriod sets the frequency; nil or EveryDay clears it.
func (h *Habit) SetPeriod(p *HabitFrequency) error {
	if p != nil {
		if err := p.Validate(); err != nil {
			return err
		}
		if *p == EveryDay {
			p = nil
		} else {
			cp := *p
			p = &cp
		}
	}
	h.update(func() bool {
		switch {
		case h.period == nil && p == nil:
			return false
		case h.period != nil && p != nil && *h.period == *p:
			return false
		}
		h.period = p
		return true
	})
	return nil
}

func (h *Habit) SetTags(tags []string) {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	h.update(func() bool {
		if equalStrings(h.tags, clean) {
			return false
		}
		h.tags = clean
		return true
	})
}

func (h *Habit) SetWeeklyGoal(goal int) error {
	if goal < 0 || goal > constants.MaxWeeklyGoal {
		return beavererrors.Validation("weekly_goal", "weekly goal must be between 0 and %d", constants.MaxWeeklyGoal)
	}
	h.update(func() bool {
		if h.weeklyGoal == goal {
			return false
		}
		h.weeklyGoal = goal
		return true
	})
	return nil
}

// SetListID moves the habit into a list; nil removes it from any list.
func (h *Habit) SetListID(id *string) {
	h.update(func() bool {
		switch {
		case h.listID == nil && id == nil:
			return false
		case h.listID != nil && id != nil && *h.listID == *id:
			return false
		}
		if id == nil {
			h.listID = nil
		} else {
			v := *id
			h.listID = &v
		}
		return true
	})
}

func (h *Habit) SetOrder(order int) {
	h.update(func() bool {
		if h.order == order {
			return false
		}
		h.order = order
		return true
	})
}

// Merge returns a detached habit with h's identifier and metadata whose
// records are the union of both sides by day. A day is done if either side
// has it done, otherwise skipped if either side skipped it. Notes from h
// win; a note only present on other is kept.
func (h *Habit) Merge(other *Habit) *Habit {
	merged := h.clone()
	theirs := other.Records()

	for _, r := range theirs {
		i, ok := merged.byDay[r.Day]
		if !ok {
			merged.records = append(merged.records, Record{Day: r.Day, Done: r.Done, Text: r.Text, extra: r.extra})
			merged.byDay[r.Day] = len(merged.records) - 1
			continue
		}
		mergeRecord(&merged.records[i], r)
	}
	sort.SliceStable(merged.records, func(i, j int) bool {
		return merged.records[i].Day.Before(merged.records[j].Day)
	})
	merged.rebuild()
	return merged
}

// mergeRecord folds theirs into mine for the same day: done wins over
// skipped, skipped over not done, and mine keeps its note unless empty.
func mergeRecord(mine *Record, theirs Record) {
	switch {
	case mine.Done == CheckedDone || theirs.Done == CheckedDone:
		mine.Done = CheckedDone
	case mine.Done == CheckedSkipped || theirs.Done == CheckedSkipped:
		mine.Done = CheckedSkipped
	}
	if mine.Text == "" {
		mine.Text = theirs.Text
	}
}

// collapseRecords merges records that share a day into the first of them.
func collapseRecords(records []Record) []Record {
	if len(records) < 2 {
		return records
	}
	out := make([]Record, 0, len(records))
	seen := make(map[utils.Date]int, len(records))
	for _, r := range records {
		if i, ok := seen[r.Day]; ok {
			mergeRecord(&out[i], r)
			continue
		}
		seen[r.Day] = len(out)
		out = append(out, r)
	}
	return out
}

// clone returns a detached deep copy.
func (h *Habit) clone() *Habit {
	defer h.rlock()()
	return h.cloneLocked()
}

func (h *Habit) cloneLocked() *Habit {
	c := &Habit{
		id:         h.id,
		name:       h.name,
		star:       h.star,
		status:     h.status,
		weeklyGoal: h.weeklyGoal,
		tags:       append([]string(nil), h.tags...),
		order:      h.order,
		records:    append([]Record(nil), h.records...),
		extra:      h.extra.clone(),
	}
	if h.listID != nil {
		id := *h.listID
		c.listID = &id
	}
	if h.period != nil {
		p := *h.period
		c.period = &p
	}
	c.mu.Store(&c.own)
	c.rebuild()
	return c
}

// ValidateStatus checks that s is one of the known statuses.
func ValidateStatus(s constants.HabitStatus) error {
	switch s {
	case constants.HabitStatusActive, constants.HabitStatusArchived, constants.HabitStatusSoftDeleted:
		return nil
	}
	return beavererrors.Validation("status", "unknown status %q", s)
}

// ParseStatus accepts the stored form or the enum name ("ACTIVE", "ARCHIVED", ...).
func ParseStatus(s string) (constants.HabitStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return constants.HabitStatusActive, nil
	case "archive", "archived":
		return constants.HabitStatusArchived, nil
	case "soft_delete", "soft_deleted", "deleted":
		return constants.HabitStatusSoftDeleted, nil
	}
	return "", beavererrors.Validation("status", "unknown status %q", s)
}

func (h *Habit) MarshalJSON() ([]byte, error) {
	defer h.rlock()()
	return h.encode()
}

// encode writes the habit document. Callers hold the read lock.
func (h *Habit) encode() ([]byte, error) {
	records := h.records
	if records == nil {
		records = []Record{}
	}
	tags := h.tags
	if tags == nil {
		tags = []string{}
	}
	return encodeFields(h.extra,
		field{"id", h.id},
		field{"name", h.name},
		field{"star", h.star},
		field{"status", h.status},
		field{"weekly_goal", h.weeklyGoal},
		field{"list_id", h.listID},
		field{"tags", tags},
		field{"order", h.order},
		field{"period", h.period},
		field{"records", records},
	)
}

// UnmarshalJSON decodes a habit document. Only "name" is required; a
// missing id is minted when the habit joins a list.
func (h *Habit) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}

	dec := &Habit{status: constants.HabitStatusActive}
	if raw, ok := f["id"]; ok {
		delete(f, "id")
		if dec.id, err = decodeID(raw); err != nil {
			return err
		}
	}
	if _, err := f.take("name", &dec.name); err != nil {
		return err
	}
	dec.name = strings.TrimSpace(dec.name)
	if dec.name == "" {
		return fmt.Errorf("habit is missing a name")
	}
	if _, err := f.take("star", &dec.star); err != nil {
		return err
	}
	var status string
	if ok, err := f.take("status", &status); err != nil {
		return err
	} else if ok {
		if dec.status, err = ParseStatus(status); err != nil {
			return err
		}
	}
	if _, err := f.take("weekly_goal", &dec.weeklyGoal); err != nil {
		return err
	}
	if _, err := f.take("list_id", &dec.listID); err != nil {
		return err
	}
	if _, err := f.take("tags", &dec.tags); err != nil {
		return err
	}
	if _, err := f.take("order", &dec.order); err != nil {
		return err
	}
	if raw, ok := f["period"]; ok {
		delete(f, "period")
		if dec.period, err = DecodePeriod(raw); err != nil {
			return err
		}
	}
	if _, err := f.take("records", &dec.records); err != nil {
		return err
	}
	dec.records = collapseRecords(dec.records)
	dec.extra = f.extra()

	h.id, h.name, h.star, h.status = dec.id, dec.name, dec.star, dec.status
	h.weeklyGoal, h.listID, h.tags, h.order = dec.weeklyGoal, dec.listID, dec.tags, dec.order
	h.period, h.records, h.extra = dec.period, dec.records, dec.extra
	if h.mu.Load() == nil {
		h.mu.Store(&h.own)
	}
	h.rebuild()
	return nil
}

// decodeID accepts string ids and the integer surrogates of database exports.
func decodeID(raw json.RawMessage) (string, error) {
	if string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid \"id\": %s", raw)
	}
	return n.String(), nil
}

// DecodePeriod accepts the object form or the textual "2/1W" form. The
// every-day frequency decodes to nil.
func DecodePeriod(raw json.RawMessage) (*HabitFrequency, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		p, err := ParseHabitFrequency(s)
		if err != nil {
			return nil, err
		}
		return normalizePeriod(p), nil
	}
	var p HabitFrequency
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid \"period\": %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return normalizePeriod(p), nil
}

func normalizePeriod(p HabitFrequency) *HabitFrequency {
	if p == EveryDay {
		return nil
	}
	return &p
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
