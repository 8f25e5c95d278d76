package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/utils"
)

func day(s string) utils.Date {
	d, err := utils.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

func TestHabitTick(t *testing.T) {
	tests := []struct {
		name       string
		state      CheckedState
		wantDone   CheckedState
		wantTicked bool
	}{
		{"done", CheckedDone, CheckedDone, true},
		{"not done", CheckedNotDone, CheckedNotDone, false},
		{"unset stored as not done", CheckedUnset, CheckedNotDone, false},
		{"skipped", CheckedSkipped, CheckedSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHabit("h1", "Run")
			d := day("2024-05-14")
			rec, err := h.Tick(d, tt.state, nil)
			if err != nil {
				t.Fatalf("Tick() error = %v", err)
			}
			if rec.Done != tt.wantDone {
				t.Errorf("Tick() returned %v, want %v", rec.Done, tt.wantDone)
			}
			got, ok := h.RecordBy(d)
			if !ok {
				t.Fatal("RecordBy() found no record")
			}
			if got.Done != tt.wantDone {
				t.Errorf("RecordBy().Done = %v, want %v", got.Done, tt.wantDone)
			}
			ticked := false
			for _, td := range h.TickedDays() {
				if td == d {
					ticked = true
				}
			}
			if ticked != tt.wantTicked {
				t.Errorf("TickedDays contains day = %v, want %v", ticked, tt.wantTicked)
			}
		})
	}
}

func TestHabitTickNeverDeletesRecords(t *testing.T) {
	h := NewHabit("h1", "Run")
	d := day("2024-05-14")
	if _, err := h.Tick(d, CheckedDone, strPtr("5km")); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if _, err := h.Tick(d, CheckedUnset, nil); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	rec, ok := h.RecordBy(d)
	if !ok {
		t.Fatal("record was deleted")
	}
	if rec.Done != CheckedNotDone {
		t.Errorf("Done = %v, want not done", rec.Done)
	}
	if rec.Text != "5km" {
		t.Errorf("Text = %q, want note kept", rec.Text)
	}
	if len(h.Records()) != 1 {
		t.Errorf("len(Records()) = %d, want 1", len(h.Records()))
	}
}

func TestHabitTickIdempotent(t *testing.T) {
	list := NewHabitList()
	id, err := list.Add("Run")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	h, _ := list.GetHabitBy(id)

	changes := 0
	list.SetOnChange(func() { changes++ })

	d := day("2024-05-14")
	for i := 0; i < 3; i++ {
		if _, err := h.Tick(d, CheckedDone, nil); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}

	v := h.Version()
	if _, err := h.Tick(d, CheckedDone, strPtr("")); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if h.Version() != v {
		t.Error("equal tick changed the version")
	}
	if _, err := h.Tick(d, CheckedDone, strPtr("note")); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2 after note change", changes)
	}
}

func TestHabitTickValidation(t *testing.T) {
	h := NewHabit("h1", "Run")
	if _, err := h.Tick(utils.Date{}, CheckedDone, nil); !errors.Is(err, beavererrors.ErrValidation) {
		t.Errorf("zero day error = %v, want validation", err)
	}
	long := strings.Repeat("a", constants.MaxNoteLength)
	if _, err := h.Tick(day("2024-05-14"), CheckedNotDone, &long); !errors.Is(err, beavererrors.ErrValidation) {
		t.Errorf("long note error = %v, want validation", err)
	}
	ok := strings.Repeat("a", constants.MaxNoteLength-1)
	if _, err := h.Tick(day("2024-05-14"), CheckedNotDone, &ok); err != nil {
		t.Errorf("note of %d chars rejected: %v", len(ok), err)
	}
}

func TestHabitTickedCount(t *testing.T) {
	h := NewHabit("h1", "Run")
	for _, s := range []string{"2024-05-01", "2024-05-02", "2024-05-10", "2024-06-01"} {
		if _, err := h.Tick(day(s), CheckedDone, nil); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if _, err := h.Skip(day("2024-05-03")); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	start := day("2024-05-02")
	end := day("2024-05-10")
	tests := []struct {
		name       string
		start, end *utils.Date
		want       int
	}{
		{"unbounded", nil, nil, 4},
		{"both bounds inclusive", &start, &end, 2},
		{"start only", &start, nil, 3},
		{"end only", nil, &end, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.TickedCount(tt.start, tt.end); got != tt.want {
				t.Errorf("TickedCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHabitTickedDaysSorted(t *testing.T) {
	h := NewHabit("h1", "Run")
	for _, s := range []string{"2024-05-10", "2024-05-01", "2024-05-05"} {
		if _, err := h.Tick(day(s), CheckedDone, nil); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	got := h.TickedDays()
	want := []utils.Date{day("2024-05-01"), day("2024-05-05"), day("2024-05-10")}
	if len(got) != len(want) {
		t.Fatalf("TickedDays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TickedDays()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHabitMerge(t *testing.T) {
	local := NewHabit("run1", "Run")
	remote := NewHabit("run1", "Run")

	mustTick(t, local, "2024-05-01", CheckedDone, "local note")
	mustTick(t, local, "2024-05-03", CheckedNotDone, "")
	mustTick(t, remote, "2024-05-02", CheckedDone, "")
	mustTick(t, remote, "2024-05-01", CheckedNotDone, "remote note")
	mustTick(t, remote, "2024-05-03", CheckedSkipped, "remote only note")

	merged := local.Merge(remote)
	if merged.ID() != "run1" {
		t.Errorf("ID() = %q, want run1", merged.ID())
	}

	ticks := merged.TickedDays()
	if len(ticks) != 2 || ticks[0] != day("2024-05-01") || ticks[1] != day("2024-05-02") {
		t.Errorf("TickedDays() = %v, want [2024-05-01 2024-05-02]", ticks)
	}
	rec, _ := merged.RecordBy(day("2024-05-01"))
	if rec.Text != "local note" {
		t.Errorf("note = %q, want local note to win", rec.Text)
	}
	rec, _ = merged.RecordBy(day("2024-05-03"))
	if !rec.IsSkipped() {
		t.Errorf("2024-05-03 = %v, want skipped", rec.Done)
	}
	if rec.Text != "remote only note" {
		t.Errorf("note = %q, want remote note kept", rec.Text)
	}

	// Inputs are untouched
	if len(local.TickedDays()) != 1 {
		t.Errorf("local mutated: %v", local.TickedDays())
	}
}

func TestHabitSetters(t *testing.T) {
	h := NewHabit("h1", "Run")

	if err := h.SetName("  Walk  "); err != nil {
		t.Fatalf("SetName() error = %v", err)
	}
	if h.Name() != "Walk" {
		t.Errorf("Name() = %q, want trimmed", h.Name())
	}
	if err := h.SetName(" "); !errors.Is(err, beavererrors.ErrValidation) {
		t.Errorf("SetName(blank) error = %v, want validation", err)
	}
	if err := h.SetWeeklyGoal(8); !errors.Is(err, beavererrors.ErrValidation) {
		t.Errorf("SetWeeklyGoal(8) error = %v, want validation", err)
	}
	if err := h.SetStatus("bogus"); !errors.Is(err, beavererrors.ErrValidation) {
		t.Errorf("SetStatus(bogus) error = %v, want validation", err)
	}

	p := HabitFrequency{Type: constants.PeriodWeek, Count: 1, Target: 2}
	if err := h.SetPeriod(&p); err != nil {
		t.Fatalf("SetPeriod() error = %v", err)
	}
	if got := h.Period(); got == nil || *got != p {
		t.Errorf("Period() = %v, want %v", got, p)
	}
	every := EveryDay
	if err := h.SetPeriod(&every); err != nil {
		t.Fatalf("SetPeriod(EveryDay) error = %v", err)
	}
	if h.Period() != nil {
		t.Errorf("Period() = %v, want nil for every day", h.Period())
	}

	h.SetTags([]string{" Health ", "", "outdoor"})
	if tags := h.Tags(); len(tags) != 2 || tags[0] != "Health" {
		t.Errorf("Tags() = %v", tags)
	}
	if h.Category() != "health" {
		t.Errorf("Category() = %q, want health", h.Category())
	}
}

func TestHabitJSONRoundTrip(t *testing.T) {
	input := `{
		"id": "abc",
		"name": "Run",
		"star": true,
		"status": "archive",
		"weekly_goal": 3,
		"list_id": "l1",
		"tags": ["sport"],
		"period": {"period_type": "W", "period_count": 1, "target_count": 2},
		"records": [
			{"day": "2024-05-14", "done": true},
			{"day": "2024-05-15", "done": "skipped"}
		],
		"color": "#ff0000"
	}`
	var h Habit
	if err := json.Unmarshal([]byte(input), &h); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if h.ID() != "abc" || !h.Star() || h.Status() != constants.HabitStatusArchived || h.WeeklyGoal() != 3 {
		t.Errorf("decoded habit mismatch: id=%q star=%v status=%q goal=%d", h.ID(), h.Star(), h.Status(), h.WeeklyGoal())
	}
	if id := h.ListID(); id == nil || *id != "l1" {
		t.Errorf("ListID() = %v, want l1", id)
	}
	if p := h.Period(); p == nil || p.String() != "2/1W" {
		t.Errorf("Period() = %v, want 2/1W", p)
	}
	if rec, _ := h.RecordBy(day("2024-05-15")); !rec.IsSkipped() {
		t.Errorf("legacy skipped record decoded as %v", rec.Done)
	}

	data, err := json.Marshal(&h)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{`"color":"#ff0000"`, `"skipped":true`, `"period_type":"W"`, `"status":"archive"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() = %s, missing %s", out, want)
		}
	}
}

func TestHabitUnmarshalAcceptsTextualPeriodAndIntegerID(t *testing.T) {
	var h Habit
	if err := json.Unmarshal([]byte(`{"id": 42, "name": "Read", "period": "3/1M"}`), &h); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if h.ID() != "42" {
		t.Errorf("ID() = %q, want 42", h.ID())
	}
	if p := h.Period(); p == nil || p.String() != "3/1M" {
		t.Errorf("Period() = %v, want 3/1M", p)
	}

	if err := json.Unmarshal([]byte(`{"name": "Read", "period": "3/1Q"}`), &h); err == nil {
		t.Error("expected error for invalid period")
	}
}

func TestHabitUnmarshalCollapsesRepeatedDays(t *testing.T) {
	tests := []struct {
		name    string
		records string
		want    CheckedState
		text    string
	}{
		{
			name:    "done then not done",
			records: `{"day": "2024-05-14", "done": true}, {"day": "2024-05-14", "done": false, "text": "rain"}`,
			want:    CheckedDone,
			text:    "rain",
		},
		{
			name:    "not done then done",
			records: `{"day": "2024-05-14", "done": false, "text": "late"}, {"day": "2024-05-14", "done": true, "text": "early"}`,
			want:    CheckedDone,
			text:    "late",
		},
		{
			name:    "skipped beats not done",
			records: `{"day": "2024-05-14", "done": false}, {"day": "2024-05-14", "done": false, "skipped": true}`,
			want:    CheckedSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Habit
			doc := `{"name": "Run", "records": [{"day": "2024-05-13", "done": true}, ` + tt.records + `]}`
			if err := json.Unmarshal([]byte(doc), &h); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			records := h.Records()
			if len(records) != 2 {
				t.Fatalf("Records() = %v, want 2 records", records)
			}
			rec, ok := h.RecordBy(day("2024-05-14"))
			if !ok {
				t.Fatal("RecordBy(2024-05-14) missing")
			}
			if rec.Done != tt.want || rec.Text != tt.text {
				t.Errorf("RecordBy() = %v %q, want %v %q", rec.Done, rec.Text, tt.want, tt.text)
			}
			if records[1].Day != rec.Day || records[1].Done != rec.Done || records[1].Text != rec.Text {
				t.Errorf("Records()[1] = %v %v %q, RecordBy() = %v %v %q",
					records[1].Day, records[1].Done, records[1].Text, rec.Day, rec.Done, rec.Text)
			}
			ticked := 1
			if tt.want == CheckedDone {
				ticked = 2
			}
			if got := len(h.TickedDays()); got != ticked {
				t.Errorf("TickedDays() = %v, want %d days", h.TickedDays(), ticked)
			}
		})
	}
}

func mustTick(t *testing.T, h *Habit, d string, state CheckedState, note string) {
	t.Helper()
	var n *string
	if note != "" {
		n = &note
	}
	if _, err := h.Tick(day(d), state, n); err != nil {
		t.Fatalf("Tick(%s) error = %v", d, err)
	}
}
