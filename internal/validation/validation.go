package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateHabitID   ConflictType = "duplicate_habit_id"
	ConflictDuplicateHabitName ConflictType = "duplicate_habit_name"
	ConflictStaleOrderEntry    ConflictType = "stale_order_entry"
	ConflictDuplicateRecordDay ConflictType = "duplicate_record_day"
	ConflictNoteTooLong        ConflictType = "note_too_long"
	ConflictInvalidPeriod      ConflictType = "invalid_period"
	ConflictDanglingListID     ConflictType = "dangling_list_id"
	ConflictInvalidName        ConflictType = "invalid_name"
	ConflictUnreadableDocument ConflictType = "unreadable_document"
)

// Conflict represents a detected inconsistency in a habit list
type Conflict struct {
	Type        ConflictType
	Description string
	Date        string   // YYYY-MM-DD format (if applicable)
	Items       []string // Habit names involved
	HabitIDs    []string // IDs of habits involved (for auto-fixing)
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// FixAction represents an action taken during auto-fix
type FixAction struct {
	Action         string   // Human-readable description of the action
	SourceConflict Conflict // The conflict that triggered this fix action
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Validator checks a habit list document for inconsistencies
type Validator struct{}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

// ValidateDocument checks a stored document that may not load. Periods
// that would reject the whole document are reported per habit. When the
// document parses, the habit list checks run as well and the parsed list
// is returned.
func (v *Validator) ValidateDocument(data []byte) (ValidationResult, *models.HabitList) {
	result := ValidationResult{Conflicts: []Conflict{}}

	var loose struct {
		Habits []struct {
			Name   string          `json:"name"`
			Period json.RawMessage `json:"period"`
		} `json:"habits"`
	}
	if err := json.Unmarshal(data, &loose); err == nil {
		for _, h := range loose.Habits {
			if len(h.Period) == 0 {
				continue
			}
			if _, err := models.DecodePeriod(h.Period); err != nil {
				result.Conflicts = append(result.Conflicts, Conflict{
					Type:        ConflictInvalidPeriod,
					Description: fmt.Sprintf("Habit \"%s\" has an invalid period %s: %v", h.Name, h.Period, err),
					Items:       []string{h.Name},
				})
			}
		}
	}

	list, err := models.ParseHabitList(data)
	if err != nil {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictUnreadableDocument,
			Description: fmt.Sprintf("Document cannot be loaded: %v", err),
		})
		return result, nil
	}
	result.Conflicts = append(result.Conflicts, v.ValidateHabitList(list).Conflicts...)
	return result, list
}

// ValidateHabitList runs every document check.
func (v *Validator) ValidateHabitList(list *models.HabitList) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	habits := list.Habits()

	result.Conflicts = append(result.Conflicts, v.checkIdentifiers(habits)...)
	result.Conflicts = append(result.Conflicts, v.checkOrder(list, habits)...)
	result.Conflicts = append(result.Conflicts, v.checkLists(list, habits)...)
	for _, h := range habits {
		result.Conflicts = append(result.Conflicts, v.checkHabit(h)...)
	}
	return result
}

func (v *Validator) checkIdentifiers(habits []*models.Habit) []Conflict {
	var conflicts []Conflict

	byID := make(map[string][]string)
	byName := make(map[string][]string)
	var ids, names []string
	for _, h := range habits {
		if _, ok := byID[h.ID()]; !ok {
			ids = append(ids, h.ID())
		}
		byID[h.ID()] = append(byID[h.ID()], h.Name())

		if h.Status() == constants.HabitStatusSoftDeleted {
			continue
		}
		key := strings.ToLower(h.Name())
		if _, ok := byName[key]; !ok {
			names = append(names, key)
		}
		byName[key] = append(byName[key], h.ID())
	}

	for _, id := range ids {
		if len(byID[id]) > 1 {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictDuplicateHabitID,
				Description: fmt.Sprintf("Duplicate habit ID %q shared by %v", id, byID[id]),
				Items:       byID[id],
				HabitIDs:    []string{id},
			})
		}
	}
	for _, name := range names {
		if len(byName[name]) > 1 {
			conflicts = append(conflicts, Conflict{
				Type:        ConflictDuplicateHabitName,
				Description: fmt.Sprintf("Duplicate habit name: \"%s\" (IDs: %v)", name, byName[name]),
				Items:       []string{name},
				HabitIDs:    byName[name],
			})
		}
	}
	return conflicts
}

func (v *Validator) checkOrder(list *models.HabitList, habits []*models.Habit) []Conflict {
	known := make(map[string]bool, len(habits))
	for _, h := range habits {
		known[h.ID()] = true
	}

	var stale []string
	for _, id := range list.Order() {
		if !known[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return []Conflict{{
		Type:        ConflictStaleOrderEntry,
		Description: fmt.Sprintf("Order references %d unknown habit(s): %v", len(stale), stale),
		HabitIDs:    stale,
	}}
}

func (v *Validator) checkLists(list *models.HabitList, habits []*models.Habit) []Conflict {
	lists := make(map[string]bool)
	for _, m := range list.Lists() {
		lists[m.ID] = true
	}

	var conflicts []Conflict
	for _, h := range habits {
		id := h.ListID()
		if id == nil || lists[*id] {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:        ConflictDanglingListID,
			Description: fmt.Sprintf("Habit \"%s\" belongs to unknown list %q", h.Name(), *id),
			Items:       []string{h.Name()},
			HabitIDs:    []string{h.ID()},
		})
	}
	return conflicts
}

func (v *Validator) checkHabit(h *models.Habit) []Conflict {
	var conflicts []Conflict

	if _, err := models.ValidateHabitName(h.Name()); err != nil {
		conflicts = append(conflicts, Conflict{
			Type:        ConflictInvalidName,
			Description: fmt.Sprintf("Habit %s has an invalid name: %v", h.ID(), err),
			Items:       []string{h.Name()},
			HabitIDs:    []string{h.ID()},
		})
	}

	seen := make(map[utils.Date]int)
	for _, r := range h.Records() {
		seen[r.Day]++
		if utf8.RuneCountInString(r.Text) >= constants.MaxNoteLength {
			conflicts = append(conflicts, Conflict{
				Type: ConflictNoteTooLong,
				Description: fmt.Sprintf("Habit \"%s\" has a note on %s longer than %d characters",
					h.Name(), r.Day, constants.MaxNoteLength-1),
				Date:     r.Day.String(),
				Items:    []string{h.Name()},
				HabitIDs: []string{h.ID()},
			})
		}
	}

	var dupDays []utils.Date
	for d, n := range seen {
		if n > 1 {
			dupDays = append(dupDays, d)
		}
	}
	sort.Slice(dupDays, func(i, j int) bool { return dupDays[i].Before(dupDays[j]) })
	for _, d := range dupDays {
		conflicts = append(conflicts, Conflict{
			Type:        ConflictDuplicateRecordDay,
			Description: fmt.Sprintf("Habit \"%s\" has %d records for %s", h.Name(), seen[d], d),
			Date:        d.String(),
			Items:       []string{h.Name()},
			HabitIDs:    []string{h.ID()},
		})
	}
	return conflicts
}

// AutoFix repairs the conflicts that have a safe automatic fix: stale order
// entries are dropped and dangling list ids are cleared. Mutations go
// through the list, so an attached store saves them.
// Returns a slice of FixActions describing what was fixed
func AutoFix(conflicts []Conflict, list *models.HabitList) []FixAction {
	actions := []FixAction{}

	for _, conflict := range conflicts {
		switch conflict.Type {
		case ConflictStaleOrderEntry:
			stale := make(map[string]bool, len(conflict.HabitIDs))
			for _, id := range conflict.HabitIDs {
				stale[id] = true
			}
			var kept []string
			for _, id := range list.Order() {
				if !stale[id] {
					kept = append(kept, id)
				}
			}
			list.SetOrder(kept)
			actions = append(actions, FixAction{
				Action:         fmt.Sprintf("Removed stale order entries: %v", conflict.HabitIDs),
				SourceConflict: conflict,
			})

		case ConflictDanglingListID:
			for _, id := range conflict.HabitIDs {
				h, err := list.GetHabitBy(id)
				if err != nil {
					continue
				}
				h.SetListID(nil)
				actions = append(actions, FixAction{
					Action:         fmt.Sprintf("Cleared unknown list from habit \"%s\"", h.Name()),
					SourceConflict: conflict,
				})
			}
		}
	}

	return actions
}
