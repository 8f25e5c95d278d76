package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
)

// ListMeta is a named sub-list habits can belong to.
type ListMeta struct {
	ID      string
	Name    string
	Order   int
	Deleted bool

	extra fields
}

func (m ListMeta) MarshalJSON() ([]byte, error) {
	return encodeFields(m.extra,
		field{"id", m.ID},
		field{"name", m.Name},
		field{"order", m.Order},
		field{"deleted", m.Deleted},
	)
}

func (m *ListMeta) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out ListMeta
	if raw, ok := f["id"]; ok {
		delete(f, "id")
		if out.ID, err = decodeID(raw); err != nil {
			return err
		}
	}
	if _, err := f.take("name", &out.Name); err != nil {
		return err
	}
	if _, err := f.take("order", &out.Order); err != nil {
		return err
	}
	if _, err := f.take("deleted", &out.Deleted); err != nil {
		return err
	}
	out.extra = f.extra()
	*m = out
	return nil
}

// Backup is the per-user backup transport configuration.
type Backup struct {
	TelegramBotToken *string
	TelegramChatID   *string

	extra fields
}

// Configured reports whether both Telegram settings are present.
func (b Backup) Configured() bool {
	return b.TelegramBotToken != nil && *b.TelegramBotToken != "" &&
		b.TelegramChatID != nil && *b.TelegramChatID != ""
}

func (b Backup) MarshalJSON() ([]byte, error) {
	return encodeFields(b.extra,
		field{"telegram_bot_token", b.TelegramBotToken},
		field{"telegram_chat_id", b.TelegramChatID},
	)
}

func (b *Backup) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Backup
	if _, err := f.take("telegram_bot_token", &out.TelegramBotToken); err != nil {
		return err
	}
	if raw, ok := f["telegram_chat_id"]; ok {
		delete(f, "telegram_chat_id")
		id, err := decodeID(raw)
		if err != nil {
			return err
		}
		if id != "" {
			out.TelegramChatID = &id
		}
	}
	out.extra = f.extra()
	*b = out
	return nil
}

// Settings are per-user display settings.
type Settings struct {
	// FirstDayOfWeek overrides the configured first day of week when set.
	FirstDayOfWeek *time.Weekday
	Theme          []byte

	extra fields
}

func (s Settings) MarshalJSON() ([]byte, error) {
	var fdow *int
	if s.FirstDayOfWeek != nil {
		v := int(*s.FirstDayOfWeek)
		fdow = &v
	}
	var theme *string
	if len(s.Theme) > 0 {
		v := base64.StdEncoding.EncodeToString(s.Theme)
		theme = &v
	}
	return encodeFields(s.extra,
		field{"first_day_of_week", fdow},
		field{"theme", theme},
	)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Settings
	var fdow int
	if ok, err := f.take("first_day_of_week", &fdow); err != nil {
		return err
	} else if ok {
		if fdow < 0 || fdow > 6 {
			return fmt.Errorf("invalid \"first_day_of_week\": %d", fdow)
		}
		wd := time.Weekday(fdow)
		out.FirstDayOfWeek = &wd
	}
	var theme string
	if ok, err := f.take("theme", &theme); err != nil {
		return err
	} else if ok && theme != "" {
		if out.Theme, err = base64.StdEncoding.DecodeString(theme); err != nil {
			return fmt.Errorf("invalid \"theme\": %w", err)
		}
	}
	out.extra = f.extra()
	*s = out
	return nil
}

// WeekStart returns the override or fallback.
func (s Settings) WeekStart(fallback time.Weekday) time.Weekday {
	if s.FirstDayOfWeek != nil {
		return *s.FirstDayOfWeek
	}
	return fallback
}

// HabitList is a user's whole habit document. It is safe for concurrent
// use; every mutation, including mutations of its habits, calls the
// change hook installed with SetOnChange.
type HabitList struct {
	mu       sync.RWMutex
	habits   []*Habit
	order    []string
	orderBy  constants.OrderBy
	lists    []ListMeta
	backup   *Backup
	settings Settings
	extra    fields
	onChange func()
}

func NewHabitList() *HabitList {
	return &HabitList{}
}

// ParseHabitList decodes a habit list document.
func ParseHabitList(data []byte) (*HabitList, error) {
	l := NewHabitList()
	if err := json.Unmarshal(data, l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetOnChange installs the hook called after every mutation. It is called
// without any lock held.
func (l *HabitList) SetOnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *HabitList) changed() {
	l.mu.RLock()
	fn := l.onChange
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (l *HabitList) mutate(fn func() bool) {
	l.mu.Lock()
	changed := fn()
	l.mu.Unlock()
	if changed {
		l.changed()
	}
}

// attach makes h share the list's lock. Callers hold the write lock.
func (l *HabitList) attach(h *Habit) {
	if cur := h.mu.Load(); cur != nil && cur != &l.mu {
		cur.Lock()
		defer cur.Unlock()
	}
	h.mu.Store(&l.mu)
	h.list = l
	if h.byDay == nil {
		h.rebuild()
	}
}

func (l *HabitList) hasID(id string) bool {
	for _, h := range l.habits {
		if h.id == id {
			return true
		}
	}
	return false
}

// Habits returns all habits in stored order.
func (l *HabitList) Habits() []*Habit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Habit(nil), l.habits...)
}

func (l *HabitList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.habits)
}

// Add creates an active habit and returns its minted identifier.
func (l *HabitList) Add(name string, tags ...string) (string, error) {
	name, err := ValidateHabitName(name)
	if err != nil {
		return "", err
	}
	h := NewHabit("", name)
	h.SetTags(tags)

	var id string
	l.mutate(func() bool {
		id = MintID(name, l.hasID)
		h.id = id
		l.attach(h)
		l.habits = append(l.habits, h)
		return true
	})
	return id, nil
}

// AddHabit attaches a detached habit. A missing or taken identifier is
// replaced with a freshly minted one.
func (l *HabitList) AddHabit(h *Habit) string {
	var id string
	l.mutate(func() bool {
		l.attach(h)
		if h.id == "" || l.hasID(h.id) {
			h.id = MintID(h.name, l.hasID)
		}
		id = h.id
		l.habits = append(l.habits, h)
		return true
	})
	return id
}

// Remove physically removes h. Normal deletion sets the soft-deleted status instead.
func (l *HabitList) Remove(h *Habit) bool {
	removed := false
	l.mutate(func() bool {
		for i, x := range l.habits {
			if x == h {
				l.habits = append(l.habits[:i], l.habits[i+1:]...)
				h.list = nil
				h.mu.Store(&h.own)
				removed = true
				return true
			}
		}
		return false
	})
	return removed
}

// GetHabitBy returns the habit with the given identifier.
func (l *HabitList) GetHabitBy(id string) (*Habit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.habits {
		if h.id == id {
			return h, nil
		}
	}
	return nil, beavererrors.NotFound("habit %q", id)
}

// GetHabitByName returns the first habit with the given name, ignoring case.
func (l *HabitList) GetHabitByName(name string) (*Habit, error) {
	name = strings.TrimSpace(name)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.habits {
		if strings.EqualFold(h.name, name) {
			return h, nil
		}
	}
	return nil, beavererrors.NotFound("habit %q", name)
}

// Order is the explicit render order used with OrderByManually.
func (l *HabitList) Order() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.order...)
}

// SetOrder stores the order vector as given. Unknown identifiers are kept
// and ignored when rendering.
func (l *HabitList) SetOrder(order []string) {
	order = append([]string{}, order...)
	l.mutate(func() bool {
		if equalStrings(l.order, order) {
			return false
		}
		l.order = order
		return true
	})
}

func (l *HabitList) OrderBy() constants.OrderBy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orderBy
}

func (l *HabitList) SetOrderBy(by constants.OrderBy) error {
	switch by {
	case constants.OrderByName, constants.OrderByCategory, constants.OrderByManually:
	default:
		return beavererrors.Validation("order_by", "unknown order %q", by)
	}
	l.mutate(func() bool {
		if l.orderBy == by {
			return false
		}
		l.orderBy = by
		return true
	})
	return nil
}

// Lists returns all sub-lists including deleted ones, sorted by order.
func (l *HabitList) Lists() []ListMeta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := append([]ListMeta(nil), l.lists...)
	sortLists(out)
	return out
}

func sortLists(lists []ListMeta) {
	sort.SliceStable(lists, func(i, j int) bool { return lists[i].Order < lists[j].Order })
}

// AddList creates a sub-list and returns it.
func (l *HabitList) AddList(name string) (ListMeta, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ListMeta{}, beavererrors.Validation("name", "list name is required")
	}
	var meta ListMeta
	l.mutate(func() bool {
		meta = ListMeta{ID: uuid.NewString(), Name: name, Order: len(l.lists)}
		l.lists = append(l.lists, meta)
		return true
	})
	return meta, nil
}

// SetListDeleted flags a sub-list as deleted or restores it. Habits keep
// their list_id either way.
func (l *HabitList) SetListDeleted(id string, deleted bool) error {
	found := false
	l.mutate(func() bool {
		for i := range l.lists {
			if l.lists[i].ID != id {
				continue
			}
			found = true
			if l.lists[i].Deleted == deleted {
				return false
			}
			l.lists[i].Deleted = deleted
			return true
		}
		return false
	})
	if !found {
		return beavererrors.NotFound("list %q", id)
	}
	return nil
}

func (l *HabitList) Backup() Backup {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.backup == nil {
		return Backup{}
	}
	return *l.backup
}

func (l *HabitList) SetBackup(b Backup) {
	l.mutate(func() bool {
		l.backup = &b
		return true
	})
}

func (l *HabitList) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

func (l *HabitList) SetSettings(s Settings) {
	l.mutate(func() bool {
		l.settings = s
		return true
	})
}

// Merge returns a new list holding the union of both lists' habits. Habits
// only present on one side are copied as-is; habits present on both are
// merged with Habit.Merge. List metadata comes from l.
func (l *HabitList) Merge(other *HabitList) *HabitList {
	theirs := make(map[string]*Habit)
	var theirOrder []*Habit
	for _, h := range other.Habits() {
		id := h.ID()
		if _, dup := theirs[id]; dup {
			continue
		}
		theirs[id] = h
		theirOrder = append(theirOrder, h)
	}

	l.mu.RLock()
	out := l.cloneMetaLocked()
	mine := make(map[string]bool, len(l.habits))
	var merged []*Habit
	for _, h := range l.habits {
		mine[h.id] = true
		if o, ok := theirs[h.id]; ok && o != h {
			merged = append(merged, h.cloneLocked().Merge(o))
		} else {
			merged = append(merged, h.cloneLocked())
		}
	}
	l.mu.RUnlock()

	for _, h := range theirOrder {
		if !mine[h.ID()] {
			merged = append(merged, h.clone())
		}
	}
	for _, h := range merged {
		out.attach(h)
		out.habits = append(out.habits, h)
	}
	return out
}

// cloneMetaLocked copies everything except the habits. Callers hold the read lock.
func (l *HabitList) cloneMetaLocked() *HabitList {
	out := &HabitList{
		order:    append([]string(nil), l.order...),
		orderBy:  l.orderBy,
		lists:    append([]ListMeta(nil), l.lists...),
		settings: l.settings,
		extra:    l.extra.clone(),
	}
	if l.backup != nil {
		b := *l.backup
		out.backup = &b
	}
	return out
}

// AlignNames returns a copy of l where each habit whose name matches a habit
// of ref (case-insensitive) carries ref's identifier, so a following Merge
// folds them together. A habit whose identifier is used in ref by a
// differently named habit gets a fresh one.
func (l *HabitList) AlignNames(ref *HabitList) *HabitList {
	byName := make(map[string]string)
	refIDs := make(map[string]bool)
	for _, h := range ref.Habits() {
		refIDs[h.ID()] = true
		key := strings.ToLower(h.Name())
		if _, ok := byName[key]; !ok {
			byName[key] = h.ID()
		}
	}

	l.mu.RLock()
	out := l.cloneMetaLocked()
	habits := make([]*Habit, 0, len(l.habits))
	for _, h := range l.habits {
		habits = append(habits, h.cloneLocked())
	}
	l.mu.RUnlock()

	used := make(map[string]bool)
	taken := func(id string) bool { return refIDs[id] || used[id] }
	for _, h := range habits {
		if id, ok := byName[strings.ToLower(h.name)]; ok {
			h.id = id
		} else if h.id == "" || taken(h.id) {
			h.id = MintID(h.name, taken)
		}
		used[h.id] = true
		out.attach(h)
		out.habits = append(out.habits, h)
	}
	return out
}

func (l *HabitList) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	habits := make([]json.RawMessage, 0, len(l.habits))
	for _, h := range l.habits {
		raw, err := h.encode()
		if err != nil {
			return nil, fmt.Errorf("failed to encode habit %q: %w", h.id, err)
		}
		habits = append(habits, raw)
	}
	order := l.order
	if order == nil {
		order = []string{}
	}
	known := []field{
		{"habits", habits},
		{"order", order},
		{"order_by", l.orderBy},
		{"backup", l.backup},
		{"settings", l.settings},
	}
	if l.lists != nil {
		known = append(known, field{"lists", l.lists})
	}
	if l.orderBy == "" {
		known[2] = field{"order_by", nil}
	}
	return encodeFields(l.extra, known...)
}

// UnmarshalJSON replaces the list contents with the decoded document.
// Habits without an identifier get one minted from their name.
func (l *HabitList) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if _, ok := f["habits"]; !ok {
		return fmt.Errorf("document has no \"habits\" key")
	}

	var habits []*Habit
	if _, err := f.take("habits", &habits); err != nil {
		return err
	}
	var order []string
	if raw, ok := f["order"]; ok {
		delete(f, "order")
		if order, err = decodeOrder(raw); err != nil {
			return err
		}
	}
	var orderBy string
	if _, err := f.take("order_by", &orderBy); err != nil {
		return err
	}
	var lists []ListMeta
	if _, err := f.take("lists", &lists); err != nil {
		return err
	}
	var backup *Backup
	if _, err := f.take("backup", &backup); err != nil {
		return err
	}
	var settings Settings
	if _, err := f.take("settings", &settings); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.habits = nil
	l.order = order
	l.orderBy = constants.OrderBy(strings.ToUpper(orderBy))
	l.lists = lists
	l.backup = backup
	l.settings = settings
	l.extra = f.extra()
	for _, h := range habits {
		if h == nil {
			continue
		}
		if h.id == "" {
			h.id = MintID(h.name, l.hasID)
		}
		l.attach(h)
		l.habits = append(l.habits, h)
	}
	return nil
}

// decodeOrder accepts string or integer identifiers.
func decodeOrder(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("invalid \"order\": %w", err)
	}
	order := make([]string, 0, len(items))
	for _, item := range items {
		id, err := decodeID(item)
		if err != nil {
			return nil, err
		}
		order = append(order, id)
	}
	return order, nil
}
