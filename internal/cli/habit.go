package cli

import (
	"fmt"
	"strings"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
)

type HabitCmd struct {
	Add     HabitAddCmd     `cmd:"" help:"Add a new habit."`
	List    HabitListCmd    `cmd:"" help:"List habits."`
	Edit    HabitEditCmd    `cmd:"" help:"Edit a habit."`
	Archive HabitArchiveCmd `cmd:"" help:"Archive a habit."`
	Delete  HabitDeleteCmd  `cmd:"" help:"Delete a habit (soft delete)."`
	Restore HabitRestoreCmd `cmd:"" help:"Restore an archived or deleted habit."`
	Order   HabitOrderCmd   `cmd:"" help:"Set how habits are ordered."`
}

type HabitAddCmd struct {
	UserFlag
	Name   string   `arg:"" help:"Habit name."`
	Tags   []string `help:"Comma-separated tags."`
	Period string   `help:"Target frequency such as 3/1W (three times per week)."`
	Star   bool     `help:"Star the habit."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	name, err := models.ValidateHabitName(c.Name)
	if err != nil {
		return err
	}
	var period *models.HabitFrequency
	if c.Period != "" {
		p, err := models.ParseHabitFrequency(c.Period)
		if err != nil {
			return err
		}
		period = &p
	}

	_, list, err := ctx.HabitListOrInit(c.User)
	if err != nil {
		return err
	}
	if h, err := list.GetHabitByName(name); err == nil && h.Status() != constants.HabitStatusSoftDeleted {
		return beavererrors.Validation("name", "habit with name %q already exists", name)
	}

	id, err := list.Add(name, c.Tags...)
	if err != nil {
		return err
	}
	h, err := list.GetHabitBy(id)
	if err != nil {
		return err
	}
	if err := h.SetPeriod(period); err != nil {
		return err
	}
	h.SetStar(c.Star)

	ctx.Printf("Added habit: %s (%s)\n", name, id)
	return nil
}

type HabitListCmd struct {
	UserFlag
	Archived bool   `help:"Include archived habits."`
	Deleted  bool   `help:"Include deleted habits."`
	List     string `help:"Only show habits of this list id."`
}

func (c *HabitListCmd) Run(ctx *Context) error {
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}

	statuses := []constants.HabitStatus{constants.HabitStatusActive}
	if c.Archived {
		statuses = append(statuses, constants.HabitStatusArchived)
	}
	if c.Deleted {
		statuses = append(statuses, constants.HabitStatusSoftDeleted)
	}
	builder := models.NewHabitListBuilder(list).Status(statuses...)
	if c.List != "" {
		builder = builder.InList(c.List)
	}
	habits := builder.Build()

	if len(habits) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	for _, h := range habits {
		ctx.Println(FormatHabit(h))
	}
	return nil
}

// FormatHabit renders one habit as a single listing line.
func FormatHabit(h *models.Habit) string {
	var b strings.Builder
	if h.Star() {
		b.WriteString("★ ")
	} else {
		b.WriteString("  ")
	}
	fmt.Fprintf(&b, "%s  [%s]", h.Name(), h.ID())
	if p := h.Period(); p != nil {
		fmt.Fprintf(&b, "  %s", p)
	}
	if tags := h.Tags(); len(tags) > 0 {
		fmt.Fprintf(&b, "  #%s", strings.Join(tags, " #"))
	}
	switch h.Status() {
	case constants.HabitStatusArchived:
		b.WriteString(" [ARCHIVED]")
	case constants.HabitStatusSoftDeleted:
		b.WriteString(" [DELETED]")
	}
	return b.String()
}

type HabitEditCmd struct {
	UserFlag
	Habit      string   `arg:"" help:"Habit id or name."`
	Name       *string  `help:"New name."`
	Star       *bool    `help:"Star or unstar the habit (--star=false unstars)."`
	Period     *string  `help:"Target frequency such as 3/1W; 'none' clears it."`
	Tags       []string `help:"Replace the tags."`
	ClearTags  bool     `help:"Remove all tags."`
	WeeklyGoal *int     `help:"Days per week to aim for (0-7)."`
	List       *string  `help:"Move the habit into a list; empty removes it from its list."`
}

func (c *HabitEditCmd) Run(ctx *Context) error {
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}
	h, err := Habit(list, c.Habit)
	if err != nil {
		return err
	}

	// Validate everything before the first change
	var name string
	if c.Name != nil {
		if name, err = models.ValidateHabitName(*c.Name); err != nil {
			return err
		}
	}
	var period *models.HabitFrequency
	if c.Period != nil && !strings.EqualFold(*c.Period, "none") {
		p, err := models.ParseHabitFrequency(*c.Period)
		if err != nil {
			return err
		}
		period = &p
	}
	if c.WeeklyGoal != nil && (*c.WeeklyGoal < 0 || *c.WeeklyGoal > constants.MaxWeeklyGoal) {
		return beavererrors.Validation("weekly_goal", "weekly goal must be between 0 and %d", constants.MaxWeeklyGoal)
	}

	updated := false
	if c.Name != nil {
		if err := h.SetName(name); err != nil {
			return err
		}
		updated = true
	}
	if c.Star != nil {
		h.SetStar(*c.Star)
		updated = true
	}
	if c.Period != nil {
		if err := h.SetPeriod(period); err != nil {
			return err
		}
		updated = true
	}
	if len(c.Tags) > 0 || c.ClearTags {
		h.SetTags(c.Tags)
		updated = true
	}
	if c.WeeklyGoal != nil {
		if err := h.SetWeeklyGoal(*c.WeeklyGoal); err != nil {
			return err
		}
		updated = true
	}
	if c.List != nil {
		if *c.List == "" {
			h.SetListID(nil)
		} else {
			h.SetListID(c.List)
		}
		updated = true
	}

	if !updated {
		ctx.Println("No changes specified.")
		return nil
	}
	ctx.Printf("Updated habit: %s\n", FormatHabit(h))
	return nil
}

func setStatus(ctx *Context, user, ref string, status constants.HabitStatus, verb string) error {
	_, list, err := ctx.HabitList(user)
	if err != nil {
		return err
	}
	h, err := Habit(list, ref)
	if err != nil {
		return err
	}
	if err := h.SetStatus(status); err != nil {
		return err
	}
	ctx.Printf("%s habit: %s\n", verb, h.Name())
	return nil
}

type HabitArchiveCmd struct {
	UserFlag
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitArchiveCmd) Run(ctx *Context) error {
	return setStatus(ctx, c.User, c.Habit, constants.HabitStatusArchived, "Archived")
}

type HabitDeleteCmd struct {
	UserFlag
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	return setStatus(ctx, c.User, c.Habit, constants.HabitStatusSoftDeleted, "Deleted")
}

type HabitRestoreCmd struct {
	UserFlag
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitRestoreCmd) Run(ctx *Context) error {
	return setStatus(ctx, c.User, c.Habit, constants.HabitStatusActive, "Restored")
}

type HabitOrderCmd struct {
	UserFlag
	By  string   `help:"Order by name, category or manually."`
	IDs []string `arg:"" optional:"" help:"Habit ids in manual order."`
}

func (c *HabitOrderCmd) Run(ctx *Context) error {
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}
	if c.By != "" {
		if err := list.SetOrderBy(constants.OrderBy(strings.ToUpper(c.By))); err != nil {
			return err
		}
	}
	if len(c.IDs) > 0 {
		for _, id := range c.IDs {
			if _, err := list.GetHabitBy(id); err != nil {
				return err
			}
		}
		list.SetOrder(c.IDs)
	}
	ctx.Printf("Order: %s\n", list.OrderBy())
	for _, h := range models.NewHabitListBuilder(list).Build() {
		ctx.Println(FormatHabit(h))
	}
	return nil
}
