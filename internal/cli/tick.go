package cli

import (
	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/render"
)

type TickCmd struct {
	UserFlag
	Habit string  `arg:"" help:"Habit id or name."`
	Date  string  `short:"d" help:"Day to mark: YYYY-MM-DD, today, yesterday or -N (default: today)."`
	Undo  bool    `help:"Mark the day as not done."`
	Skip  bool    `help:"Mark the day as skipped."`
	Note  *string `help:"Note for the day; an empty note clears it."`
}

func (c *TickCmd) Run(ctx *Context) error {
	if c.Undo && c.Skip {
		return beavererrors.Validation("tick", "--undo and --skip cannot be combined")
	}
	day, err := ParseDay(c.Date, ctx.Today())
	if err != nil {
		return err
	}
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}
	h, err := Habit(list, c.Habit)
	if err != nil {
		return err
	}

	state := models.CheckedDone
	switch {
	case c.Undo:
		state = models.CheckedNotDone
	case c.Skip:
		state = models.CheckedSkipped
	}
	rec, err := h.Tick(day, state, c.Note)
	if err != nil {
		return err
	}

	ctx.Printf("Marked %q as %s for %s\n", h.Name(), rec.Done, day)
	if rec.Text != "" {
		ctx.Printf("  Note: %s\n", rec.Text)
	}
	return nil
}

type WeekCmd struct {
	UserFlag
	Today    string `help:"Show the week containing this day (default: today)."`
	Archived bool   `help:"Include archived habits."`
}

func (c *WeekCmd) Run(ctx *Context) error {
	today, err := ParseDay(c.Today, ctx.Today())
	if err != nil {
		return err
	}
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}

	builder := models.NewHabitListBuilder(list)
	if !c.Archived {
		builder = builder.Status(constants.HabitStatusActive)
	}
	ctx.Println(render.Week(builder.Build(), ctx.Engine, today, ctx.FirstDay(list)))
	ctx.Println(render.Legend())
	return nil
}

type HeatmapCmd struct {
	UserFlag
	Habit string `arg:"" help:"Habit id or name."`
	Weeks int    `help:"Number of weeks to show." default:"16"`
	Today string `help:"Last day shown (default: today)."`
}

func (c *HeatmapCmd) Run(ctx *Context) error {
	if c.Weeks < 1 {
		return beavererrors.Validation("weeks", "must be at least 1")
	}
	today, err := ParseDay(c.Today, ctx.Today())
	if err != nil {
		return err
	}
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}
	h, err := Habit(list, c.Habit)
	if err != nil {
		return err
	}
	ctx.Println(render.Heatmap(h, ctx.Engine, today, ctx.FirstDay(list), c.Weeks))
	ctx.Println(render.Legend())
	return nil
}
