package cli

import (
	"errors"
	"fmt"
	"os"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/importer"
)

type ImportCmd struct {
	UserFlag
	Path   string `arg:"" type:"existingfile" help:"JSON or CSV file to import."`
	Format string `help:"json or csv (default: from the file extension)."`
}

// Run merges the file into the user's list. Habits are matched by name;
// existing records are never dropped.
func (c *ImportCmd) Run(ctx *Context) error {
	format, err := c.format()
	if err != nil {
		return err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Path, err)
	}
	defer f.Close()

	incoming, err := importer.Parse(f, format)
	if err != nil {
		return err
	}

	user, current, err := ctx.HabitList(c.User)
	if err != nil {
		if !errors.Is(err, beavererrors.ErrNotFound) {
			return err
		}
		_, current, err = ctx.HabitListOrInit(c.User)
		if err != nil {
			return err
		}
	} else {
		ctx.PerformAutomaticBackup(user, current)
	}

	merged, err := ctx.Provider.MergeUserHabitList(ctx.Context(), user, incoming.AlignNames(current))
	if err != nil {
		return err
	}
	ctx.Printf("Imported %d habits from %s (%d total)\n", incoming.Len(), c.Path, merged.Len())
	return nil
}

func (c *ImportCmd) format() (importer.Format, error) {
	if c.Format != "" {
		return importer.ParseFormat(c.Format)
	}
	return importer.FormatFromPath(c.Path)
}

type ExportCmd struct {
	UserFlag
	Format string `help:"json or csv." default:"json"`
	Output string `short:"o" help:"Write to this file instead of stdout."`
}

func (c *ExportCmd) Run(ctx *Context) error {
	format, err := importer.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}

	if c.Output == "" {
		return importer.Export(ctx.Writer(), list, format)
	}

	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.Output, err)
	}
	if err := importer.Export(f, list, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Output, err)
	}
	ctx.Printf("Exported %d habits to %s\n", list.Len(), c.Output)
	return nil
}
