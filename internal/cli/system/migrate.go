package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/beaver/internal/cli"
)

// migrator is implemented by the backends that keep a schema.
type migrator interface {
	Migrate(ctx context.Context, progress func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	m, ok := ctx.Provider.(migrator)
	if !ok {
		ctx.Printf("The %s backend has no schema. Nothing to migrate.\n", ctx.Provider.Backend())
		return nil
	}

	count, err := m.Migrate(ctx.Context(), func(msg string) {
		ctx.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
