package system

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/storage"
	"github.com/julianstephens/beaver/internal/storage/file"
	"github.com/julianstephens/beaver/internal/storage/postgres"
	"github.com/julianstephens/beaver/internal/storage/sqlite"
)

type InitCmd struct {
	Force  bool   `help:"Delete every existing user and habit list before initialization."`
	Source string `help:"Data directory, SQLite database or PostgreSQL connection string to copy habit lists from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	location := storageLocation(ctx)
	if c.Force && c.Source != "" && samePath(c.Source, location) {
		return fmt.Errorf("cannot use --force when source and destination are the same: %s", location)
	}

	if err := ctx.Provider.Init(ctx.Context()); err != nil {
		return err
	}
	ctx.Printf("Initialized beaver storage (%s) at: %s\n", ctx.Provider.Backend(), location)

	if c.Force {
		n, err := deleteAllUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset storage: %w", err)
		}
		ctx.Printf("Deleted %d existing user(s)\n", n)
	}

	if c.Source != "" {
		ctx.Printf("Migrating data from: %s\n", c.Source)
		if err := c.migrateData(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		ctx.Println("Migration completed successfully!")
	}
	return nil
}

func storageLocation(ctx *cli.Context) string {
	if ctx.Config == nil {
		return ctx.Provider.Backend()
	}
	switch ctx.Config.Storage {
	case constants.StorageFile:
		return ctx.Config.DataDir
	case constants.StorageSQLite:
		return ctx.Config.Database
	}
	return "PostgreSQL database"
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func deleteAllUsers(ctx *cli.Context) (int, error) {
	users, err := ctx.Provider.ListUsers(ctx.Context())
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		if err := ctx.Provider.DeleteUser(ctx.Context(), u.Email); err != nil {
			return 0, fmt.Errorf("failed to delete user %s: %w", u.Email, err)
		}
	}
	return len(users), nil
}

// openSource picks the backend for a --source value: a PostgreSQL
// connection string, a data directory, or a SQLite database file.
func openSource(source string) (storage.Provider, error) {
	if strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://") || strings.Contains(source, "host=") {
		if _, err := postgres.ValidateConnString(source); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, fmt.Errorf("PostgreSQL source connection string contains embedded credentials. Use environment variables or .pgpass instead")
			}
			return nil, err
		}
		return postgres.New(source), nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("source not found: %w", err)
	}
	if info.IsDir() {
		return file.New(source), nil
	}
	return sqlite.NewStore(source), nil
}

func (c *InitCmd) migrateData(ctx *cli.Context) error {
	src, err := openSource(c.Source)
	if err != nil {
		return err
	}
	if err := src.Init(ctx.Context()); err != nil {
		return fmt.Errorf("failed to load source storage: %w", err)
	}
	defer src.Close(ctx.Context())

	users, err := src.ListUsers(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to list source users: %w", err)
	}

	lists := 0
	for _, u := range users {
		dst, err := ctx.Provider.EnsureUser(ctx.Context(), u.Email)
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", u.Email, err)
		}

		list, err := src.GetUserHabitList(ctx.Context(), u)
		if err != nil {
			if errors.Is(err, beavererrors.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to read habit list of %s: %w", u.Email, err)
		}
		// The copy gets its own change hook in the destination
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("failed to copy habit list of %s: %w", u.Email, err)
		}
		copied, err := models.ParseHabitList(data)
		if err != nil {
			return fmt.Errorf("failed to copy habit list of %s: %w", u.Email, err)
		}
		if err := ctx.Provider.InitUserHabitList(ctx.Context(), dst, copied); err != nil {
			return fmt.Errorf("failed to save habit list of %s: %w", u.Email, err)
		}
		ctx.Printf("  Migrated %s (%d habits)\n", u.Email, copied.Len())
		lists++
	}
	ctx.Printf("    Migrated %d users, %d habit lists\n", len(users), lists)
	return nil
}
