package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/beaver/internal/backup"
	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/config"
	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/keyring"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/storage"
	"github.com/julianstephens/beaver/internal/storage/file"
	"github.com/julianstephens/beaver/internal/storage/postgres"
	"github.com/julianstephens/beaver/internal/storage/sqlite"
	"github.com/julianstephens/beaver/internal/utils"
)

type Context struct {
	Ctx      context.Context
	Config   *config.Config
	Provider storage.Provider
	Engine   *completion.Engine

	Out io.Writer
	In  io.Reader
	// Now is overridden in tests.
	Now func() time.Time
}

// UserFlag selects the user whose habit list a command works on.
type UserFlag struct {
	User string `short:"u" required:"" env:"BEAVER_USER" help:"Email of the user whose habits to use."`
}

func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) Writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Writer(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.Writer(), args...)
}

// Today is the current day in the configured timezone.
func (c *Context) Today() utils.Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return utils.DateOf(now().In(c.Config.Location()))
}

// FirstDay returns the list's first day of week, falling back to the config.
func (c *Context) FirstDay(list *models.HabitList) time.Weekday {
	return list.Settings().WeekStart(c.Config.FirstDayOfWeek)
}

// HabitList returns the user's live list. It fails with ErrNotFound when
// the user has none yet.
func (c *Context) HabitList(email string) (storage.User, *models.HabitList, error) {
	ctx := c.Context()
	user, err := c.Provider.EnsureUser(ctx, email)
	if err != nil {
		return storage.User{}, nil, err
	}
	list, err := c.Provider.GetUserHabitList(ctx, user)
	if err != nil {
		if errors.Is(err, beavererrors.ErrNotFound) {
			return user, nil, beavererrors.NotFound("no habits for %s (add one with 'beaver habit add')", user.Email)
		}
		return user, nil, err
	}
	return user, list, nil
}

// HabitListOrInit is HabitList, creating an empty list for a new user.
func (c *Context) HabitListOrInit(email string) (storage.User, *models.HabitList, error) {
	user, list, err := c.HabitList(email)
	if err == nil || !errors.Is(err, beavererrors.ErrNotFound) {
		return user, list, err
	}
	list = models.NewHabitList()
	if err := c.Provider.InitUserHabitList(c.Context(), user, list); err != nil {
		return user, nil, err
	}
	return user, list, nil
}

// Habit resolves ref as a habit id, then as a name.
func Habit(list *models.HabitList, ref string) (*models.Habit, error) {
	if h, err := list.GetHabitBy(ref); err == nil {
		return h, nil
	}
	return list.GetHabitByName(ref)
}

func (c *Context) BackupManager() *backup.Manager {
	return backup.NewManager(c.Config.BackupDir, c.Config.MaxBackups)
}

// PerformAutomaticBackup snapshots the user's list before a destructive
// command. Failures are logged and do not stop the command.
func (c *Context) PerformAutomaticBackup(user storage.User, list *models.HabitList) {
	if _, err := c.BackupManager().CreateBackup(user.Email, list); err != nil {
		logger.Warn("Automatic backup failed", "user", user.Email, "error", err)
	}
}

// ParseDay accepts YYYY-MM-DD, "today", "yesterday" or a negative offset
// such as "-3".
func ParseDay(s string, today utils.Date) (utils.Date, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	if strings.HasPrefix(s, "-") {
		var n int
		if _, err := fmt.Sscanf(s, "-%d", &n); err == nil && n >= 0 {
			return today.AddDays(-n), nil
		}
	}
	d, err := utils.ParseDate(s)
	if err != nil {
		return utils.Date{}, beavererrors.Validation("date", "invalid date %q (expected YYYY-MM-DD, today, yesterday or -N)", s)
	}
	return d, nil
}

// NewProvider builds the storage backend named by cfg. A PostgreSQL
// connection string comes from the config or, when empty, the OS keyring.
// Strings from the config must not embed a password.
func NewProvider(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage {
	case constants.StorageFile:
		return file.New(cfg.DataDir), nil
	case constants.StorageSQLite:
		return sqlite.NewStore(cfg.Database), nil
	case constants.StoragePostgres:
		connStr := cfg.Database
		if connStr == "" || connStr == constants.DefaultDatabase || !isPostgresConnString(connStr) {
			stored, err := keyring.GetConnectionString()
			if err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					return nil, errors.New("no PostgreSQL connection string configured; set database in the config or run 'beaver keyring set'")
				}
				return nil, fmt.Errorf("failed to read connection string from keyring: %w", err)
			}
			return postgres.New(stored), nil
		}
		if _, err := postgres.ValidateConnString(connStr); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, errors.New("PostgreSQL connection strings with embedded credentials are not allowed; use the OS keyring ('beaver keyring set'), environment variables or .pgpass")
			}
			return nil, err
		}
		return postgres.New(connStr), nil
	}
	return nil, beavererrors.Validation(constants.SettingStorage, "unknown storage %q", cfg.Storage)
}

func isPostgresConnString(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") || strings.Contains(s, "host=")
}
