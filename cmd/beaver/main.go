package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/cli/backups"
	"github.com/julianstephens/beaver/internal/cli/settings"
	"github.com/julianstephens/beaver/internal/cli/system"
	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/config"
	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
)

const closeTimeout = 10 * time.Second

var CLI struct {
	Version    kong.VersionFlag
	ConfigFile string `name:"config" help:"Config file path (default: ~/.config/beaver/config.yaml)." type:"path"`
	EnvFile    string `help:"Dotenv file with BEAVER_* settings." default:".env"`
	Storage    string `help:"Storage backend: file, sqlite or postgres (overrides the config)."`
	Database   string `help:"SQLite path or PostgreSQL connection string (overrides the config). PostgreSQL credentials must NOT be embedded; use the OS keyring or .pgpass."`
	DataDir    string `help:"Directory of the file backend (overrides the config)."`
	Debug      bool   `help:"Log debug output to stderr."`

	Init    system.InitCmd    `cmd:"" help:"Initialize beaver storage."`
	Migrate system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor  system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Serve   system.ServeCmd   `cmd:"" help:"Run the HTTP API."`
	Token   system.TokenCmd   `cmd:"" help:"Issue an API token for a user."`

	Habit   cli.HabitCmd   `cmd:"" help:"Manage habits."`
	Tick    cli.TickCmd    `cmd:"" help:"Mark a habit for a day."`
	Week    cli.WeekCmd    `cmd:"" help:"Show the completion grid of a week." default:"withargs"`
	Heatmap cli.HeatmapCmd `cmd:"" help:"Show a habit's completion over several weeks."`
	Import  cli.ImportCmd  `cmd:"" help:"Merge habits from a JSON or CSV file."`
	Export  cli.ExportCmd  `cmd:"" help:"Export habits as JSON or CSV."`

	Backup struct {
		Create   backups.BackupCreateCmd   `cmd:"" help:"Create a manual backup." default:"withargs"`
		List     backups.BackupListCmd     `cmd:"" help:"List available backups."`
		Restore  backups.BackupRestoreCmd  `cmd:"" help:"Restore from a backup."`
		Telegram backups.BackupTelegramCmd `cmd:"" help:"Send the habit list to the configured Telegram chat."`
	} `cmd:"" help:"Manage habit list backups."`
	Settings settings.SettingsCmd `cmd:"" help:"Manage per-user settings."`
	Keyring  struct {
		Set          system.KeyringSetCmd          `cmd:"" help:"Store a PostgreSQL connection string in the OS keyring."`
		Get          system.KeyringGetCmd          `cmd:"" help:"Show the stored connection string."`
		Delete       system.KeyringDeleteCmd       `cmd:"" help:"Remove the stored connection string."`
		SetSecret    system.KeyringSetSecretCmd    `cmd:"" help:"Store the API token signing secret."`
		DeleteSecret system.KeyringDeleteSecretCmd `cmd:"" help:"Remove the API token signing secret."`
		Status       system.KeyringStatusCmd       `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage credentials in the OS keyring."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with streaks, weekly targets and an HTTP API"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := loadConfig()
	if err != nil {
		exit(err)
	}

	command := kctx.Command()
	if err := logger.Init(logger.Config{
		Debug:  cfg.Debug,
		LogDir: cfg.LogDir,
		Stderr: strings.HasPrefix(command, "serve"),
		JSON:   cfg.LogFormat == constants.LogFormatJSON,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	engine, err := completion.NewEngine(cfg.CacheSize)
	if err != nil {
		exit(err)
	}

	appCtx := &cli.Context{
		Ctx:    context.Background(),
		Config: cfg,
		Engine: engine,
		Out:    os.Stdout,
		In:     os.Stdin,
	}

	// Keyring commands never touch storage
	if strings.HasPrefix(command, "keyring") {
		if err := kctx.Run(appCtx); err != nil {
			exit(err)
		}
		return
	}

	provider, err := cli.NewProvider(cfg)
	if err != nil {
		exit(err)
	}
	appCtx.Provider = provider

	// init and migrate open storage themselves
	if !strings.HasPrefix(command, "init") && !strings.HasPrefix(command, "migrate") {
		if err := provider.Init(appCtx.Ctx); err != nil {
			exit(err)
		}
	}

	runErr := kctx.Run(appCtx)

	// Mutations are saved in the background; wait for them before exiting
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := provider.Close(closeCtx); err != nil {
		logger.Error("Failed to save habit lists", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("failed to save changes: %w", err)
		}
	}

	if runErr != nil {
		exit(runErr)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.ConfigFile, CLI.EnvFile)
	if err != nil {
		return nil, err
	}
	if CLI.Storage != "" {
		cfg.Storage = constants.StorageType(strings.ToLower(CLI.Storage))
	}
	if CLI.Database != "" {
		cfg.Database = CLI.Database
		if cfg.Storage != constants.StoragePostgres {
			cfg.Database = config.ExpandPath(cfg.Database)
		}
	}
	if CLI.DataDir != "" {
		cfg.DataDir = config.ExpandPath(CLI.DataDir)
	}
	if CLI.Debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exit(err error) {
	if logger.Logger != nil {
		beavererrors.Fatal(err)
	}
	fmt.Fprintln(os.Stderr, beavererrors.Format(err))
	os.Exit(1)
}
