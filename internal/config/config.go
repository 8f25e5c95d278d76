// Package config loads beaver's settings.
//
// Values are resolved in this order, later sources winning:
//   - built-in defaults
//   - the YAML file named by --config or BEAVER_CONFIG
//     (~/.config/beaver/config.yaml when present)
//   - BEAVER_* environment variables, optionally loaded from a .env file
//   - command line flags, applied by the caller
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
)

var (
	userHomeDirFunc = os.UserHomeDir
	lookupEnvFunc   = os.LookupEnv
)

type Config struct {
	Storage        constants.StorageType `yaml:"storage"`
	DataDir        string                `yaml:"data_dir"`
	Database       string                `yaml:"database"`
	Listen         string                `yaml:"listen"`
	TokenSecret    string                `yaml:"token_secret"`
	FirstDayOfWeek time.Weekday          `yaml:"first_day_of_week"`
	Timezone       string                `yaml:"timezone"`
	LogDir         string                `yaml:"log_dir"`
	LogFormat      string                `yaml:"log_format"`
	Debug          bool                  `yaml:"debug"`
	BackupDir      string                `yaml:"backup_dir"`
	MaxBackups     int                   `yaml:"max_backups"`
	CacheSize      int                   `yaml:"cache_size"`

	// Path is the file the config was read from, empty when none was.
	Path string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Storage:        constants.DefaultStorage,
		DataDir:        constants.DefaultDataDir,
		Database:       constants.DefaultDatabase,
		Listen:         constants.DefaultListen,
		FirstDayOfWeek: constants.DefaultFirstDayOfWeek,
		Timezone:       "Local",
		LogDir:         constants.DefaultLogDir,
		LogFormat:      constants.LogFormatText,
		BackupDir:      constants.DefaultBackupDir,
		MaxBackups:     constants.DefaultMaxBackups,
		CacheSize:      constants.DefaultCompletionCacheSize,
	}
}

// Load resolves the configuration. path may be empty. envFile names a
// dotenv file to load first; a missing file is ignored.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()

	explicit := true
	if path == "" {
		path, _ = lookupEnvFunc(constants.EnvConfigFile)
	}
	if path == "" {
		path = constants.DefaultConfigFile
		explicit = false
	}
	path = ExpandPath(path)
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	} else {
		cfg.Path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func env(key string) (string, bool) {
	v, ok := lookupEnvFunc(constants.EnvPrefix + strings.ToUpper(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// applyEnv overrides file values with BEAVER_<KEY> variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		constants.SettingDataDir:     &c.DataDir,
		constants.SettingDatabase:    &c.Database,
		constants.SettingListen:      &c.Listen,
		constants.SettingTokenSecret: &c.TokenSecret,
		constants.SettingTimezone:    &c.Timezone,
		constants.SettingLogDir:      &c.LogDir,
		constants.SettingLogFormat:   &c.LogFormat,
		constants.SettingBackupDir:   &c.BackupDir,
	}
	for key, dst := range strs {
		if v, ok := env(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		constants.SettingMaxBackups: &c.MaxBackups,
		constants.SettingCacheSize:  &c.CacheSize,
	}
	for key, dst := range ints {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return beavererrors.Validation(key, "must be an integer, got %q", v)
			}
			*dst = n
		}
	}

	if v, ok := env(constants.SettingStorage); ok {
		c.Storage = constants.StorageType(strings.ToLower(v))
	}
	if v, ok := env(constants.SettingFirstDayOfWeek); ok {
		day, err := ParseWeekday(v)
		if err != nil {
			return err
		}
		c.FirstDayOfWeek = day
	}
	if v, ok := env(constants.SettingDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return beavererrors.Validation(constants.SettingDebug, "must be a boolean, got %q", v)
		}
		c.Debug = b
	}
	return nil
}

func (c *Config) expandPaths() {
	c.DataDir = ExpandPath(c.DataDir)
	c.LogDir = ExpandPath(c.LogDir)
	c.BackupDir = ExpandPath(c.BackupDir)
	if c.Storage != constants.StoragePostgres {
		c.Database = ExpandPath(c.Database)
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Storage {
	case constants.StorageFile, constants.StorageSQLite, constants.StoragePostgres:
	default:
		return beavererrors.Validation(constants.SettingStorage, "unknown storage %q (expected file, sqlite or postgres)", c.Storage)
	}
	if c.FirstDayOfWeek < time.Sunday || c.FirstDayOfWeek > time.Saturday {
		return beavererrors.Validation(constants.SettingFirstDayOfWeek, "must be between 0 (Sunday) and 6 (Saturday)")
	}
	switch c.LogFormat {
	case constants.LogFormatText, constants.LogFormatJSON:
	default:
		return beavererrors.Validation(constants.SettingLogFormat, "unknown log format %q (expected text or json)", c.LogFormat)
	}
	if c.MaxBackups < 1 {
		return beavererrors.Validation(constants.SettingMaxBackups, "must be at least 1")
	}
	if c.CacheSize < 0 {
		return beavererrors.Validation(constants.SettingCacheSize, "must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil && c.Timezone != "Local" && c.Timezone != "" {
		return beavererrors.Validation(constants.SettingTimezone, "unknown timezone %q", c.Timezone)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseWeekday accepts 0-6 (0 = Sunday) or a weekday name such as "mon".
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, beavererrors.Validation(constants.SettingFirstDayOfWeek, "must be between 0 (Sunday) and 6 (Saturday)")
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, beavererrors.Validation(constants.SettingFirstDayOfWeek, "invalid weekday %q", s)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := userHomeDirFunc()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
