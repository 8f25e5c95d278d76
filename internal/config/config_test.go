package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
)

// isolate points the home directory at a temp dir and hides the process
// environment from Load.
func isolate(t *testing.T, env map[string]string) string {
	t.Helper()
	home := t.TempDir()

	oldHome, oldLookup := userHomeDirFunc, lookupEnvFunc
	t.Cleanup(func() {
		userHomeDirFunc, lookupEnvFunc = oldHome, oldLookup
	})
	userHomeDirFunc = func() (string, error) { return home, nil }
	lookupEnvFunc = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t, nil)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage != constants.StorageFile {
		t.Errorf("Storage = %q, want file", cfg.Storage)
	}
	if cfg.FirstDayOfWeek != time.Monday {
		t.Errorf("FirstDayOfWeek = %v, want Monday", cfg.FirstDayOfWeek)
	}
	if want := filepath.Join(home, ".local/share/beaver"); cfg.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty when no file exists", cfg.Path)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	home := isolate(t, map[string]string{
		"BEAVER_LISTEN":            ":9000",
		"BEAVER_FIRST_DAY_OF_WEEK": "sun",
		"BEAVER_DEBUG":             "true",
		"BEAVER_MAX_BACKUPS":       "",
	})
	path := filepath.Join(home, ".config/beaver/config.yaml")
	writeFile(t, path, `
storage: sqlite
database: ~/habits.db
listen: ":8081"
first_day_of_week: 3
max_backups: 5
`)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.Storage != constants.StorageSQLite {
		t.Errorf("Storage = %q, want sqlite", cfg.Storage)
	}
	if want := filepath.Join(home, "habits.db"); cfg.Database != want {
		t.Errorf("Database = %q, want %q", cfg.Database, want)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, env should win over the file", cfg.Listen)
	}
	if cfg.FirstDayOfWeek != time.Sunday {
		t.Errorf("FirstDayOfWeek = %v, want Sunday", cfg.FirstDayOfWeek)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.MaxBackups != 5 {
		t.Errorf("MaxBackups = %d, empty env should not override", cfg.MaxBackups)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	home := isolate(t, nil)

	if _, err := Load(filepath.Join(home, "missing.yaml"), ""); err == nil {
		t.Error("expected error for a missing explicit config file")
	}

	path := filepath.Join(home, "custom.yaml")
	writeFile(t, path, "storage: postgres\ndatabase: postgres://user@db/beaver\n")
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database != "postgres://user@db/beaver" {
		t.Errorf("Database = %q", cfg.Database)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "env.yaml")
	writeFile(t, path, "listen: \":7000\"\n")
	isolate(t, map[string]string{"BEAVER_CONFIG": path})

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want :7000", cfg.Listen)
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t, nil)
	// godotenv writes to the real environment; Load reads through os.LookupEnv
	lookupEnvFunc = os.LookupEnv
	t.Setenv("BEAVER_LISTEN", "")
	os.Unsetenv("BEAVER_LISTEN")

	envFile := filepath.Join(t.TempDir(), ".env")
	writeFile(t, envFile, "BEAVER_LISTEN=:6060\n")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":6060" {
		t.Errorf("Listen = %q, want :6060 from .env", cfg.Listen)
	}

	if _, err := Load("", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage", map[string]string{"BEAVER_STORAGE": "mongo"}},
		{"bad weekday", map[string]string{"BEAVER_FIRST_DAY_OF_WEEK": "9"}},
		{"bad integer", map[string]string{"BEAVER_MAX_BACKUPS": "many"}},
		{"zero backups", map[string]string{"BEAVER_MAX_BACKUPS": "0"}},
		{"bad bool", map[string]string{"BEAVER_DEBUG": "sometimes"}},
		{"bad timezone", map[string]string{"BEAVER_TIMEZONE": "Mars/Olympus"}},
		{"bad log format", map[string]string{"BEAVER_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t, tt.env)
			_, err := Load("", "")
			if !errors.Is(err, beavererrors.ErrValidation) {
				t.Errorf("Load() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{"0", time.Sunday, false},
		{"1", time.Monday, false},
		{"mon", time.Monday, false},
		{"Saturday", time.Saturday, false},
		{"7", 0, true},
		{"someday", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWeekday(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t, nil)
	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/x/y", filepath.Join(home, "x/y")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~user/x", "~user/x"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
