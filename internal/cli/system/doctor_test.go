package system

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/config"
	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/storage/file"
	"github.com/julianstephens/beaver/internal/storage/sqlite"
)

func setupTestDoctor(t *testing.T) (*cli.Context, *bytes.Buffer, string) {
	t.Helper()
	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")

	cfg := config.Default()
	cfg.Storage = constants.StorageFile
	cfg.DataDir = dataDir
	cfg.BackupDir = filepath.Join(tempDir, "backups")

	store := file.New(dataDir)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	engine, err := completion.NewEngine(0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	var out bytes.Buffer
	ctx := &cli.Context{
		Config:   cfg,
		Provider: store,
		Engine:   engine,
		Out:      &out,
	}
	return ctx, &out, dataDir
}

func addHabits(t *testing.T, ctx *cli.Context, email string, names ...string) {
	t.Helper()
	_, list, err := ctx.HabitListOrInit(email)
	if err != nil {
		t.Fatalf("HabitListOrInit() error = %v", err)
	}
	for _, name := range names {
		if _, err := list.Add(name); err != nil {
			t.Fatalf("Add(%q) error = %v", name, err)
		}
	}
	if err := ctx.Provider.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestDoctorCmd_Healthy(t *testing.T) {
	ctx, out, _ := setupTestDoctor(t)
	addHabits(t, ctx, "alice@example.com", "Read", "Run")

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("doctor command failed on healthy storage: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "✓ Habit list of alice@example.com: OK") {
		t.Errorf("output missing habit list check:\n%s", out.String())
	}
}

func TestDoctorCmd_MissingBackups(t *testing.T) {
	ctx, out, _ := setupTestDoctor(t)
	addHabits(t, ctx, "alice@example.com", "Read")

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("doctor command should not fail on missing backups: %v", err)
	}
	if !strings.Contains(out.String(), "⚠ Backups present: WARNING") {
		t.Errorf("expected backup warning:\n%s", out.String())
	}
}

func TestDoctorCmd_UnreadableDocument(t *testing.T) {
	ctx, out, dataDir := setupTestDoctor(t)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "bob@example.com.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	cmd := &DoctorCmd{}
	if err := cmd.Run(ctx); err == nil {
		t.Errorf("doctor should fail on an unreadable document:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "❌ Habit list of bob@example.com: FAIL") {
		t.Errorf("expected habit list failure:\n%s", out.String())
	}
}

func TestDoctorCmd_FixStaleOrder(t *testing.T) {
	ctx, out, dataDir := setupTestDoctor(t)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		t.Fatal(err)
	}
	doc := `{"habits":[{"id":"a1","name":"Read","records":[]}],"order":["a1","gone"]}`
	if err := os.WriteFile(filepath.Join(dataDir, "carol@example.com.json"), []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Fatalf("doctor should report the stale order entry:\n%s", out.String())
	}

	out.Reset()
	if err := (&DoctorCmd{Fix: true}).Run(ctx); err != nil {
		t.Fatalf("doctor --fix error = %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "fixed:") {
		t.Errorf("expected a fix action:\n%s", out.String())
	}
}

func TestDoctorCmd_SQLiteSchema(t *testing.T) {
	tempDir := t.TempDir()
	cfg := config.Default()
	cfg.Storage = constants.StorageSQLite
	cfg.Database = filepath.Join(tempDir, "beaver.db")
	cfg.BackupDir = filepath.Join(tempDir, "backups")

	store := sqlite.NewStore(cfg.Database)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	var out bytes.Buffer
	ctx := &cli.Context{Config: cfg, Provider: store, Out: &out}
	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Errorf("doctor on a fresh sqlite store error = %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "✓ Schema version: OK") {
		t.Errorf("expected schema check:\n%s", out.String())
	}
}

func TestDoctorCmd_UnknownUser(t *testing.T) {
	ctx, out, _ := setupTestDoctor(t)

	cmd := &DoctorCmd{User: "nobody@example.com"}
	if err := cmd.Run(ctx); err == nil {
		t.Errorf("doctor should fail for an unknown user:\n%s", out.String())
	}
}
