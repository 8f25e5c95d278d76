// Package migration applies the numbered SQL files of a backend in order and
// records each applied file, with a checksum, in schema_migrations.
package migration

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Driver selects the SQL dialect of the target database
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

var (
	// ErrNewerSchema means the database was migrated by a newer release.
	ErrNewerSchema = errors.New("database schema is newer than this release")
	// ErrChecksumMismatch means an applied migration file was edited afterwards.
	ErrChecksumMismatch = errors.New("applied migration has changed")
)

// Migration is one numbered SQL file, e.g. 001_init.sql.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

type Runner struct {
	db     *sql.DB
	files  fs.FS
	driver Driver
}

func NewRunner(db *sql.DB, files fs.FS, driver Driver) (*Runner, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	return &Runner{db: db, files: files, driver: driver}, nil
}

func (r *Runner) bind(n int) string {
	if r.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Migrations parses the SQL files, sorted by version.
func (r *Runner) Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(r.files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid version number in filename %s: %w", e.Name(), err)
		}
		if version < 1 {
			return nil, fmt.Errorf("invalid version number in filename %s: version must be at least 1", e.Name())
		}
		data, err := fs.ReadFile(r.files, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data), Checksum: checksum(data)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// Applied returns the recorded checksum of every applied version.
func (r *Runner) Applied(ctx context.Context) (map[int]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		applied[v] = sum
	}
	return applied, rows.Err()
}

// Pending checks the applied versions against the files and returns the
// migrations still to run.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	all, err := r.Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[int]bool, len(all))
	var pending []Migration
	for _, m := range all {
		known[m.Version] = true
		sum, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != m.Checksum {
			return nil, fmt.Errorf("%w: %03d_%s", ErrChecksumMismatch, m.Version, m.Name)
		}
	}
	for v := range applied {
		if !known[v] {
			return nil, fmt.Errorf("%w: version %d is not known (please upgrade beaver)", ErrNewerSchema, v)
		}
	}
	return pending, nil
}

// Apply runs every pending migration in its own transaction and returns how
// many were applied. progress may be nil.
func (r *Runner) Apply(ctx context.Context, progress func(string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		progress("Database schema is up to date")
		return 0, nil
	}

	progress(fmt.Sprintf("Applying %d migration(s)...", len(pending)))
	start := time.Now()
	insert := fmt.Sprintf("INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (%s, %s, %s, %s)",
		r.bind(1), r.bind(2), r.bind(3), r.bind(4))

	for i, m := range pending {
		progress(fmt.Sprintf("  Applying migration %d: %s", m.Version, m.Name))
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return i, fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return i, fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		appliedAt := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, insert, m.Version, m.Name, m.Checksum, appliedAt); err != nil {
			_ = tx.Rollback()
			return i, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return i, fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
		progress(fmt.Sprintf("  ✓ Migration %d applied", m.Version))
	}

	progress(fmt.Sprintf("Applied %d migration(s) in %v", len(pending), time.Since(start).Round(time.Millisecond)))
	return len(pending), nil
}

// Status reports the highest applied and the highest available version.
// Unknown or edited migrations are reported as errors.
func (r *Runner) Status(ctx context.Context) (current, latest int, err error) {
	all, err := r.Migrations()
	if err != nil {
		return 0, 0, err
	}
	if len(all) > 0 {
		latest = all[len(all)-1].Version
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return 0, 0, err
	}
	for v := range applied {
		if v > current {
			current = v
		}
	}
	if len(pending) > 0 && pending[0].Version <= current {
		// A gap below the highest applied version still counts as pending
		current = pending[0].Version - 1
	}
	return current, latest, nil
}
