// Package sqlite stores habit list documents in a SQLite database, one row per user.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/migration"
	"github.com/julianstephens/beaver/internal/storage"
	"github.com/julianstephens/beaver/migrations"
)

var _ storage.Provider = (*Store)(nil)

type Store struct {
	*storage.Documents
	path string
	db   *sql.DB
}

func NewStore(path string) *Store {
	s := &Store{path: path}
	s.Documents = storage.NewDocuments(string(constants.StorageSQLite), s)
	return s
}

// Init opens the database, creating it if needed, and applies pending migrations.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.Migrate(ctx, func(msg string) {
		logger.Info(msg, "backend", s.Backend())
	})
	return err
}

func (s *Store) open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	// Create data directory if it doesn't exist
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps saves from contending.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	return nil
}

// Migrate opens the database if needed and applies pending migrations,
// reporting each step to progress. It returns the number applied.
func (s *Store) Migrate(ctx context.Context, progress func(string)) (int, error) {
	if err := s.open(ctx); err != nil {
		return 0, err
	}
	runner, err := s.runner()
	if err != nil {
		return 0, err
	}
	n, err := runner.Apply(ctx, progress)
	if err != nil {
		return n, fmt.Errorf("failed to run migrations: %w", err)
	}
	return n, nil
}

// Close waits for pending saves, then closes the database.
func (s *Store) Close(ctx context.Context) error {
	err := s.CloseDocuments(ctx)
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.db = nil
	}
	return err
}

func (s *Store) Backend() string { return string(constants.StorageSQLite) }

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverSQLite)
}

func (s *Store) SchemaStatus() (int, int, error) {
	if s.db == nil {
		return 0, 0, fmt.Errorf("storage not initialized")
	}
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	return runner.Status(context.Background())
}

// GetDB returns the underlying database connection, or nil before Init.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

func (s *Store) EnsureUser(ctx context.Context, email string) (storage.User, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return storage.User{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		uuid.NewString(), email, now, now)
	if err != nil {
		return storage.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUser(ctx, email)
}

func (s *Store) GetUser(ctx context.Context, email string) (storage.User, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return storage.User{}, err
	}
	var u storage.User
	var createdAt string
	err = s.db.QueryRowContext(ctx, "SELECT id, email, created_at FROM users WHERE email = ?", email).
		Scan(&u.ID, &u.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, beavererrors.NotFound("user %s", email)
		}
		return storage.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]storage.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, created_at FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		var u storage.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Email, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes the user row; the habit_list row goes with it.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	u, err := s.GetUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.RemoveUserHabitList(ctx, u); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", u.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *Store) LoadDocument(ctx context.Context, user storage.User) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM habit_list WHERE user_id = ?", user.ID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, beavererrors.ErrNotFound
		}
		return nil, err
	}
	return []byte(data), nil
}

func (s *Store) SaveDocument(ctx context.Context, user storage.User, data []byte) error {
	if s.db == nil {
		return fmt.Errorf("storage not initialized")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_list (user_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		user.ID, string(data), now, now)
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, user storage.User) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM habit_list WHERE user_id = ?", user.ID)
	return err
}
