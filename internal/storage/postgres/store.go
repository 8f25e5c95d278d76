// Package postgres stores habit list documents in PostgreSQL, one JSONB row per user.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq"

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
	connStr string
	db      *sql.DB
}

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

func New(connStr string) *Store {
	s := &Store{
		connStr: connStr,
	}
	s.Documents = storage.NewDocuments(string(constants.StoragePostgres), s)
	s.ensureSearchPath()
	return s
}

func isURL(connStr string) bool {
	return strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://")
}

// ensureSearchPath pins the session to the beaver schema unless the
// caller already chose one.
func (s *Store) ensureSearchPath() {
	if hasParam(s.connStr, "search_path") {
		return
	}
	if !isURL(s.connStr) {
		s.connStr = strings.TrimSpace(s.connStr) + " search_path=" + constants.AppName
		return
	}
	u, err := url.Parse(s.connStr)
	if err != nil {
		logger.Warn("Failed to parse Postgres connection string", "error", err)
		return
	}
	q := u.Query()
	q.Set("search_path", constants.AppName)
	u.RawQuery = q.Encode()
	s.connStr = u.String()
}

// hasParam reports whether key is set in either the URL query or the
// space separated key=value form. Keys compare case-insensitively.
func hasParam(connStr, key string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for k := range u.Query() {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	for _, field := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// dsnPassword reports whether a key=value connection string carries a password.
func dsnPassword(connStr string) bool {
	for _, field := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "password") {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr parses as a PostgreSQL URL or
// key=value string. Passwords belong in the keyring or PGPASSFILE, so an
// embedded one is reported as ErrEmbeddedCredentials.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	if !isURL(connStr) {
		if dsnPassword(connStr) {
			return false, ErrEmbeddedCredentials
		}
		return true, nil
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}
	if _, set := u.User.Password(); set {
		return false, ErrEmbeddedCredentials
	}
	if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
		return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
	}
	return true, nil
}

// Init connects, creates the schema if needed and applies pending migrations.
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

	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool parameters to avoid connection exhaustion
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasParam(s.connStr, "sslmode") {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.AppName); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.db = db
	return nil
}

// Migrate connects if needed and applies pending migrations, reporting
// each step to progress. It returns the number applied.
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

// Close waits for pending saves, then closes the connection pool.
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

func (s *Store) Backend() string { return string(constants.StoragePostgres) }

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverPostgres)
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

func (s *Store) EnsureUser(ctx context.Context, email string) (storage.User, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return storage.User{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), email)
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
	err = s.db.QueryRowContext(ctx, "SELECT id, email, created_at FROM users WHERE email = $1", email).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, beavererrors.NotFound("user %s", email)
		}
		return storage.User{}, fmt.Errorf("failed to get user: %w", err)
	}
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
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
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
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", u.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *Store) LoadDocument(ctx context.Context, user storage.User) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM habit_list WHERE user_id = $1", user.ID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, beavererrors.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) SaveDocument(ctx context.Context, user storage.User, data []byte) error {
	if s.db == nil {
		return fmt.Errorf("storage not initialized")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_list (user_id, data)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (user_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()`,
		user.ID, string(data))
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, user storage.User) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM habit_list WHERE user_id = $1", user.ID)
	return err
}
