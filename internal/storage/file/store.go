// Package file stores each user's habit list as <data-dir>/<email>.json.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/julianstephens/beaver/internal/constants"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/storage"
)

const documentSuffix = ".json"

var _ storage.Provider = (*Store)(nil)

type Store struct {
	*storage.Documents
	dir string
}

func New(dir string) *Store {
	s := &Store{dir: dir}
	s.Documents = storage.NewDocuments(string(constants.StorageFile), s)
	return s
}

func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.CloseDocuments(ctx)
}

func (s *Store) Backend() string { return string(constants.StorageFile) }

// SchemaStatus always reports version 0; JSON documents carry no schema version.
func (s *Store) SchemaStatus() (int, int, error) { return 0, 0, nil }

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(email string) string {
	return filepath.Join(s.dir, email+documentSuffix)
}

func (s *Store) EnsureUser(ctx context.Context, email string) (storage.User, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return storage.User{}, err
	}
	if u, err := s.GetUser(ctx, email); err == nil {
		return u, nil
	}
	return storage.User{ID: email, Email: email}, nil
}

func (s *Store) GetUser(ctx context.Context, email string) (storage.User, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return storage.User{}, err
	}
	info, err := os.Stat(s.path(email))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.User{}, beavererrors.NotFound("user %s", email)
		}
		return storage.User{}, fmt.Errorf("failed to stat habit list: %w", err)
	}
	return storage.User{ID: email, Email: email, CreatedAt: info.ModTime()}, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]storage.User, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var users []storage.User
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		email := strings.TrimSuffix(name, documentSuffix)
		if _, err := storage.NormalizeEmail(email); err != nil {
			continue
		}
		u := storage.User{ID: email, Email: email}
		if info, err := e.Info(); err == nil {
			u.CreatedAt = info.ModTime()
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, email string) error {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return err
	}
	return s.RemoveUserHabitList(ctx, storage.User{ID: email, Email: email})
}

// LoadDocument reads the user's file. A missing file is ErrNotFound.
func (s *Store) LoadDocument(ctx context.Context, user storage.User) ([]byte, error) {
	data, err := os.ReadFile(s.path(user.Email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, beavererrors.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// SaveDocument writes through a temporary file in the same directory and
// renames it over the target so readers never see a partial document.
func (s *Store) SaveDocument(ctx context.Context, user storage.User, data []byte) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return fmt.Errorf("failed to format document: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+user.Email+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(user.Email)); err != nil {
		return fmt.Errorf("failed to replace habit list: %w", err)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, user storage.User) error {
	if err := os.Remove(s.path(user.Email)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
