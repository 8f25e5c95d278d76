package storage

import (
	"context"
	"time"

	"github.com/julianstephens/beaver/internal/models"
)

// User identifies the owner of a habit list document.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	// Close waits for in-flight and pending saves, then releases the backend.
	Close(ctx context.Context) error
	// Flush waits until every scheduled save has been attempted.
	Flush(ctx context.Context) error

	// Users
	EnsureUser(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// DeleteUser removes the user and their habit list.
	DeleteUser(ctx context.Context, email string) error

	// Habit lists
	// GetUserHabitList returns the live document of user. Mutations on the
	// returned list are saved automatically. It fails with ErrNotFound when
	// the user has no list yet.
	GetUserHabitList(ctx context.Context, user User) (*models.HabitList, error)
	// InitUserHabitList installs list as the user's document and saves it.
	InitUserHabitList(ctx context.Context, user User, list *models.HabitList) error
	// MergeUserHabitList merges incoming into the user's current list and
	// installs the result as the live document.
	MergeUserHabitList(ctx context.Context, user User, incoming *models.HabitList) (*models.HabitList, error)

	// Utils
	Backend() string
	SchemaStatus() (current, latest int, err error)
}
