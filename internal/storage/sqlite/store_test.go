package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/utils"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beaver.db")
	store := NewStore(path)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(ctx)
	})
	return store, path
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	store, path := setupTestStore(t)
	current, latest, err := store.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus() error = %v", err)
	}
	if current != latest || current == 0 {
		t.Errorf("SchemaStatus() = %d, %d", current, latest)
	}

	// A second store on the same file applies nothing new
	again := NewStore(path)
	if err := again.Init(context.Background()); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer again.Close(context.Background())
}

func TestUsers(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	u1, err := store.EnsureUser(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if u1.ID == "" || u1.Email != "alice@example.com" {
		t.Errorf("EnsureUser() = %+v", u1)
	}
	u2, err := store.EnsureUser(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if u1.ID != u2.ID {
		t.Errorf("EnsureUser() minted a second id: %s vs %s", u1.ID, u2.ID)
	}
	if _, err := store.EnsureUser(ctx, "bob@example.com"); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].Email != "alice@example.com" {
		t.Errorf("ListUsers() = %+v", users)
	}

	if _, err := store.GetUser(ctx, "nobody@example.com"); !errors.Is(err, beavererrors.ErrNotFound) {
		t.Errorf("GetUser() error = %v, want not found", err)
	}
}

func TestHabitListRoundTrip(t *testing.T) {
	store, path := setupTestStore(t)
	ctx := context.Background()
	user, _ := store.EnsureUser(ctx, "alice@example.com")

	if _, err := store.GetUserHabitList(ctx, user); !errors.Is(err, beavererrors.ErrNotFound) {
		t.Fatalf("GetUserHabitList() before init error = %v", err)
	}

	list := models.NewHabitList()
	id, _ := list.Add("Run")
	if err := store.InitUserHabitList(ctx, user, list); err != nil {
		t.Fatalf("InitUserHabitList() error = %v", err)
	}
	h, _ := list.GetHabitBy(id)
	if _, err := h.Tick(utils.NewDate(2024, 5, 14), models.CheckedDone, nil); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	flush(t, store)

	var count int
	if err := store.GetDB().QueryRow("SELECT count(*) FROM habit_list").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("habit_list rows = %d, want 1 row per user", count)
	}

	fresh := NewStore(path)
	if err := fresh.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer fresh.Close(ctx)
	loaded, err := fresh.GetUserHabitList(ctx, user)
	if err != nil {
		t.Fatalf("GetUserHabitList() error = %v", err)
	}
	lh, err := loaded.GetHabitBy(id)
	if err != nil {
		t.Fatalf("GetHabitBy() error = %v", err)
	}
	if ticks := lh.TickedDays(); len(ticks) != 1 || ticks[0] != utils.NewDate(2024, 5, 14) {
		t.Errorf("TickedDays() = %v", ticks)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	user, _ := store.EnsureUser(ctx, "alice@example.com")

	if err := store.InitUserHabitList(ctx, user, models.NewHabitList()); err != nil {
		t.Fatalf("InitUserHabitList() error = %v", err)
	}
	flush(t, store)

	if err := store.DeleteUser(ctx, "alice@example.com"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	var count int
	if err := store.GetDB().QueryRow("SELECT count(*) FROM habit_list").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("habit_list rows = %d after delete, want 0", count)
	}
	if _, err := store.GetUser(ctx, "alice@example.com"); !errors.Is(err, beavererrors.ErrNotFound) {
		t.Errorf("GetUser() error = %v", err)
	}
}

func TestForeignKeyEnforced(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.GetDB().Exec("INSERT INTO habit_list (user_id, data, created_at, updated_at) VALUES ('ghost', '{}', '', '')")
	if err == nil {
		t.Error("expected foreign key violation for unknown user")
	}
}
