package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/models"
)

// Persister reads and writes raw habit list documents for one backend.
type Persister interface {
	// LoadDocument returns the stored document or ErrNotFound.
	LoadDocument(ctx context.Context, user User) ([]byte, error)
	SaveDocument(ctx context.Context, user User, data []byte) error
	DeleteDocument(ctx context.Context, user User) error
}

type document struct {
	user User
	list *models.HabitList
	// last is the most recently persisted encoding; equal encodings are not rewritten.
	last []byte
}

// Documents keeps the live habit list of each user in memory and saves it
// through a Persister whenever it changes. Backends embed it to implement
// the habit list half of Provider.
type Documents struct {
	backend string
	p       Persister
	saver   *Saver

	mu   sync.Mutex
	docs map[string]*document

	writes atomic.Int64
}

func NewDocuments(backend string, p Persister) *Documents {
	d := &Documents{
		backend: backend,
		p:       p,
		docs:    make(map[string]*document),
	}
	d.saver = NewSaver(backend, d.persist)
	return d
}

// Writes is the number of documents written to the backend.
func (d *Documents) Writes() int64 { return d.writes.Load() }

func (d *Documents) Flush(ctx context.Context) error {
	return d.saver.Flush(ctx)
}

func (d *Documents) CloseDocuments(ctx context.Context) error {
	return d.saver.Close(ctx)
}

func (d *Documents) GetUserHabitList(ctx context.Context, user User) (*models.HabitList, error) {
	d.mu.Lock()
	if doc, ok := d.docs[user.Email]; ok {
		d.mu.Unlock()
		return doc.list, nil
	}
	d.mu.Unlock()

	data, err := d.p.LoadDocument(ctx, user)
	if err != nil {
		if errors.Is(err, beavererrors.ErrNotFound) {
			return nil, beavererrors.NotFound("habit list of %s", user.Email)
		}
		return nil, fmt.Errorf("failed to load habit list: %w", err)
	}

	list, err := models.ParseHabitList(data)
	if err != nil {
		logger.Warn("Malformed habit list, starting empty", "user", user.Email, "backend", d.backend, "error", err)
		list = models.NewHabitList()
		data = nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// A concurrent load may have won the race
	if doc, ok := d.docs[user.Email]; ok {
		return doc.list, nil
	}
	d.install(user, list, data)
	return list, nil
}

// install makes list the live document of user. Callers hold d.mu.
func (d *Documents) install(user User, list *models.HabitList, persisted []byte) {
	if old, ok := d.docs[user.Email]; ok && old.list != list {
		old.list.SetOnChange(nil)
	}
	d.docs[user.Email] = &document{user: user, list: list, last: persisted}
	key := user.Email
	list.SetOnChange(func() { d.saver.Schedule(key) })
}

func (d *Documents) InitUserHabitList(ctx context.Context, user User, list *models.HabitList) error {
	if list == nil {
		list = models.NewHabitList()
	}
	d.mu.Lock()
	d.install(user, list, nil)
	d.mu.Unlock()
	d.saver.Schedule(user.Email)
	return nil
}

func (d *Documents) MergeUserHabitList(ctx context.Context, user User, incoming *models.HabitList) (*models.HabitList, error) {
	current, err := d.GetUserHabitList(ctx, user)
	if err != nil {
		if !errors.Is(err, beavererrors.ErrNotFound) {
			return nil, err
		}
		current = models.NewHabitList()
	}
	merged := current.Merge(incoming)

	d.mu.Lock()
	var persisted []byte
	if doc, ok := d.docs[user.Email]; ok {
		persisted = doc.last
	}
	d.install(user, merged, persisted)
	d.mu.Unlock()
	d.saver.Schedule(user.Email)
	return merged, nil
}

// forget drops the cached document of email without saving it.
func (d *Documents) forget(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[email]; ok {
		doc.list.SetOnChange(nil)
		delete(d.docs, email)
	}
}

// RemoveUserHabitList forgets the cached document and removes the stored one.
func (d *Documents) RemoveUserHabitList(ctx context.Context, user User) error {
	d.forget(user.Email)
	if err := d.p.DeleteDocument(ctx, user); err != nil && !errors.Is(err, beavererrors.ErrNotFound) {
		return fmt.Errorf("failed to delete habit list: %w", err)
	}
	return nil
}

// persist is the Saver write function.
func (d *Documents) persist(ctx context.Context, key string) error {
	d.mu.Lock()
	doc, ok := d.docs[key]
	d.mu.Unlock()
	if !ok {
		return nil
	}

	data, err := json.Marshal(doc.list)
	if err != nil {
		return fmt.Errorf("%w: failed to encode: %v", beavererrors.ErrStoragePersist, err)
	}

	d.mu.Lock()
	unchanged := bytes.Equal(doc.last, data)
	d.mu.Unlock()
	if unchanged {
		return nil
	}

	if err := d.p.SaveDocument(ctx, doc.user, data); err != nil {
		return fmt.Errorf("%w: %v", beavererrors.ErrStoragePersist, err)
	}

	d.writes.Add(1)
	d.mu.Lock()
	doc.last = data
	d.mu.Unlock()
	return nil
}
