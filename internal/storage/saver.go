package storage

import (
	"context"
	"sync"
	"sync/atomic"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
)

// WriteFunc persists the current document of key.
type WriteFunc func(ctx context.Context, key string) error

type saveTask struct {
	running bool
	pending bool
}

// Saver runs at most one save per key at a time. Schedule calls made while
// a save is running coalesce into a single follow-up save, so a burst of
// mutations produces one or two writes regardless of its size.
type Saver struct {
	backend string
	write   WriteFunc

	mu     sync.Mutex
	tasks  map[string]*saveTask
	active int
	idle   chan struct{}
	closed bool

	saves    atomic.Int64
	failures atomic.Int64
}

func NewSaver(backend string, write WriteFunc) *Saver {
	idle := make(chan struct{})
	close(idle)
	return &Saver{
		backend: backend,
		write:   write,
		tasks:   make(map[string]*saveTask),
		idle:    idle,
	}
}

// Schedule requests a save of key. It never blocks on I/O.
func (s *Saver) Schedule(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logger.Warn("Save requested after shutdown", "user", key, "backend", s.backend)
		return
	}
	t, ok := s.tasks[key]
	if !ok {
		t = &saveTask{}
		s.tasks[key] = t
	}
	if t.running {
		t.pending = true
		return
	}
	t.running = true
	if s.active == 0 {
		s.idle = make(chan struct{})
	}
	s.active++
	go s.run(key, t)
}

func (s *Saver) run(key string, t *saveTask) {
	ctx := context.Background()
	for {
		s.mu.Lock()
		t.pending = false
		s.mu.Unlock()

		if err := s.write(ctx, key); err != nil {
			s.failures.Add(1)
			logger.Error("Failed to save habit list",
				"user", key,
				"backend", s.backend,
				"kind", beavererrors.Kind(err),
				"error", err,
			)
		} else {
			s.saves.Add(1)
		}

		s.mu.Lock()
		if !t.pending {
			t.running = false
			delete(s.tasks, key)
			s.active--
			if s.active == 0 {
				close(s.idle)
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Flush waits until no save is running or ctx is done.
func (s *Saver) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.idle
		active := s.active
		s.mu.Unlock()
		if active == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close rejects further saves and waits for the running ones.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush(ctx)
}

// Saves is the number of successful writes.
func (s *Saver) Saves() int64 { return s.saves.Load() }

// Failures is the number of failed writes.
func (s *Saver) Failures() int64 { return s.failures.Load() }
