// Package task tracks asynchronous pipeline runs so HTTP clients can poll
// their status while the work happens in a background goroutine.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/google/uuid"
)

const (
	// defaultTTL is how long a terminal task stays visible to pollers.
	defaultTTL = time.Hour
	// sweepInterval bounds how often the lazy sweep runs.
	sweepInterval = 5 * time.Minute
)

// Registry tracks in-flight and recently finished tasks through a Store.
// Terminal tasks are swept lazily once their TTL passes; there is no
// background goroutine to manage. All store access is serialized here.
type Registry struct {
	logger    *slog.Logger
	store     Store
	lastSweep time.Time
	ttl       time.Duration
	mu        sync.RWMutex
}

// NewRegistry creates a Registry on the in-memory store with the default TTL.
func NewRegistry() *Registry {
	return NewRegistryWithStore(NewMemStore(), defaultTTL)
}

// NewRegistryWithTTL creates an in-memory Registry keeping terminal tasks
// for ttl.
func NewRegistryWithTTL(ttl time.Duration) *Registry {
	return NewRegistryWithStore(NewMemStore(), ttl)
}

// NewRegistryWithStore creates a Registry on the given store.
func NewRegistryWithStore(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		store:     store,
		ttl:       ttl,
		lastSweep: time.Now(),
		logger:    slog.Default().With("component", "task"),
	}
}

// Create registers a new pending task and returns its ID.
func (r *Registry) Create() string {
	now := time.Now()
	t := &model.Task{
		ID:        uuid.New().String(),
		Status:    model.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)
	r.store.Put(t)
	return t.ID
}

// Get returns a snapshot of the task, or common.ErrNotFound.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.store.Get(id)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: task %s", common.ErrNotFound, id)
	}
	return *t, nil
}

// Start marks a task running.
func (r *Registry) Start(id string) {
	r.update(id, func(t *model.Task) {
		t.Status = model.TaskRunning
	})
}

// SetProgress records progress as a percentage. Progress never moves
// backwards; a stale update from a racing reporter is ignored.
func (r *Registry) SetProgress(id string, progress int, message string) {
	r.update(id, func(t *model.Task) {
		if progress > t.Progress {
			t.Progress = progress
		}
		if message != "" {
			t.Message = message
		}
	})
}

// Complete marks a task finished and attaches its result payload.
func (r *Registry) Complete(id string, result json.RawMessage) {
	r.update(id, func(t *model.Task) {
		t.Status = model.TaskComplete
		t.Progress = 100
		t.Result = result
	})
}

// Fail marks a task failed with a user-facing message.
func (r *Registry) Fail(id string, message string) {
	r.update(id, func(t *model.Task) {
		t.Status = model.TaskError
		t.Message = message
	})
}

func (r *Registry) update(id string, mutate func(*model.Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.store.Get(id)
	if !ok {
		r.logger.Warn("update for unknown task", "task_id", id)
		return
	}
	if t.Terminal() {
		return
	}
	mutate(t)
	t.UpdatedAt = time.Now()
	r.store.Put(t)
}

// sweepLocked drops terminal tasks whose TTL has passed. Callers hold the
// write lock.
func (r *Registry) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	r.lastSweep = now
	r.store.Sweep(now.Add(-r.ttl))
}

// Run creates a task and executes fn on a fresh goroutine, recording the
// outcome. The task's context detaches from the caller's request context so
// the work survives the HTTP request that launched it.
func (r *Registry) Run(fn func(ctx context.Context, taskID string) (json.RawMessage, error)) string {
	id := r.Create()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("task panicked", "task_id", id, "panic", rec)
				r.Fail(id, fmt.Sprintf("internal error: %v", rec))
			}
		}()

		r.Start(id)
		result, err := fn(context.Background(), id)
		if err != nil {
			r.logger.Error("task failed", "task_id", id, "error", err)
			r.Fail(id, err.Error())
			return
		}
		r.Complete(id, result)
	}()

	return id
}
