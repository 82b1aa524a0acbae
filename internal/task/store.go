package task

import (
	"time"

	"github.com/Veraticus/shopsort/internal/model"
)

// Store holds task records keyed by ID. The registry serializes all access,
// so implementations need no locking of their own; swapping in an external
// key-value backend only requires honoring the sweep contract.
type Store interface {
	Get(id string) (*model.Task, bool)
	Put(task *model.Task)
	Delete(id string)
	// Sweep removes terminal tasks not updated since cutoff.
	Sweep(cutoff time.Time)
}

// memStore is the built-in map-backed Store.
type memStore struct {
	tasks map[string]*model.Task
}

// NewMemStore creates an empty in-memory task store.
func NewMemStore() Store {
	return &memStore{tasks: make(map[string]*model.Task)}
}

func (s *memStore) Get(id string) (*model.Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

func (s *memStore) Put(task *model.Task) {
	s.tasks[task.ID] = task
}

func (s *memStore) Delete(id string) {
	delete(s.tasks, id)
}

func (s *memStore) Sweep(cutoff time.Time) {
	for id, t := range s.tasks {
		if t.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}
