package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// TaskStore keeps the task list record in-process.
type TaskStore struct {
	mu    sync.RWMutex
	tasks []archive.Task
	found bool
	saves int
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{}
}

// Load returns a deep copy of the last saved list.
func (s *TaskStore) Load(context.Context) ([]archive.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.found {
		return nil, false, nil
	}
	return archive.CloneTasks(s.tasks), true, nil
}

// Save overwrites the stored list.
func (s *TaskStore) Save(_ context.Context, tasks []archive.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = archive.CloneTasks(tasks)
	s.found = true
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *TaskStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
