package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// TaskStore keeps the task list as a JSON file named after the record key.
type TaskStore struct {
	mu   sync.Mutex
	path string
}

// NewTaskStore prepares cfg.BaseDir and returns a store writing
// <base_dir>/tasks.json.
func NewTaskStore(cfg Config) (*TaskStore, error) {
	dir, err := prepareDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	return &TaskStore{path: filepath.Join(dir, archive.TaskListKey+".json")}, nil
}

// Path returns the file backing the store.
func (s *TaskStore) Path() string {
	return s.path
}

// Load reads the task list. A missing file reports found=false.
func (s *TaskStore) Load(context.Context) ([]archive.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read task list: %w", err)
	}
	var tasks []archive.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, false, fmt.Errorf("decode task list %s: %w", s.path, err)
	}
	return tasks, true, nil
}

// Save replaces the file with the encoded list.
func (s *TaskStore) Save(_ context.Context, tasks []archive.Task) error {
	if tasks == nil {
		tasks = []archive.Task{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode task list: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write task list: %w", err)
	}
	return nil
}
