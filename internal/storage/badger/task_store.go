// Package badger persists the task list in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// Config controls where and how the database is opened.
type Config struct {
	Dir        string        `mapstructure:"dir"`
	InMemory   bool          `mapstructure:"in_memory"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// TaskStore stores the task list under a single key.
type TaskStore struct {
	db       *badger.DB
	logger   *zap.Logger
	cancelGC context.CancelFunc
	gcDone   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config, logger *zap.Logger) (*TaskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.InMemory && strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("badger dir is required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.ValueLogFileSize = 16 << 20
	opts.MemTableSize = 4 << 20
	opts.ValueThreshold = 64 << 10
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 2
	opts.NumLevelZeroTablesStall = 3
	opts.CompactL0OnClose = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Dir, err)
	}

	store := &TaskStore{db: db, logger: logger, gcDone: make(chan struct{})}
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	store.cancelGC = cancel
	if cfg.InMemory {
		close(store.gcDone)
	} else {
		go store.valueLogGC(ctx, interval)
	}
	return store, nil
}

func (s *TaskStore) valueLogGC(ctx context.Context, interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.7)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				s.logger.Warn("badger value log gc failed", zap.Error(err))
			}
		}
	}
}

// Load reads the task list record.
func (s *TaskStore) Load(context.Context) ([]archive.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, errors.New("badger store is closed")
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(archive.TaskListKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read task list: %w", err)
	}

	var tasks []archive.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, false, fmt.Errorf("decode task list: %w", err)
	}
	return tasks, true, nil
}

// Save overwrites the task list record.
func (s *TaskStore) Save(_ context.Context, tasks []archive.Task) error {
	if tasks == nil {
		tasks = []archive.Task{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode task list: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("badger store is closed")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(archive.TaskListKey), raw)
	})
	if err != nil {
		return fmt.Errorf("write task list: %w", err)
	}
	return nil
}

// Close stops value log GC and closes the database.
func (s *TaskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancelGC()
	<-s.gcDone
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
