// Package memory keeps the task list and blob content in-memory for
// development and tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Object is a stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore implements archive.BlobStore in memory. URIs use the memory://
// scheme.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore returns an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: map[string]Object{}}
}

// PutObject reads r fully and stores it at path, replacing any previous
// object.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	if path == "" {
		return "", errors.New("object path is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", path, err)
	}
	s.mu.Lock()
	s.objects[path] = Object{ContentType: contentType, Data: data}
	s.mu.Unlock()
	return "memory://" + path, nil
}

// Get returns a copy of the object at path.
func (s *BlobStore) Get(path string) (Object, bool) {
	s.mu.RLock()
	obj, ok := s.objects[path]
	s.mu.RUnlock()
	if ok {
		obj.Data = bytes.Clone(obj.Data)
	}
	return obj, ok
}

// Len returns the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
