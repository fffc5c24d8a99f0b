package blobstore

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		_ = args
		return NewMemory(), nil
	})
}

// NewMemory returns an in-process Store. Used in tests and as a scratch
// store; contents are lost on exit.
func NewMemory() Store {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Put(ctx context.Context, key string, data []byte) error {
	_ = ctx
	clone := make([]byte, len(data))
	copy(clone, data)
	s.mu.Lock()
	s.blobs[key] = clone
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	_, ok := s.blobs[key]
	s.mu.RUnlock()
	return ok, nil
}
