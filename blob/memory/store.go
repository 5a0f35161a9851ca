// Package memory provides an in-memory blob store for tests and
// single-process deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/elasticmail/mailstore/blob"
)

// Store implements blob.Store with an in-memory map.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)

// New creates an empty in-memory blob store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores the blob content under name, replacing any existing blob.
func (s *Store) Put(ctx context.Context, name string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read blob content: %w", err)
	}

	s.mu.Lock()
	s.blobs[name] = data
	s.mu.Unlock()
	return nil
}

// Get returns a reader for the named blob.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the named blob. Deleting an absent blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.blobs, name)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
