// Package memory provides an in-memory chunk store, the default for
// development and the backing store for tests.
package memory

import (
	"context"
	"sync"

	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

// Store implements memory.ChunkStore with an in-process map.
type Store struct {
	mu     sync.RWMutex
	chunks map[string]*mem.MemoryChunk
}

// NewStore creates an empty in-memory chunk store.
func NewStore() *Store {
	return &Store{chunks: make(map[string]*mem.MemoryChunk)}
}

// Put implements memory.ChunkStore.
func (s *Store) Put(ctx context.Context, chunks []*mem.MemoryChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = storage.Persistable(c)
	}
	return nil
}

// Get implements memory.ChunkStore.
func (s *Store) Get(ctx context.Context, id string) (*mem.MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, mem.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetBatch implements memory.ChunkStore.
func (s *Store) GetBatch(ctx context.Context, ids []string) ([]*mem.MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mem.MemoryChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete implements memory.ChunkStore.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

// List implements memory.ChunkStore. Order is unspecified.
func (s *Store) List(ctx context.Context) ([]*mem.MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mem.MemoryChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// Count implements memory.ChunkStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close implements memory.ChunkStore.
func (s *Store) Close() error {
	return nil
}

var _ mem.ChunkStore = (*Store)(nil)
