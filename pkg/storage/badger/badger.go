// Package badger provides a Badger-backed chunk store for single-node
// deployments that need memories to survive restarts.
package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/echomem/echomem/config"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

const keyPrefix = "chunk:"

// Store implements memory.ChunkStore using Badger.
type Store struct {
	db *badger.DB
}

// NewStore opens (or creates) a Badger database at the configured path.
func NewStore(cfg config.BadgerConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	opts.SyncWrites = cfg.SyncWrites
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	// Badger's default logger writes to stderr; keep the store quiet.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.UnavailableError{Cause: err}
	}
	return &Store{db: db}, nil
}

func chunkKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func serialize(c *mem.MemoryChunk) ([]byte, error) {
	data, err := json.Marshal(storage.Persistable(c))
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

// Put implements memory.ChunkStore.
func (s *Store) Put(ctx context.Context, chunks []*mem.MemoryChunk) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range chunks {
		data, err := serialize(c)
		if err != nil {
			return err
		}
		if err := wb.Set(chunkKey(c.ID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Get implements memory.ChunkStore.
func (s *Store) Get(ctx context.Context, id string) (*mem.MemoryChunk, error) {
	var chunk mem.MemoryChunk
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return mem.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &chunk); err != nil {
				return &storage.SerializationError{Operation: "unmarshal", Cause: err}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetBatch implements memory.ChunkStore. Missing IDs are skipped.
func (s *Store) GetBatch(ctx context.Context, ids []string) ([]*mem.MemoryChunk, error) {
	out := make([]*mem.MemoryChunk, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(chunkKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			var chunk mem.MemoryChunk
			if err := item.Value(func(val []byte) error {
				if err := json.Unmarshal(val, &chunk); err != nil {
					return &storage.SerializationError{Operation: "unmarshal", Cause: err}
				}
				return nil
			}); err != nil {
				return err
			}
			out = append(out, &chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements memory.ChunkStore.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(chunkKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// List implements memory.ChunkStore. Order is unspecified.
func (s *Store) List(ctx context.Context) ([]*mem.MemoryChunk, error) {
	var out []*mem.MemoryChunk
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var chunk mem.MemoryChunk
			if err := it.Item().Value(func(val []byte) error {
				if err := json.Unmarshal(val, &chunk); err != nil {
					return &storage.SerializationError{Operation: "unmarshal", Cause: err}
				}
				return nil
			}); err != nil {
				return err
			}
			out = append(out, &chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count implements memory.ChunkStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close implements memory.ChunkStore.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ mem.ChunkStore = (*Store)(nil)
