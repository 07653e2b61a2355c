package memory

import (
	"context"
)

// ChunkStore is the authoritative store for chunk bodies. The dense and
// sparse indexes hold only what they need for ranking (vectors and
// postings); full chunks are fetched from here after fusion.
//
// Implementations live in pkg/storage (in-memory, Badger, Redis).
type ChunkStore interface {
	// Put stores chunks, overwriting any existing chunk with the same ID.
	Put(ctx context.Context, chunks []*MemoryChunk) error

	// Get returns the chunk with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*MemoryChunk, error)

	// GetBatch returns the chunks found among the given IDs, in the
	// order of the input IDs. Missing IDs are skipped, not errors.
	GetBatch(ctx context.Context, ids []string) ([]*MemoryChunk, error)

	// Delete removes chunks by ID. Missing IDs are not errors.
	Delete(ctx context.Context, ids []string) error

	// List returns every stored chunk. Used to rebuild the search
	// indexes from a persistent store at startup.
	List(ctx context.Context) ([]*MemoryChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
