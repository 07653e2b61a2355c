// Package storage provides chunk store backends implementing the
// memory.ChunkStore interface: in-memory, Badger, and Redis.
package storage

import (
	"fmt"

	"github.com/echomem/echomem/pkg/memory"
)

// Persistable returns a copy of the chunk with the transient per-query
// scoring fields cleared. Chunk identity and metadata are permanent;
// scores are recomputed on every retrieval and must never be stored.
func Persistable(c *memory.MemoryChunk) *memory.MemoryChunk {
	cp := *c
	cp.DenseScore = 0
	cp.SparseScore = 0
	cp.RRFScore = 0
	cp.RerankScore = 0
	cp.FinalScore = 0
	return &cp
}

// SerializationError indicates a failure in chunk serialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// UnavailableError indicates that the storage backend is unreachable.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
