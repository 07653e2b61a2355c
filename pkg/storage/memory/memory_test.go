package memory

import (
	"testing"

	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

func TestMemoryStoreConformance(t *testing.T) {
	suite := &storage.ChunkStoreTestSuite{
		NewStore: func(t *testing.T) mem.ChunkStore {
			return NewStore()
		},
	}
	suite.RunAllTests(t)
}
