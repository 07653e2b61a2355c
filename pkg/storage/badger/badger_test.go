package badger

import (
	"testing"

	"github.com/echomem/echomem/config"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/storage"
)

func TestBadgerStoreConformance(t *testing.T) {
	suite := &storage.ChunkStoreTestSuite{
		NewStore: func(t *testing.T) mem.ChunkStore {
			store, err := NewStore(config.BadgerConfig{
				Dir:      t.TempDir(),
				InMemory: false,
			})
			if err != nil {
				t.Fatalf("open badger store: %v", err)
			}
			return store
		},
	}
	suite.RunAllTests(t)
}

func TestBadgerStoreInMemoryMode(t *testing.T) {
	store, err := NewStore(config.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory badger store: %v", err)
	}
	defer store.Close()

	suite := &storage.ChunkStoreTestSuite{
		NewStore: func(t *testing.T) mem.ChunkStore {
			s, err := NewStore(config.BadgerConfig{InMemory: true})
			if err != nil {
				t.Fatalf("open in-memory badger store: %v", err)
			}
			return s
		},
	}
	suite.TestPutGet(t)
}
