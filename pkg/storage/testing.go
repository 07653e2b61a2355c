package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/echomem/echomem/pkg/memory"
)

// ChunkStoreTestSuite is a conformance suite runnable against any
// ChunkStore implementation.
type ChunkStoreTestSuite struct {
	NewStore func(t *testing.T) memory.ChunkStore
}

// RunAllTests runs every conformance test against the implementation.
func (s *ChunkStoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutGet", s.TestPutGet)
	t.Run("Overwrite", s.TestOverwrite)
	t.Run("GetBatchOrderAndMissing", s.TestGetBatchOrderAndMissing)
	t.Run("Delete", s.TestDelete)
	t.Run("List", s.TestList)
	t.Run("Count", s.TestCount)
	t.Run("NotFound", s.TestNotFound)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("ScoresNotPersisted", s.TestScoresNotPersisted)
}

func testChunk(id, text string) *memory.MemoryChunk {
	return &memory.MemoryChunk{
		ID:   id,
		Text: text,
		Meta: memory.ChunkMeta{
			Type:           memory.ChunkContextual,
			Speaker:        memory.SpeakerUser,
			SessionID:      "session-1",
			Timestamp:      time.Now().UTC().Truncate(time.Second),
			EmotionalState: "neutral",
			RawText:        text,
		},
	}
}

// TestPutGet verifies storage round-trips the full chunk body.
func (s *ChunkStoreTestSuite) TestPutGet(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	c := testChunk("c1", "I adopted a kitten named Mochi")
	c.Meta.Entities = []string{"Mochi"}
	if err := store.Put(ctx, []*memory.MemoryChunk{c}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != c.Text {
		t.Errorf("expected text %q, got %q", c.Text, got.Text)
	}
	if got.Meta.Type != memory.ChunkContextual {
		t.Errorf("expected chunk type contextual, got %s", got.Meta.Type)
	}
	if got.Meta.SessionID != "session-1" {
		t.Errorf("expected session-1, got %s", got.Meta.SessionID)
	}
	if len(got.Meta.Entities) != 1 || got.Meta.Entities[0] != "Mochi" {
		t.Errorf("entities not round-tripped: %v", got.Meta.Entities)
	}
	if !got.Meta.Timestamp.Equal(c.Meta.Timestamp) {
		t.Errorf("timestamp not round-tripped: %v != %v", got.Meta.Timestamp, c.Meta.Timestamp)
	}
}

// TestOverwrite verifies Put replaces an existing chunk.
func (s *ChunkStoreTestSuite) TestOverwrite(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, []*memory.MemoryChunk{testChunk("c1", "first version")})
	if err := store.Put(ctx, []*memory.MemoryChunk{testChunk("c1", "second version")}); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != "second version" {
		t.Errorf("expected overwritten text, got %q", got.Text)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("expected count 1 after overwrite, got %d", n)
	}
}

// TestGetBatchOrderAndMissing verifies batch reads preserve input order
// and silently skip missing IDs.
func (s *ChunkStoreTestSuite) TestGetBatchOrderAndMissing(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var chunks []*memory.MemoryChunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, testChunk(fmt.Sprintf("c%d", i), fmt.Sprintf("content %d", i)))
	}
	if err := store.Put(ctx, chunks); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.GetBatch(ctx, []string{"c3", "missing", "c0", "c4"})
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks (missing skipped), got %d", len(got))
	}
	wantOrder := []string{"c3", "c0", "c4"}
	for i, c := range got {
		if c.ID != wantOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantOrder[i], c.ID)
		}
	}
}

// TestDelete verifies deletion and that deleting absent IDs is not an error.
func (s *ChunkStoreTestSuite) TestDelete(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, []*memory.MemoryChunk{testChunk("c1", "a"), testChunk("c2", "b")})

	if err := store.Delete(ctx, []string{"c1", "never-existed"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

// TestList verifies every stored chunk is returned exactly once.
func (s *ChunkStoreTestSuite) TestList(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var chunks []*memory.MemoryChunk
	for i := 0; i < 4; i++ {
		chunks = append(chunks, testChunk(fmt.Sprintf("c%d", i), fmt.Sprintf("content %d", i)))
	}
	if err := store.Put(ctx, chunks); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	seen := make(map[string]bool)
	for _, c := range got {
		if seen[c.ID] {
			t.Errorf("chunk %s listed twice", c.ID)
		}
		seen[c.ID] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct chunks, got %d", len(seen))
	}
}

// TestCount verifies counting across writes.
func (s *ChunkStoreTestSuite) TestCount(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	if n, err := store.Count(ctx); err != nil || n != 0 {
		t.Fatalf("expected empty store, got n=%d err=%v", n, err)
	}

	var chunks []*memory.MemoryChunk
	for i := 0; i < 7; i++ {
		chunks = append(chunks, testChunk(fmt.Sprintf("c%d", i), "x"))
	}
	_ = store.Put(ctx, chunks)

	if n, _ := store.Count(ctx); n != 7 {
		t.Errorf("expected count 7, got %d", n)
	}
}

// TestNotFound verifies the sentinel error for missing chunks.
func (s *ChunkStoreTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected memory.ErrNotFound, got %v", err)
	}
}

// TestConcurrentAccess verifies concurrent writers and readers do not
// corrupt the store.
func (s *ChunkStoreTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := testChunk(fmt.Sprintf("w%d", i), "concurrent write")
			if err := store.Put(ctx, []*memory.MemoryChunk{c}); err != nil {
				errCh <- err
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := store.GetBatch(ctx, []string{fmt.Sprintf("w%d", i)}); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	if n, _ := store.Count(ctx); n != 10 {
		t.Errorf("expected 10 chunks after concurrent writes, got %d", n)
	}
}

// TestScoresNotPersisted verifies the transient scoring fields are not
// stored: a chunk read back carries zero scores.
func (s *ChunkStoreTestSuite) TestScoresNotPersisted(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	c := testChunk("c1", "scored chunk")
	c.DenseScore = 0.9
	c.SparseScore = 4.2
	c.RRFScore = 0.03
	c.RerankScore = 0.8
	c.FinalScore = 0.5
	_ = store.Put(ctx, []*memory.MemoryChunk{c})

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DenseScore != 0 || got.SparseScore != 0 || got.RRFScore != 0 ||
		got.RerankScore != 0 || got.FinalScore != 0 {
		t.Errorf("transient scores persisted: %+v", got)
	}
}
