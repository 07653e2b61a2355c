package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/embedding"
	"github.com/echomem/echomem/pkg/logger"
)

// testStore is a minimal in-memory ChunkStore for package tests. The
// real backends live in pkg/storage.
type testStore struct {
	mu     sync.RWMutex
	chunks map[string]*MemoryChunk
}

func newTestStore() *testStore {
	return &testStore{chunks: make(map[string]*MemoryChunk)}
}

func (s *testStore) Put(ctx context.Context, chunks []*MemoryChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		s.chunks[c.ID] = &cp
	}
	return nil
}

func (s *testStore) Get(ctx context.Context, id string) (*MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *testStore) GetBatch(ctx context.Context, ids []string) ([]*MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MemoryChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *testStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

func (s *testStore) List(ctx context.Context) ([]*MemoryChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MemoryChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *testStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *testStore) Close() error { return nil }

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
}

func testMemoryConfig() config.MemoryConfig {
	return config.DefaultConfig().Memory
}

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	dense := NewInprocCollection(embedding.NewHashEmbedder(128))
	return NewRetriever(testMemoryConfig(), dense, newTestStore(), testLogger())
}

func chunkAt(id, text string, ts time.Time) *MemoryChunk {
	return &MemoryChunk{
		ID:   id,
		Text: text,
		Meta: ChunkMeta{
			Type:      ChunkContextual,
			Speaker:   SpeakerUser,
			SessionID: "s1",
			Timestamp: ts,
		},
	}
}

func TestRetrieverWriteThenRead(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	now := time.Now()

	chunks := []*MemoryChunk{
		chunkAt("c1", "I have a job interview at the design studio tomorrow", now),
		chunkAt("c2", "My cat Luna knocked over a plant again", now),
		chunkAt("c3", "The interview went well, I got the offer", now),
	}
	if err := r.AddMemoriesBatch(ctx, chunks); err != nil {
		t.Fatalf("AddMemoriesBatch: %v", err)
	}

	got, err := r.Retrieve(ctx, []string{"how did the job interview go"}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected results for matching query")
	}
	for _, c := range got {
		if c.ID == "c2" {
			t.Error("unrelated cat chunk outranked interview chunks")
		}
		if c.RRFScore <= 0 {
			t.Errorf("chunk %s has no fused score", c.ID)
		}
		if c.FinalScore <= 0 {
			t.Errorf("chunk %s has no final score", c.ID)
		}
		if c.FinalScore < 0.7*c.RRFScore-1e-12 {
			t.Errorf("chunk %s final score below decay floor: final=%f fused=%f",
				c.ID, c.FinalScore, c.RRFScore)
		}
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	now := time.Now()

	texts := []string{
		"we talked about hiking the coastal trail",
		"planning a hiking trip for the long weekend",
		"the trail was muddy after the rain",
		"bought new hiking boots yesterday",
	}
	var chunks []*MemoryChunk
	for i, txt := range texts {
		chunks = append(chunks, chunkAt(string(rune('a'+i)), txt, now))
	}
	if err := r.AddMemoriesBatch(ctx, chunks); err != nil {
		t.Fatalf("AddMemoriesBatch: %v", err)
	}

	queries := []string{"hiking trip plans", "trail conditions"}
	first, err := r.Retrieve(ctx, queries, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(ctx, queries, 4)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: result count %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d: order differs at %d: %s != %s", i, j, again[j].ID, first[j].ID)
			}
			if again[j].RRFScore != first[j].RRFScore {
				t.Fatalf("run %d: fused score differs for %s", i, again[j].ID)
			}
		}
	}
}

func TestTimeDecayMonotonicAndFloored(t *testing.T) {
	factor := 0.95
	prev := timeDecayMultiplier(0, factor)
	if prev > 1.0+1e-12 {
		t.Fatalf("decay multiplier at age 0 exceeds 1: %f", prev)
	}

	for _, days := range []float64{0.5, 1, 3, 7, 30, 365, 10000} {
		age := time.Duration(days * 24 * float64(time.Hour))
		m := timeDecayMultiplier(age, factor)
		if m > prev+1e-12 {
			t.Errorf("decay not monotonic at %v days: %f > %f", days, m, prev)
		}
		if m < 0.7-1e-12 {
			t.Errorf("decay below floor at %v days: %f", days, m)
		}
		prev = m
	}

	// factor 1.0 disables decay entirely.
	if m := timeDecayMultiplier(365*24*time.Hour, 1.0); m < 1.0-1e-9 {
		t.Errorf("factor 1.0 should not decay, got %f", m)
	}
}

func TestRetrieveFresherOutranksStale(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	now := time.Now()
	r.now = func() time.Time { return now }

	// Identical text so fusion treats them the same; age decides.
	stale := chunkAt("old", "my favorite restaurant is the noodle bar", now.AddDate(0, -6, 0))
	fresh := chunkAt("new", "my favorite restaurant is the noodle bar", now)
	if err := r.AddMemoriesBatch(ctx, []*MemoryChunk{stale, fresh}); err != nil {
		t.Fatalf("AddMemoriesBatch: %v", err)
	}

	got, err := r.Retrieve(ctx, []string{"favorite restaurant"}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "new" {
		t.Errorf("expected fresher chunk first, got %s", got[0].ID)
	}
	if got[1].FinalScore > got[0].FinalScore {
		t.Error("stale chunk scored above fresh one")
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r := newTestRetriever(t)
	got, err := r.Retrieve(context.Background(), []string{"anything"}, 5)
	if err != nil {
		t.Fatalf("empty index retrieve should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

// failingDense errors on every query so degradation can be observed.
type failingDense struct {
	*InprocCollection
}

func (f *failingDense) Query(ctx context.Context, text string, n int) ([]DenseMatch, error) {
	return nil, errors.New("collection offline")
}

func TestRetrieveDegradesWhenDenseFails(t *testing.T) {
	inner := NewInprocCollection(embedding.NewHashEmbedder(64))
	r := NewRetriever(testMemoryConfig(), &failingDense{inner}, newTestStore(), testLogger())
	ctx := context.Background()

	c := chunkAt("c1", "grandma's lasagna recipe uses fresh basil", time.Now())
	if err := r.AddMemoriesBatch(ctx, []*MemoryChunk{c}); err != nil {
		t.Fatalf("AddMemoriesBatch: %v", err)
	}

	got, err := r.Retrieve(ctx, []string{"lasagna recipe"}, 5)
	if err != nil {
		t.Fatalf("expected sparse-only degradation, got error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected sparse arm to carry the result, got %v", got)
	}
	if got[0].DenseScore != 0 {
		t.Errorf("dense score should be zero when dense arm failed")
	}
}

func TestAddMemoryValidates(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()

	if err := r.AddMemory(ctx, &MemoryChunk{Text: "no id"}); !errors.Is(err, ErrEmptyChunkID) {
		t.Errorf("expected ErrEmptyChunkID, got %v", err)
	}
	bad := &MemoryChunk{ID: "c1", Text: "x", Meta: ChunkMeta{Type: ChunkType("vibes")}}
	if err := r.AddMemory(ctx, bad); !errors.Is(err, ErrInvalidChunkType) {
		t.Errorf("expected ErrInvalidChunkType, got %v", err)
	}
}

// countingEmbedder counts how many texts were embedded.
type countingEmbedder struct {
	embedding.Embedder
	mu    sync.Mutex
	texts int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.texts += len(texts)
	e.mu.Unlock()
	return e.Embedder.Embed(ctx, texts)
}

func TestRebuildFromStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now()
	seed := []*MemoryChunk{
		chunkAt("c1", "I started pottery classes on Tuesdays", now),
		chunkAt("c2", "My sister is planning her wedding for June", now),
	}
	if err := store.Put(ctx, seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	dense := NewInprocCollection(embedding.NewHashEmbedder(128))
	r := NewRetriever(testMemoryConfig(), dense, store, testLogger())

	n, err := r.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rebuilt chunks, got %d", n)
	}

	got, err := r.Retrieve(ctx, []string{"pottery classes"}, 1)
	if err != nil {
		t.Fatalf("Retrieve after rebuild: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected rebuilt index to serve c1, got %v", got)
	}
}

func TestRebuildSkipsCachedVectors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now()
	seed := []*MemoryChunk{
		chunkAt("c1", "I started pottery classes on Tuesdays", now),
		chunkAt("c2", "My sister is planning her wedding for June", now),
		chunkAt("c3", "Work has been busy with the quarterly report", now),
	}
	if err := store.Put(ctx, seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	emb := &countingEmbedder{Embedder: embedding.NewHashEmbedder(128)}
	dense := NewInprocCollection(emb)
	// c1's vector is already present, as after loading a vector cache.
	if err := dense.Upsert(ctx, []string{"c1"}, []string{seed[0].Text}); err != nil {
		t.Fatalf("pre-seed vector: %v", err)
	}
	emb.texts = 0

	r := NewRetriever(testMemoryConfig(), dense, store, testLogger())
	n, err := r.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rebuilt chunks, got %d", n)
	}
	if emb.texts != 2 {
		t.Errorf("expected only the 2 uncached chunks to be embedded, got %d", emb.texts)
	}
	if count, _ := dense.Count(ctx); count != 3 {
		t.Errorf("expected 3 vectors after rebuild, got %d", count)
	}
	if r.SparseLen() != 3 {
		t.Errorf("expected all 3 chunks in the sparse index, got %d", r.SparseLen())
	}
}
