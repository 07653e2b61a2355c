package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/logger"
)

// Retriever owns the dense and sparse indexes over one chunk population
// and runs hybrid retrieval: per-variant dense+sparse search, reciprocal
// rank fusion, and time-decay scoring.
type Retriever struct {
	dense  DenseCollection
	sparse *SparseIndex
	store  ChunkStore
	log    logger.Logger

	mu          sync.RWMutex
	topKDense   int
	topKSparse  int
	rrfK        float64
	decayFactor float64

	// now is replaceable in tests to pin chunk ages.
	now func() time.Time
}

// NewRetriever creates a hybrid retriever.
func NewRetriever(cfg config.MemoryConfig, dense DenseCollection, store ChunkStore, log logger.Logger) *Retriever {
	return &Retriever{
		dense:       dense,
		sparse:      NewSparseIndex(cfg.BM25.K1, cfg.BM25.B),
		store:       store,
		log:         log,
		topKDense:   cfg.TopKDense,
		topKSparse:  cfg.TopKSparse,
		rrfK:        float64(cfg.RRFK),
		decayFactor: cfg.TimeDecayFactor,
		now:         time.Now,
	}
}

// SetDecayFactor applies a hot-reloaded decay factor.
func (r *Retriever) SetDecayFactor(f float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decayFactor = f
}

// AddMemory writes one chunk to the store and both indexes.
func (r *Retriever) AddMemory(ctx context.Context, chunk *MemoryChunk) error {
	return r.AddMemoriesBatch(ctx, []*MemoryChunk{chunk})
}

// AddMemoriesBatch writes chunks to the store and both indexes. The
// writes are synchronous: a chunk accepted here is visible to the next
// Retrieve call. The dense/sparse pair has no shared transaction; a
// crash between the two writes leaves them inconsistent, an accepted
// limitation surfaced only as degraded recall quality.
func (r *Retriever) AddMemoriesBatch(ctx context.Context, chunks []*MemoryChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	if err := r.store.Put(ctx, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
	}
	if err := r.dense.Upsert(ctx, ids, texts); err != nil {
		return fmt.Errorf("dense upsert: %w", err)
	}

	for _, c := range chunks {
		r.sparse.Index(c.ID, c.Text)
	}
	return nil
}

// Rebuild repopulates both search indexes from the chunk store. Called
// at startup when the store is persistent but the indexes are not.
// Chunks whose vectors already exist in the dense collection (a loaded
// vector cache, or pgvector) are not re-embedded.
func (r *Retriever) Rebuild(ctx context.Context) (int, error) {
	chunks, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	allIDs := make([]string, len(chunks))
	for i, c := range chunks {
		allIDs[i] = c.ID
	}
	present, err := r.dense.Vectors(ctx, allIDs)
	if err != nil {
		return 0, fmt.Errorf("check existing vectors: %w", err)
	}

	var ids, texts []string
	for _, c := range chunks {
		if _, ok := present[c.ID]; ok {
			continue
		}
		ids = append(ids, c.ID)
		texts = append(texts, c.Text)
	}
	if len(ids) > 0 {
		if err := r.dense.Upsert(ctx, ids, texts); err != nil {
			return 0, fmt.Errorf("dense upsert: %w", err)
		}
	}
	for _, c := range chunks {
		r.sparse.Index(c.ID, c.Text)
	}
	return len(chunks), nil
}

// armResult is one ranked list from a single search arm.
type armResult struct {
	ids    []string
	scores []float64
	err    error
}

// Retrieve runs dense and sparse search for every query variant,
// fuses all ranked lists with reciprocal rank fusion, applies
// time-decay, and returns the top-k chunks sorted by final score
// (ties break on chunk ID, so identical inputs give identical output).
func (r *Retriever) Retrieve(ctx context.Context, queries []string, topK int) ([]*MemoryChunk, error) {
	if len(queries) == 0 || topK <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	topKDense, topKSparse := r.topKDense, r.topKSparse
	rrfK, decayFactor := r.rrfK, r.decayFactor
	r.mu.RUnlock()

	// One dense and one sparse arm per variant, all concurrent.
	denseArms := make([]armResult, len(queries))
	sparseArms := make([]armResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(2)
		go func(i int, q string) {
			defer wg.Done()
			matches, err := r.dense.Query(ctx, q, topKDense)
			if err != nil {
				denseArms[i].err = err
				return
			}
			for _, m := range matches {
				denseArms[i].ids = append(denseArms[i].ids, m.ID)
				denseArms[i].scores = append(denseArms[i].scores, m.Similarity())
			}
		}(i, q)
		go func(i int, q string) {
			defer wg.Done()
			sparseArms[i].ids, sparseArms[i].scores = r.sparse.Search(q, topKSparse)
		}(i, q)
	}
	wg.Wait()

	// A failed dense arm degrades that variant to sparse-only.
	for i := range denseArms {
		if denseArms[i].err != nil {
			r.log.WarnContext(ctx, "dense search failed, degrading to sparse",
				"query_index", i, "error", denseArms[i].err)
			denseArms[i] = armResult{}
		}
	}

	fusedScores := make(map[string]float64)
	denseScores := make(map[string]float64)
	sparseScores := make(map[string]float64)

	// RRF: score(d) = sum over lists of 1/(K + rank), rank from 1.
	fuse := func(arm armResult) {
		for rank, id := range arm.ids {
			fusedScores[id] += 1.0 / (rrfK + float64(rank+1))
		}
	}
	for i := range queries {
		fuse(denseArms[i])
		fuse(sparseArms[i])
		for j, id := range denseArms[i].ids {
			if s := denseArms[i].scores[j]; s > denseScores[id] {
				denseScores[id] = s
			}
		}
		for j, id := range sparseArms[i].ids {
			if s := sparseArms[i].scores[j]; s > sparseScores[id] {
				sparseScores[id] = s
			}
		}
	}

	if len(fusedScores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(fusedScores))
	for id := range fusedScores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	chunks, err := r.store.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch fused chunks: %w", err)
	}

	now := r.now()
	for _, c := range chunks {
		fused := fusedScores[c.ID]
		c.DenseScore = denseScores[c.ID]
		c.SparseScore = sparseScores[c.ID]
		c.RRFScore = fused
		c.FinalScore = fused * timeDecayMultiplier(now.Sub(c.Meta.Timestamp), decayFactor)
	}

	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].FinalScore != chunks[j].FinalScore {
			return chunks[i].FinalScore > chunks[j].FinalScore
		}
		return chunks[i].ID < chunks[j].ID
	})

	if topK > len(chunks) {
		topK = len(chunks)
	}
	return chunks[:topK], nil
}

// Vectors exposes stored embeddings for diversity selection.
func (r *Retriever) Vectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	return r.dense.Vectors(ctx, ids)
}

// SparseLen returns the number of documents in the sparse index.
func (r *Retriever) SparseLen() int {
	return r.sparse.Len()
}

// DenseCount returns the number of vectors in the dense collection.
func (r *Retriever) DenseCount(ctx context.Context) (int, error) {
	return r.dense.Count(ctx)
}
