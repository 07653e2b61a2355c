// Package rerank rescores retrieved chunks with a cross-encoder and
// blends the result with the fused retrieval score. Chunks whose
// blended score falls below a relevance floor are discarded.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/metrics"
)

// Scorer scores a single query/document pair. Higher means more
// relevant. Implementations are expected to be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, query, document string) (float64, error)
	// Available reports whether the scorer can serve requests. An
	// unavailable scorer turns reranking into a pass-through.
	Available() bool
}

// Reranker rescores candidate chunks against a query.
type Reranker struct {
	scorer  Scorer
	log     logger.Logger
	metrics *metrics.Manager

	mu           sync.RWMutex
	minRelevance float64
	blendWeight  float64

	concurrency int
}

// New builds a Reranker. A nil scorer is valid and makes Rerank a
// pass-through that preserves fused ordering.
func New(cfg config.RerankConfig, scorer Scorer, log logger.Logger, m *metrics.Manager) *Reranker {
	if m == nil {
		m = metrics.NoOpManager()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reranker{
		scorer:       scorer,
		log:          log,
		metrics:      m,
		minRelevance: cfg.MinRelevance,
		blendWeight:  cfg.BlendWeight,
		concurrency:  concurrency,
	}
}

// SetFloor updates the relevance floor at runtime.
func (r *Reranker) SetFloor(floor float64) {
	r.mu.Lock()
	r.minRelevance = floor
	r.mu.Unlock()
}

// SetBlendWeight updates the cross-encoder blend weight at runtime.
func (r *Reranker) SetBlendWeight(w float64) {
	r.mu.Lock()
	r.blendWeight = w
	r.mu.Unlock()
}

// Rerank scores every chunk against the query, min-max normalizes both
// the cross-encoder scores and the incoming final scores, blends them,
// and drops chunks below the relevance floor. When the scorer is nil or
// unavailable the input is returned unchanged. Individual scoring
// failures also fall back to the unmodified input rather than serving a
// partially rescored list.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []*mem.MemoryChunk) ([]*mem.MemoryChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if r.scorer == nil || !r.scorer.Available() {
		r.recordResult("passthrough", len(chunks))
		return chunks, nil
	}

	scores, err := r.scoreAll(ctx, query, chunks)
	if err != nil {
		r.log.WarnContext(ctx, "rerank scoring failed, serving fused order", "error", err)
		r.recordResult("passthrough", len(chunks))
		return chunks, nil
	}

	r.mu.RLock()
	floor := r.minRelevance
	weight := r.blendWeight
	r.mu.RUnlock()

	// Both sides of the blend are min-max normalized to [0,1]. Raw RRF
	// scores live around 0.02-0.1, so blending them unnormalized would
	// let the cross-encoder override retrieval entirely; normalizing
	// keeps the retrieval prior a real 40% of the final score.
	normRerank := minMaxNormalize(scores)
	fused := make([]float64, len(chunks))
	for i, c := range chunks {
		fused[i] = c.FinalScore
	}
	normFused := minMaxNormalize(fused)

	kept := make([]*mem.MemoryChunk, 0, len(chunks))
	discarded := 0
	for i, c := range chunks {
		blended := weight*normRerank[i] + (1-weight)*normFused[i]
		out := *c
		out.RerankScore = scores[i]
		out.FinalScore = blended
		if blended < floor {
			discarded++
			continue
		}
		kept = append(kept, &out)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].FinalScore != kept[j].FinalScore {
			return kept[i].FinalScore > kept[j].FinalScore
		}
		return kept[i].ID < kept[j].ID
	})

	r.recordResult("kept", len(kept))
	r.recordResult("discarded", discarded)
	return kept, nil
}

func (r *Reranker) recordResult(result string, n int) {
	for i := 0; i < n; i++ {
		r.metrics.RecordRerankChunk(result)
	}
}

// scoreAll fans out scoring across a bounded worker pool.
func (r *Reranker) scoreAll(ctx context.Context, query string, chunks []*mem.MemoryChunk) ([]float64, error) {
	scores := make([]float64, len(chunks))
	sem := make(chan struct{}, r.concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, c := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c *mem.MemoryChunk) {
			defer wg.Done()
			defer func() { <-sem }()

			s, err := r.scorer.Score(ctx, query, c.DisplayText())
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("score chunk %s: %w", c.ID, err)
				}
				mu.Unlock()
				return
			}
			scores[i] = s
		}(i, c)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return scores, nil
}

// minMaxNormalize maps values into [0,1]. A constant slice normalizes
// to all ones so that a uniform signal neither boosts nor penalizes.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}
