package memory

import (
	"context"
	"sort"
)

// SelectDiverse applies maximal marginal relevance: greedily pick the
// candidate maximizing
//
//	lambda * relevance - (1 - lambda) * max_similarity_to_selected
//
// where relevance is the chunk's FinalScore and similarity is cosine
// similarity between stored embeddings. Lambda near 1 favors pure
// relevance, near 0 favors novelty. Chunks without a stored vector are
// treated as dissimilar to everything.
func (r *Retriever) SelectDiverse(ctx context.Context, chunks []*MemoryChunk, lambda float64, topK int) ([]*MemoryChunk, error) {
	if topK <= 0 || len(chunks) == 0 {
		return nil, nil
	}
	if topK > len(chunks) {
		topK = len(chunks)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	vectors, err := r.dense.Vectors(ctx, ids)
	if err != nil {
		// Degrade to pure relevance ordering rather than failing recall.
		r.log.WarnContext(ctx, "vector lookup for diversity selection failed", "error", err)
		vectors = map[string][]float32{}
	}

	// Work on a relevance-sorted copy so selection and score ties are
	// deterministic.
	candidates := make([]*MemoryChunk, len(chunks))
	copy(candidates, chunks)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		return candidates[i].ID < candidates[j].ID
	})

	selected := make([]*MemoryChunk, 0, topK)
	picked := make(map[string]bool, topK)

	for len(selected) < topK {
		var best *MemoryChunk
		bestScore := 0.0

		for _, cand := range candidates {
			if picked[cand.ID] {
				continue
			}

			maxSim := 0.0
			if vec, ok := vectors[cand.ID]; ok {
				for _, sel := range selected {
					selVec, ok := vectors[sel.ID]
					if !ok {
						continue
					}
					if sim := cosineSimilarity(vec, selVec); sim > maxSim {
						maxSim = sim
					}
				}
			}

			score := lambda*cand.FinalScore - (1-lambda)*maxSim
			if best == nil || score > bestScore {
				best = cand
				bestScore = score
			}
		}

		if best == nil {
			break
		}
		picked[best.ID] = true
		selected = append(selected, best)
	}

	return selected, nil
}
