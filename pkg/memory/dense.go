package memory

import (
	"context"
)

// DenseMatch is one result from a dense vector query. Distance is in
// [0, 2] for cosine; similarity is 1 - distance.
type DenseMatch struct {
	ID       string
	Distance float64
}

// Similarity converts the match distance to a similarity score.
func (m DenseMatch) Similarity() float64 {
	return 1 - m.Distance
}

// DenseCollection is a vector index over chunk texts. Implementations
// embed texts themselves so callers deal only in text and IDs.
type DenseCollection interface {
	// Upsert embeds and stores the texts under the given IDs. The two
	// slices must have equal length.
	Upsert(ctx context.Context, ids, texts []string) error

	// Query embeds the text and returns up to n nearest matches,
	// closest first.
	Query(ctx context.Context, text string, n int) ([]DenseMatch, error)

	// Vectors returns the stored embeddings for the given IDs. Missing
	// IDs are absent from the result, not errors.
	Vectors(ctx context.Context, ids []string) (map[string][]float32, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Close releases collection resources.
	Close() error
}
