// Package embedding turns text into dense vectors for similarity search.
package embedding

import (
	"context"
	"fmt"

	"github.com/echomem/echomem/config"
)

// Embedder produces fixed-dimension embeddings for batches of text.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector dimension this embedder produces.
	Dimension() int
}

// New creates an embedder from configuration.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	case "http":
		return NewHTTPEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
