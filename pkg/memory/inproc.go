package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/echomem/echomem/pkg/embedding"
)

// InprocCollection is a brute-force cosine similarity collection backed
// by an embedder. Linear scan is fine at single-user conversation-history
// scale; swap in pgvector for anything larger.
type InprocCollection struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	vectors  map[string][]float32
}

// NewInprocCollection creates an in-process dense collection.
func NewInprocCollection(embedder embedding.Embedder) *InprocCollection {
	return &InprocCollection{
		embedder: embedder,
		vectors:  make(map[string][]float32),
	}
}

// Upsert implements DenseCollection.
func (c *InprocCollection) Upsert(ctx context.Context, ids, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("memory: ids/texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if len(ids) == 0 {
		return nil
	}

	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed for upsert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		c.vectors[id] = vecs[i]
	}
	return nil
}

// Query implements DenseCollection.
func (c *InprocCollection) Query(ctx context.Context, text string, n int) ([]DenseMatch, error) {
	if n <= 0 {
		return nil, nil
	}

	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := vecs[0]

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make([]DenseMatch, 0, len(c.vectors))
	for id, vec := range c.vectors {
		sim := cosineSimilarity(query, vec)
		matches = append(matches, DenseMatch{ID: id, Distance: 1 - sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if n > len(matches) {
		n = len(matches)
	}
	return matches[:n], nil
}

// Vectors implements DenseCollection.
func (c *InprocCollection) Vectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := c.vectors[id]; ok {
			out[id] = vec
		}
	}
	return out, nil
}

// Delete implements DenseCollection.
func (c *InprocCollection) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.vectors, id)
	}
	return nil
}

// Count implements DenseCollection.
func (c *InprocCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors), nil
}

// Close implements DenseCollection.
func (c *InprocCollection) Close() error {
	return nil
}

// Save persists the collection to a file.
// Format: [dimension:uint32][count:uint32] then per entry:
// [idLen:uint16][id:bytes][vector:float32*dim]
func (c *InprocCollection) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memory: save failed: %w", err)
	}
	defer f.Close()

	dim := c.embedder.Dimension()
	if err := binary.Write(f, binary.LittleEndian, uint32(dim)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(c.vectors))); err != nil {
		return err
	}

	for id, vec := range c.vectors {
		if err := binary.Write(f, binary.LittleEndian, uint16(len(id))); err != nil {
			return err
		}
		if _, err := f.Write([]byte(id)); err != nil {
			return err
		}
		if err := binary.Write(f, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

// Load restores the collection from a file written by Save.
func (c *InprocCollection) Load(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("memory: load failed: %w", err)
	}
	defer f.Close()

	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return err
	}

	if int(dim) != c.embedder.Dimension() {
		return fmt.Errorf("%w: file has %d, embedder produces %d",
			ErrDimensionMismatch, dim, c.embedder.Dimension())
	}

	vectors := make(map[string][]float32, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return err
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBuf); err != nil {
			return err
		}

		vec := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return err
		}
		vectors[string(idBuf)] = vec
	}

	c.vectors = vectors
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

var _ DenseCollection = (*InprocCollection)(nil)
