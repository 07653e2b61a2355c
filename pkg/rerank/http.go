package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/echomem/echomem/config"
)

// HTTPScorer calls a cross-encoder reranking endpoint compatible with
// the text-embeddings-inference /rerank API.
type HTTPScorer struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewHTTPScorer builds a scorer from config. An empty endpoint yields a
// scorer that reports itself unavailable, which makes the reranker a
// pass-through.
func NewHTTPScorer(cfg config.RerankConfig) *HTTPScorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPScorer{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

// Available implements Scorer.
func (s *HTTPScorer) Available() bool {
	return s.endpoint != ""
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, query, document string) (float64, error) {
	if !s.Available() {
		return 0, fmt.Errorf("rerank scorer has no endpoint configured")
	}

	body, err := json.Marshal(rerankRequest{
		Model: s.model,
		Query: query,
		Texts: []string{document},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var results []rerankResult
	if err := json.Unmarshal(data, &results); err != nil {
		return 0, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("rerank endpoint returned no results")
	}
	return results[0].Score, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Scorer = (*HTTPScorer)(nil)
