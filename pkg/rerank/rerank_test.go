package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
}

func testConfig() config.RerankConfig {
	cfg := config.DefaultConfig().Rerank
	cfg.Concurrency = 2
	return cfg
}

func chunk(id, text string, finalScore float64) *mem.MemoryChunk {
	return &mem.MemoryChunk{
		ID:         id,
		Text:       text,
		Meta:       mem.ChunkMeta{Type: mem.ChunkContextual, Speaker: mem.SpeakerUser},
		FinalScore: finalScore,
	}
}

func TestRerank_ReordersByBlendedScore(t *testing.T) {
	scorer := NewMockScorer(0.1)
	scorer.ScoreFor("violin", 0.9)

	r := New(testConfig(), scorer, testLogger(), nil)
	chunks := []*mem.MemoryChunk{
		chunk("a", "talked about the weather", 0.9),
		chunk("b", "practiced violin for an hour", 0.5),
	}

	out, err := r.Rerank(context.Background(), "violin practice", chunks)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	assert.Equal(t, "b", out[0].ID, "cross-encoder signal should promote the violin chunk")
	assert.Equal(t, 0.9, out[0].RerankScore)
}

func TestRerank_DropsBelowFloor(t *testing.T) {
	scorer := NewMockScorer(0.0)
	scorer.ScoreFor("relevant", 1.0)

	cfg := testConfig()
	cfg.MinRelevance = 0.3
	r := New(cfg, scorer, testLogger(), nil)

	chunks := []*mem.MemoryChunk{
		chunk("a", "relevant memory about the trip", 1.0),
		chunk("b", "nothing to do with anything", 0.0),
	}

	out, err := r.Rerank(context.Background(), "the trip", chunks)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestRerank_PassThroughWhenNoScorer(t *testing.T) {
	r := New(testConfig(), nil, testLogger(), nil)
	chunks := []*mem.MemoryChunk{
		chunk("a", "one", 0.9),
		chunk("b", "two", 0.5),
	}

	out, err := r.Rerank(context.Background(), "query", chunks)
	require.NoError(t, err)
	assert.Equal(t, chunks, out)
}

func TestRerank_PassThroughWhenUnavailable(t *testing.T) {
	scorer := NewMockScorer(0.5)
	scorer.SetUnavailable(true)

	r := New(testConfig(), scorer, testLogger(), nil)
	chunks := []*mem.MemoryChunk{chunk("a", "one", 0.9)}

	out, err := r.Rerank(context.Background(), "query", chunks)
	require.NoError(t, err)
	assert.Equal(t, chunks, out)
	assert.Zero(t, scorer.Calls())
}

func TestRerank_PassThroughOnScorerError(t *testing.T) {
	scorer := NewMockScorer(0.5)
	scorer.Fail(errors.New("model overloaded"))

	r := New(testConfig(), scorer, testLogger(), nil)
	chunks := []*mem.MemoryChunk{
		chunk("a", "one", 0.9),
		chunk("b", "two", 0.5),
	}

	out, err := r.Rerank(context.Background(), "query", chunks)
	require.NoError(t, err, "scorer failures must not propagate")
	assert.Equal(t, chunks, out)
}

func TestRerank_EmptyInput(t *testing.T) {
	r := New(testConfig(), NewMockScorer(0.5), testLogger(), nil)
	out, err := r.Rerank(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerank_UniformScoresKeepAll(t *testing.T) {
	// When every score is identical normalization yields all ones, so
	// nothing should fall below the floor.
	r := New(testConfig(), NewMockScorer(0.5), testLogger(), nil)
	chunks := []*mem.MemoryChunk{
		chunk("a", "one", 0.7),
		chunk("b", "two", 0.7),
	}

	out, err := r.Rerank(context.Background(), "query", chunks)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRerank_HotReloadFloor(t *testing.T) {
	scorer := NewMockScorer(0.0)
	scorer.ScoreFor("keep", 1.0)

	cfg := testConfig()
	cfg.MinRelevance = 0.0
	r := New(cfg, scorer, testLogger(), nil)

	chunks := []*mem.MemoryChunk{
		chunk("a", "keep this", 1.0),
		chunk("b", "drop this", 0.0),
	}

	out, err := r.Rerank(context.Background(), "q", chunks)
	require.NoError(t, err)
	assert.Len(t, out, 2, "floor of zero keeps everything")

	r.SetFloor(0.5)
	out, err = r.Rerank(context.Background(), "q", chunks)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestMinMaxNormalize(t *testing.T) {
	out := minMaxNormalize([]float64{2, 4, 6})
	assert.Equal(t, []float64{0, 0.5, 1}, out)

	out = minMaxNormalize([]float64{3, 3})
	assert.Equal(t, []float64{1, 1}, out)

	assert.Nil(t, minMaxNormalize(nil))
}

func TestHTTPScorer(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		require.Len(t, req.Texts, 1)
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.83}})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Endpoint = server.URL
	cfg.Model = "bge-reranker"
	scorer := NewHTTPScorer(cfg)

	require.True(t, scorer.Available())
	score, err := scorer.Score(context.Background(), "query", "document")
	require.NoError(t, err)
	assert.Equal(t, 0.83, score)
	assert.Equal(t, "bge-reranker", gotModel)
}

func TestHTTPScorer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Endpoint = server.URL
	scorer := NewHTTPScorer(cfg)

	_, err := scorer.Score(context.Background(), "q", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPScorer_NoEndpointUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = ""
	scorer := NewHTTPScorer(cfg)
	assert.False(t, scorer.Available())
}
