package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/api/handlers"
	"github.com/echomem/echomem/pkg/completion"
	"github.com/echomem/echomem/pkg/embedding"
	"github.com/echomem/echomem/pkg/indexer"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/pipeline"
	"github.com/echomem/echomem/pkg/queryproc"
	"github.com/echomem/echomem/pkg/rerank"
	memstore "github.com/echomem/echomem/pkg/storage/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.DefaultConfig()
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})

	svc := completion.NewMockService("")
	svc.Respond("context prefix", "[user talking]")
	svc.Respond("and extract", "{}")
	svc.Respond("Summarize this conversation", "Session digest.")

	dense := mem.NewInprocCollection(embedding.NewHashEmbedder(cfg.Embedding.Dimension))
	retriever := mem.NewRetriever(cfg.Memory, dense, memstore.NewStore(), log)
	p := pipeline.New(cfg,
		indexer.New(cfg.Indexer, svc, log, nil),
		retriever,
		queryproc.New(cfg.Query, svc, log, nil),
		rerank.New(cfg.Rerank, nil, log, nil),
		log, nil,
	)

	return NewRouter(cfg, log, &Handlers{
		Memory: handlers.NewMemoryHandler(p, log),
		Health: handlers.NewHealthHandler(nil),
	})
}

func TestRouter_MemoryRoutes(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{
		"speaker": "user",
		"text":    "I started a pottery class on Tuesdays",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memory/turns", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body, _ = json.Marshal(map[string]string{"query": "what class did I start on Tuesdays"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/memory/recall", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pottery")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/memory/stats", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_chunks")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/memory/flush", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/ready", "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
