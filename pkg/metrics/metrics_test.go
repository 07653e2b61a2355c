package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}

	// No-op recording must not panic.
	m.RecordRecall("served")
	m.RecordStageDuration(StageRetrieve, time.Millisecond)
	m.RecordIndexedChunk("facts")
	m.RecordCompletionCall("hyde", "ok")
	m.RecordHTTPRequest("GET", "/stats", "200", time.Millisecond)
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	m.RecordRecall("served")
	m.RecordRecall("gated")
	m.RecordGateSkip()
	m.RecordStageDuration(StageRetrieve, 25*time.Millisecond)
	m.RecordIndexedChunk("contextual")
	m.RecordIndexedChunk("session_summary")
	m.RecordSessionFlush("summarized")
	m.SetIndexSize("chunks", 42)
	m.RecordCompletionCall("session_summary", "ok")
	m.RecordRerankChunk("discarded")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"recalls_total",
		"gate_skips_total",
		"recall_stage_duration_seconds",
		"indexed_chunks_total",
		"session_flushes_total",
		"index_size",
		"completion_calls_total",
		"rerank_chunks_total",
	}
	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NoOpManager()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for disabled metrics, got %d", w.Code)
	}
}

func TestHTTPMetrics(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordHTTPRequest("POST", "/api/v1/memory/recall", "200", 10*time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Error("Expected http_requests_total in output")
	}
	if !strings.Contains(body, "http_request_duration_seconds") {
		t.Error("Expected http_request_duration_seconds in output")
	}
}
