package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/echomem/echomem/config"
)

func testConfig(endpoint string) config.CompletionConfig {
	return config.CompletionConfig{
		Endpoint:          endpoint,
		APIKey:            "test-key",
		Model:             "test-model",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	}
}

func TestHTTPServiceComplete(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "a concise summary"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	svc, err := NewHTTPService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewHTTPService: %v", err)
	}

	out, err := svc.Complete(context.Background(), Request{
		System:      "You summarize conversations.",
		Prompt:      "Summarize this.",
		MaxTokens:   128,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "a concise summary" {
		t.Errorf("unexpected completion: %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotModel != "test-model" {
		t.Errorf("expected model test-model, got %q", gotModel)
	}
}

func TestHTTPServiceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc, _ := NewHTTPService(testConfig(srv.URL))
	_, err := svc.Complete(context.Background(), Request{Prompt: "hi", Temperature: -1})
	if err == nil {
		t.Fatal("expected error")
	}

	var serr *ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ServiceError, got %T", err)
	}
	if serr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", serr.StatusCode)
	}
}

func TestHTTPServiceEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	svc, _ := NewHTTPService(testConfig(srv.URL))
	if _, err := svc.Complete(context.Background(), Request{Prompt: "hi", Temperature: -1}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestHTTPServiceRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPService(config.CompletionConfig{}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestHTTPServiceContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise r.Context() is never
		// cancelled and srv.Close deadlocks waiting on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	svc, _ := NewHTTPService(testConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := svc.Complete(ctx, Request{Prompt: "hi", Temperature: -1}); err == nil {
		t.Fatal("expected error after context cancellation")
	}
}

func TestMockServiceScripting(t *testing.T) {
	mock := NewMockService("fallback").
		Respond("summarize", "a summary").
		Respond("facts", "- likes jazz")

	out, err := mock.Complete(context.Background(), Request{Prompt: "please summarize this"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "a summary" {
		t.Errorf("expected scripted response, got %q", out)
	}

	out, _ = mock.Complete(context.Background(), Request{Prompt: "anything else"})
	if out != "fallback" {
		t.Errorf("expected fallback, got %q", out)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestMockServiceFailure(t *testing.T) {
	mock := NewMockService("ok").Fail(errors.New("service down"))

	_, err := mock.Complete(context.Background(), Request{Prompt: "hi"})
	var serr *ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ServiceError, got %T", err)
	}
}
