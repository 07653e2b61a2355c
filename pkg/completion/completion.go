// Package completion provides access to an LLM completion service used
// for query rewriting, fact extraction, and summarization. All pipeline
// callers must tolerate failures: a completion error degrades the
// feature, never the request.
package completion

import (
	"context"
	"fmt"
)

// Request is a single completion request.
type Request struct {
	// System is the system prompt; empty means none.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens bounds the response length; 0 uses the service default.
	MaxTokens int
	// Temperature controls sampling; negative means the service default.
	Temperature float64
}

// Service produces text completions.
type Service interface {
	// Complete returns the completion text for the request. Errors are
	// of type *ServiceError when the service itself failed.
	Complete(ctx context.Context, req Request) (string, error)
}

// ServiceError describes a completion service failure.
type ServiceError struct {
	// Op is the attempted operation ("complete").
	Op string
	// StatusCode is the HTTP status, if the failure was an HTTP error.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
