package completion

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MockService is a scriptable completion service for tests. Responses
// are matched by substring against the prompt; the first match wins.
type MockService struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	calls     []Request
}

// NewMockService creates a mock that returns fallback for any prompt.
func NewMockService(fallback string) *MockService {
	return &MockService{
		responses: make(map[string]string),
		fallback:  fallback,
	}
}

// Respond registers a response for prompts containing the substring.
func (m *MockService) Respond(substring, response string) *MockService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[substring] = response
	return m
}

// Fail makes every Complete call return a *ServiceError wrapping err.
func (m *MockService) Fail(err error) *MockService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns a copy of all requests seen so far.
func (m *MockService) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Complete calls made.
func (m *MockService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Complete implements Service.
func (m *MockService) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ServiceError{Op: "complete", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if m.err != nil {
		return "", &ServiceError{Op: "complete", Err: m.err}
	}
	for substr, resp := range m.responses {
		if strings.Contains(req.Prompt, substr) || strings.Contains(req.System, substr) {
			return resp, nil
		}
	}
	if m.fallback == "" {
		return "", &ServiceError{Op: "complete", Err: errors.New("no scripted response")}
	}
	return m.fallback, nil
}

var _ Service = (*MockService)(nil)
