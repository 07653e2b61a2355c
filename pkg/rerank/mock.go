package rerank

import (
	"context"
	"strings"
	"sync"
)

// MockScorer is a test scorer with scripted scores.
type MockScorer struct {
	mu          sync.Mutex
	scores      map[string]float64
	defaultVal  float64
	err         error
	unavailable bool
	calls       int
}

// NewMockScorer returns a scorer that gives every document the default
// score until scripted otherwise.
func NewMockScorer(defaultScore float64) *MockScorer {
	return &MockScorer{
		scores:     make(map[string]float64),
		defaultVal: defaultScore,
	}
}

// ScoreFor sets the score returned for documents containing substring.
func (m *MockScorer) ScoreFor(substring string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[substring] = score
}

// Fail makes every Score call return err.
func (m *MockScorer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetUnavailable toggles availability.
func (m *MockScorer) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

// Calls reports how many Score calls were made.
func (m *MockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Available implements Scorer.
func (m *MockScorer) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

// Score implements Scorer.
func (m *MockScorer) Score(_ context.Context, _, document string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	for sub, score := range m.scores {
		if strings.Contains(document, sub) {
			return score, nil
		}
	}
	return m.defaultVal, nil
}

var _ Scorer = (*MockScorer)(nil)
