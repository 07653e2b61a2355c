// Package queryproc transforms raw user utterances into
// retrieval-optimized query variants: an adaptive gate skips retrieval
// for greetings and backchannels, recontextualization resolves
// pronouns against recent conversation, rewriting enriches the query
// for semantic search, and optional HyDE/decomposition stages widen
// the variant set. Every completion failure degrades to the unmodified
// query.
package queryproc

import (
	"context"
	"strings"
	"sync"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/completion"
	"github.com/echomem/echomem/pkg/logger"
	"github.com/echomem/echomem/pkg/metrics"
)

// Result carries every query variant the retriever should search with.
type Result struct {
	Original       string
	Rewritten      string
	SubQueries     []string
	HydeDocument   string
	ShouldRetrieve bool
}

// Variants returns the deduplicated set of retrieval queries.
func (r Result) Variants() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	add(r.Rewritten)
	for _, sq := range r.SubQueries {
		add(sq)
	}
	add(r.HydeDocument)
	return out
}

// Processor runs the query understanding stages.
type Processor struct {
	completions completion.Service
	log         logger.Logger
	metrics     *metrics.Manager

	mu              sync.RWMutex
	recontextualize bool
	decompose       bool
	hyde            bool
}

// New builds a Processor. A nil completion service disables every
// LLM-backed stage; the gate still applies.
func New(cfg config.QueryConfig, svc completion.Service, log logger.Logger, m *metrics.Manager) *Processor {
	if m == nil {
		m = metrics.NoOpManager()
	}
	return &Processor{
		completions:     svc,
		log:             log,
		metrics:         m,
		recontextualize: cfg.Recontextualize,
		decompose:       cfg.Decompose,
		hyde:            cfg.HyDE,
	}
}

// SetStages updates the optional stage toggles at runtime.
func (p *Processor) SetStages(recontextualize, decompose, hyde bool) {
	p.mu.Lock()
	p.recontextualize = recontextualize
	p.decompose = decompose
	p.hyde = hyde
	p.mu.Unlock()
}

// Process runs the full pipeline. When the gate declines, the result
// carries ShouldRetrieve=false and no stage runs.
func (p *Processor) Process(ctx context.Context, query, conversationContext string) Result {
	result := Result{
		Original:       query,
		Rewritten:      query,
		SubQueries:     []string{query},
		ShouldRetrieve: true,
	}

	if !ShouldRetrieve(query) {
		result.ShouldRetrieve = false
		p.metrics.RecordGateSkip()
		return result
	}

	p.mu.RLock()
	recontextualize, decompose, hyde := p.recontextualize, p.decompose, p.hyde
	p.mu.RUnlock()

	if recontextualize {
		result.Rewritten = p.Recontextualize(ctx, query, conversationContext)
	}
	if decompose {
		result.SubQueries = p.Decompose(ctx, result.Rewritten)
	}
	if hyde {
		result.HydeDocument = p.GenerateHypothetical(ctx, result.Rewritten, conversationContext)
	}
	return result
}
