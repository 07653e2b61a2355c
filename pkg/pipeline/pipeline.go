// Package pipeline orchestrates the memory subsystem: remember buffers
// and indexes conversation turns, flush closes a session with a digest,
// and recall runs the full retrieval chain (gate, query processing,
// hybrid retrieval, reranking, diversity selection, formatting).
// Internal failures degrade the result, never the caller: recall always
// returns something, possibly empty.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/indexer"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/metrics"
	"github.com/echomem/echomem/pkg/queryproc"
	"github.com/echomem/echomem/pkg/rerank"
)

// Pipeline wires the indexer, retriever, query processor, and reranker
// into the public memory API.
type Pipeline struct {
	indexer   *indexer.Indexer
	retriever *mem.Retriever
	queries   *queryproc.Processor
	reranker  *rerank.Reranker
	log       logger.Logger
	metrics   *metrics.Manager

	topKFinal int
	topKFused int

	// mu guards the session buffer, running context, and hot-reloadable
	// tunables below.
	mu            sync.Mutex
	sessionID     string
	sessionTurns  []mem.ConversationTurn
	recentContext []string
	contextLines  int
	minFlushTurns int
	mmrLambda     float64
	useMMR        bool

	now func() time.Time
}

// New builds a Pipeline with a fresh session.
func New(cfg *config.Config, ix *indexer.Indexer, r *mem.Retriever, qp *queryproc.Processor, rr *rerank.Reranker, log logger.Logger, m *metrics.Manager) *Pipeline {
	if m == nil {
		m = metrics.NoOpManager()
	}
	contextLines := cfg.Indexer.ContextWindowLines
	if contextLines <= 0 {
		contextLines = 6
	}
	return &Pipeline{
		indexer:       ix,
		retriever:     r,
		queries:       qp,
		reranker:      rr,
		log:           log,
		metrics:       m,
		topKFinal:     cfg.Memory.TopKFinal,
		topKFused:     cfg.Memory.TopKFused,
		sessionID:     uuid.NewString()[:8],
		contextLines:  contextLines,
		minFlushTurns: cfg.Indexer.SessionSummaryMinTurns,
		mmrLambda:     cfg.Memory.MMRLambda,
		useMMR:        true,
		now:           time.Now,
	}
}

// SessionID returns the current session identifier.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// SetMMRLambda updates the diversity tradeoff at runtime.
func (p *Pipeline) SetMMRLambda(lambda float64) {
	p.mu.Lock()
	p.mmrLambda = lambda
	p.mu.Unlock()
}

// Remember stores one conversation turn: it is appended to the session
// buffer and the running context, indexed immediately, and written to
// both retrieval indexes. Indexing failures are logged and swallowed so
// the conversation loop never blocks on memory.
func (p *Pipeline) Remember(ctx context.Context, speaker, text, emotionalState string) error {
	ctx, span := pipelineTracer().Start(ctx, spanRemember)
	defer span.End()

	p.mu.Lock()
	turn := mem.NewTurn(speaker, text, emotionalState, p.sessionID)
	p.sessionTurns = append(p.sessionTurns, turn)
	p.recentContext = append(p.recentContext, speaker+": "+text)
	if len(p.recentContext) > p.contextLines {
		p.recentContext = p.recentContext[len(p.recentContext)-p.contextLines:]
	}
	recent := strings.Join(p.recentContext, "\n")
	p.mu.Unlock()

	chunks := p.indexer.IndexTurn(ctx, turn, recent)
	span.SetAttributes(
		attribute.String("memory.session_id", turn.SessionID),
		attribute.Int("memory.chunks_indexed", len(chunks)),
	)
	if len(chunks) == 0 {
		return nil
	}
	if err := p.retriever.AddMemoriesBatch(ctx, chunks); err != nil {
		p.log.ErrorContext(ctx, "failed to index turn", "error", err, "session", turn.SessionID)
		return err
	}
	return nil
}

// FlushSession closes the current session: when enough turns have
// accumulated it indexes one session summary chunk (the individual turn
// chunks were already written incrementally), then clears the buffer
// and running context and starts a new session. Flushing an empty
// buffer is a no-op.
func (p *Pipeline) FlushSession(ctx context.Context) error {
	ctx, span := pipelineTracer().Start(ctx, spanFlushSession)
	defer span.End()

	p.mu.Lock()
	turns := p.sessionTurns
	p.sessionTurns = nil
	p.recentContext = nil
	p.sessionID = uuid.NewString()[:8]
	p.mu.Unlock()

	if len(turns) == 0 {
		return nil
	}
	if len(turns) < p.minFlushTurns {
		p.metrics.RecordSessionFlush("skipped")
		return nil
	}

	summary := p.indexer.SessionSummary(ctx, turns)
	if summary == nil {
		p.metrics.RecordSessionFlush("no_summary")
		return nil
	}
	if err := p.retriever.AddMemory(ctx, summary); err != nil {
		p.metrics.RecordSessionFlush("error")
		p.log.ErrorContext(ctx, "failed to index session summary", "error", err, "session", summary.Meta.SessionID)
		return err
	}
	p.metrics.RecordSessionFlush("indexed")
	return nil
}

// Recall runs the retrieval chain and formats the surviving memories
// into a prompt-ready text block. A gated query or any internal failure
// yields an empty string.
func (p *Pipeline) Recall(ctx context.Context, query, conversationContext string, topK int) string {
	chunks := p.RecallChunks(ctx, query, conversationContext, topK)
	return p.formatContext(chunks)
}

// RecallChunks is Recall without formatting: it returns the ranked,
// diversity-selected chunks themselves.
func (p *Pipeline) RecallChunks(ctx context.Context, query, conversationContext string, topK int) []*mem.MemoryChunk {
	ctx, span := pipelineTracer().Start(ctx, spanRecall)
	defer span.End()

	start := p.now()
	if topK <= 0 {
		topK = p.topKFinal
	}

	if conversationContext == "" {
		p.mu.Lock()
		conversationContext = strings.Join(p.recentContext, "\n")
		p.mu.Unlock()
	}

	stageStart := p.now()
	procCtx, procSpan := pipelineTracer().Start(ctx, spanRecallProcess)
	processed := p.queries.Process(procCtx, query, conversationContext)
	procSpan.End()
	p.metrics.RecordStageDuration(metrics.StageRewrite, p.now().Sub(stageStart))

	span.SetAttributes(attribute.Bool("memory.gated", !processed.ShouldRetrieve))
	if !processed.ShouldRetrieve {
		p.metrics.RecordRecall("gated")
		return nil
	}

	fusedK := p.topKFused
	if fusedK < topK+2 {
		fusedK = topK + 2
	}
	stageStart = p.now()
	retrCtx, retrSpan := pipelineTracer().Start(ctx, spanRecallRetrieve)
	candidates, err := p.retriever.Retrieve(retrCtx, processed.Variants(), fusedK)
	retrSpan.SetAttributes(attribute.Int("memory.candidates", len(candidates)))
	retrSpan.End()
	p.metrics.RecordStageDuration(metrics.StageRetrieve, p.now().Sub(stageStart))
	if err != nil {
		p.log.ErrorContext(ctx, "retrieval failed", "error", err)
		p.metrics.RecordRecall("error")
		return nil
	}
	if len(candidates) == 0 {
		p.metrics.RecordRecall("empty")
		return nil
	}

	if p.reranker != nil && len(candidates) > topK {
		stageStart = p.now()
		rerankCtx, rerankSpan := pipelineTracer().Start(ctx, spanRecallRerank)
		reranked, err := p.reranker.Rerank(rerankCtx, processed.Rewritten, candidates)
		rerankSpan.End()
		p.metrics.RecordStageDuration(metrics.StageRerank, p.now().Sub(stageStart))
		if err != nil {
			p.log.WarnContext(ctx, "reranking failed, keeping fused order", "error", err)
		} else {
			candidates = reranked
		}
		if len(candidates) > topK+2 {
			candidates = candidates[:topK+2]
		}
	}

	p.mu.Lock()
	lambda := p.mmrLambda
	useMMR := p.useMMR
	p.mu.Unlock()

	if useMMR && len(candidates) > topK {
		stageStart = p.now()
		selCtx, selSpan := pipelineTracer().Start(ctx, spanRecallSelect)
		diverse, err := p.retriever.SelectDiverse(selCtx, candidates, lambda, topK)
		selSpan.End()
		p.metrics.RecordStageDuration(metrics.StageSelect, p.now().Sub(stageStart))
		if err != nil {
			p.log.WarnContext(ctx, "diversity selection failed, truncating by score", "error", err)
			candidates = candidates[:topK]
		} else {
			candidates = diverse
		}
	} else if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	span.SetAttributes(attribute.Int("memory.chunks_served", len(candidates)))
	p.metrics.RecordRecall("served")
	p.metrics.RecordChunksServed(len(candidates))
	p.log.DebugContext(ctx, "recall complete",
		"chunks", len(candidates),
		"variants", len(processed.Variants()),
		"elapsed", p.now().Sub(start),
	)
	return candidates
}

// Stats reports index and session statistics.
type Stats struct {
	TotalChunks   int    `json:"total_chunks"`
	SparseDocs    int    `json:"sparse_docs"`
	SessionID     string `json:"session_id"`
	BufferedTurns int    `json:"buffered_turns"`
}

// Stats returns current index and session statistics.
func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	total, err := p.retriever.DenseCount(ctx)
	if err != nil {
		return Stats{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		TotalChunks:   total,
		SparseDocs:    p.retriever.SparseLen(),
		SessionID:     p.sessionID,
		BufferedTurns: len(p.sessionTurns),
	}, nil
}
