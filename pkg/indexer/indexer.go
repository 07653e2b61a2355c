// Package indexer converts conversation turns into multiple overlapping
// memory representations: verbatim contextual chunks with a situating
// prefix, extracted fact lists, one-sentence summaries, and end-of-session
// digests. Enrichment failures degrade to fewer chunks, never to an
// indexing error.
package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/completion"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/metrics"
)

// Indexer turns ConversationTurns into MemoryChunks.
type Indexer struct {
	completions completion.Service
	log         logger.Logger
	metrics     *metrics.Manager

	chunkSize       int
	chunkOverlap    int
	contextLines    int
	minSessionTurns int

	newID func() string
}

// New builds an Indexer. The completion service may be nil, in which
// case context prefixes use the deterministic fallback and fact/summary
// extraction is skipped.
func New(cfg config.IndexerConfig, svc completion.Service, log logger.Logger, m *metrics.Manager) *Indexer {
	if m == nil {
		m = metrics.NoOpManager()
	}
	return &Indexer{
		completions:     svc,
		log:             log,
		metrics:         m,
		chunkSize:       cfg.ChunkSize,
		chunkOverlap:    cfg.ChunkOverlap,
		contextLines:    cfg.ContextWindowLines,
		minSessionTurns: cfg.SessionSummaryMinTurns,
		newID:           func() string { return uuid.NewString()[:8] },
	}
}

// IndexTurn converts one turn into chunks: one contextual chunk per text
// segment, plus a facts chunk and a summary chunk when extraction yields
// content. recentContext is the running transcript window used to
// situate the contextual chunks.
func (ix *Indexer) IndexTurn(ctx context.Context, turn mem.ConversationTurn, recentContext string) []*mem.MemoryChunk {
	baseID := ix.newID()
	baseMeta := mem.ChunkMeta{
		Speaker:        turn.Speaker,
		SessionID:      turn.SessionID,
		Timestamp:      turn.Timestamp,
		EmotionalState: turn.EmotionalState,
	}

	var chunks []*mem.MemoryChunk

	segments := ix.splitText(turn.Text)
	prefix := ix.contextPrefix(ctx, turn.Text, turn.Speaker, recentContext)
	for i, segment := range segments {
		text := segment
		if prefix != "" {
			text = prefix + "\n" + segment
		}
		meta := baseMeta
		meta.Type = mem.ChunkContextual
		meta.RawText = segment
		chunks = append(chunks, &mem.MemoryChunk{
			ID:   fmt.Sprintf("%s_ctx%d", baseID, i),
			Text: text,
			Meta: meta,
		})
		ix.metrics.RecordIndexedChunk(string(mem.ChunkContextual))
	}

	extracted := ix.extract(ctx, turn.Text, turn.Speaker)

	if len(extracted.Facts) > 0 {
		meta := baseMeta
		meta.Type = mem.ChunkFacts
		meta.Entities = extracted.Entities
		chunks = append(chunks, &mem.MemoryChunk{
			ID:   baseID + "_facts",
			Text: fmt.Sprintf("Facts from %s: %s", turn.Speaker, strings.Join(extracted.Facts, " | ")),
			Meta: meta,
		})
		ix.metrics.RecordIndexedChunk(string(mem.ChunkFacts))
	}

	if extracted.Summary != "" {
		meta := baseMeta
		meta.Type = mem.ChunkSummary
		if extracted.Emotion != "" {
			meta.EmotionalState = extracted.Emotion
		}
		chunks = append(chunks, &mem.MemoryChunk{
			ID:   baseID + "_summary",
			Text: extracted.Summary,
			Meta: meta,
		})
		ix.metrics.RecordIndexedChunk(string(mem.ChunkSummary))
	}

	return chunks
}

// IndexSession indexes every turn with a running context window threaded
// across turns, and appends one session_summary chunk when the session
// reaches the minimum turn count.
func (ix *Indexer) IndexSession(ctx context.Context, turns []mem.ConversationTurn) []*mem.MemoryChunk {
	var all []*mem.MemoryChunk

	var window []string
	for _, turn := range turns {
		all = append(all, ix.IndexTurn(ctx, turn, strings.Join(window, "\n"))...)
		window = append(window, turn.Speaker+": "+turn.Text)
		if len(window) > ix.contextLines {
			window = window[len(window)-ix.contextLines:]
		}
	}

	if summary := ix.SessionSummary(ctx, turns); summary != nil {
		all = append(all, summary)
	}
	return all
}

// SessionSummary produces the single session_summary chunk for a session,
// or nil when the session is too short or summarization failed.
func (ix *Indexer) SessionSummary(ctx context.Context, turns []mem.ConversationTurn) *mem.MemoryChunk {
	if len(turns) < ix.minSessionTurns {
		return nil
	}

	text := ix.summarizeSession(ctx, turns)
	if text == "" {
		return nil
	}

	sessionID := turns[0].SessionID
	if sessionID == "" {
		sessionID = ix.newID()
	}

	ix.metrics.RecordIndexedChunk(string(mem.ChunkSessionSummary))
	return &mem.MemoryChunk{
		ID:   fmt.Sprintf("session_%s_summary", sessionID),
		Text: text,
		Meta: mem.ChunkMeta{
			Type:      mem.ChunkSessionSummary,
			SessionID: sessionID,
			Timestamp: turns[len(turns)-1].Timestamp,
			TurnCount: len(turns),
		},
	}
}

// splitText breaks text into overlapping segments, preferring a
// sentence-ending break when one exists past half the target length.
// Size and overlap count characters, not bytes, so multi-byte text is
// never cut mid-rune.
func (ix *Indexer) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) <= ix.chunkSize {
		return []string{text}
	}

	var segments []string
	start := 0
	for start < len(runes) {
		end := start + ix.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		segment := runes[start:end]

		if end < len(runes) {
			boundary := lastSentenceEnd(segment)
			if boundary > ix.chunkSize/2 {
				segment = segment[:boundary+1]
				end = start + boundary + 1
			}
		}

		if s := strings.TrimSpace(string(segment)); s != "" {
			segments = append(segments, s)
		}

		next := end - ix.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return segments
}

// lastSentenceEnd returns the index of the last sentence-ending mark
// followed by a space, or -1.
func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 2; i >= 0; i-- {
		if runes[i+1] != ' ' {
			continue
		}
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
