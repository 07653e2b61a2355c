// Package memory provides the hybrid long-term memory index: a dense
// vector collection and a sparse BM25 index over the same chunk
// population, with reciprocal rank fusion, time-decay scoring, and
// diversity-aware selection.
package memory

import (
	"errors"
	"time"
)

// Sentinel errors for the memory system.
var (
	ErrNotFound           = errors.New("memory: chunk not found")
	ErrEmptyChunkID       = errors.New("memory: empty chunk ID")
	ErrInvalidChunkType   = errors.New("memory: invalid chunk type")
	ErrDimensionMismatch  = errors.New("memory: vector dimension mismatch")
	ErrStorageUnavailable = errors.New("memory: storage unavailable")
)

// ChunkType classifies what a memory chunk represents. The set is
// closed: every indexed chunk has exactly one of these types.
type ChunkType string

const (
	// ChunkContextual is a verbatim text segment, prefixed with a short
	// situating sentence so it stays interpretable out of context.
	ChunkContextual ChunkType = "contextual"
	// ChunkFacts holds factual statements extracted from one turn.
	ChunkFacts ChunkType = "facts"
	// ChunkSummary is a one-sentence distillation of a turn.
	ChunkSummary ChunkType = "summary"
	// ChunkSessionSummary is an end-of-session digest spanning many
	// turns. At most one exists per session.
	ChunkSessionSummary ChunkType = "session_summary"
)

// Valid reports whether t is a member of the closed chunk type set.
func (t ChunkType) Valid() bool {
	switch t {
	case ChunkContextual, ChunkFacts, ChunkSummary, ChunkSessionSummary:
		return true
	}
	return false
}

// Speaker labels for conversation turns.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// ConversationTurn is one utterance in a dialogue. Turns are immutable
// once created; they are produced by the conversation loop and consumed
// only by the indexer.
type ConversationTurn struct {
	Speaker        string    `json:"speaker"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	EmotionalState string    `json:"emotional_state"`
	SessionID      string    `json:"session_id"`
}

// NewTurn creates a turn with the timestamp set to now and the
// emotional state defaulted to neutral.
func NewTurn(speaker, text, emotionalState, sessionID string) ConversationTurn {
	if emotionalState == "" {
		emotionalState = "neutral"
	}
	return ConversationTurn{
		Speaker:        speaker,
		Text:           text,
		Timestamp:      time.Now(),
		EmotionalState: emotionalState,
		SessionID:      sessionID,
	}
}

// ChunkMeta carries the descriptive fields of a chunk. Only the fields
// relevant to the chunk's type are populated: RawText for contextual
// chunks, Entities for facts chunks, TurnCount for session summaries.
type ChunkMeta struct {
	Type           ChunkType `json:"chunk_type"`
	Speaker        string    `json:"speaker,omitempty"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	EmotionalState string    `json:"emotional_state,omitempty"`

	// RawText is the unprefixed segment of a contextual chunk, kept
	// for display.
	RawText string `json:"raw_text,omitempty"`
	// Entities are named entities extracted alongside a facts chunk.
	Entities []string `json:"entities,omitempty"`
	// TurnCount is the number of turns a session summary covers.
	TurnCount int `json:"turn_count,omitempty"`
}

// MemoryChunk is the unit stored in both indexes and returned by
// retrieval. Identity (ID) is permanent; the scoring fields are
// transient, recomputed per query and never persisted.
type MemoryChunk struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	Meta ChunkMeta `json:"metadata"`

	// Transient per-query scores.
	DenseScore  float64 `json:"dense_score,omitempty"`
	SparseScore float64 `json:"sparse_score,omitempty"`
	RRFScore    float64 `json:"rrf_score,omitempty"`
	RerankScore float64 `json:"rerank_score,omitempty"`
	FinalScore  float64 `json:"final_score,omitempty"`
}

// DisplayText returns the text to show in formatted output: the raw
// unprefixed segment when present, otherwise the indexed text.
func (c *MemoryChunk) DisplayText() string {
	if c.Meta.RawText != "" {
		return c.Meta.RawText
	}
	return c.Text
}

// Validate checks the chunk is storable.
func (c *MemoryChunk) Validate() error {
	if c.ID == "" {
		return ErrEmptyChunkID
	}
	if !c.Meta.Type.Valid() {
		return ErrInvalidChunkType
	}
	return nil
}
