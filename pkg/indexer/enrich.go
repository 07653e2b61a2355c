package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echomem/echomem/pkg/completion"
	mem "github.com/echomem/echomem/pkg/memory"
)

func completionRequest(prompt string, maxTokens int, temperature float64) completion.Request {
	return completion.Request{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// extraction is the structured enrichment requested once per turn.
type extraction struct {
	Facts    []string `json:"facts"`
	Entities []string `json:"entities"`
	Summary  string   `json:"summary"`
	Emotion  string   `json:"emotion_detected"`
}

// contextPrefix asks the completion service for a 1-2 sentence prefix
// situating the chunk in the running conversation. The first turn of a
// session gets a deterministic prefix without a service call, and any
// service failure falls back to a minimal speaker tag.
func (ix *Indexer) contextPrefix(ctx context.Context, text, speaker, recentContext string) string {
	if strings.TrimSpace(recentContext) == "" {
		return fmt.Sprintf("[%s speaking at the start of the conversation]", speaker)
	}
	if ix.completions == nil {
		return fmt.Sprintf("[%s speaking]", speaker)
	}

	excerpt := text
	if runes := []rune(excerpt); len(runes) > 300 {
		excerpt = string(runes[:300])
	}
	prompt := fmt.Sprintf(`You are creating a brief context prefix for a conversation chunk to help with memory retrieval.

Recent conversation:
%s

Current chunk from %s: %q

Write a concise 1-2 sentence prefix that situates this chunk in context. Include:
- Who is speaking and the conversation topic
- Any emotional context or key references

Return ONLY the prefix text, wrapped in square brackets.`, recentContext, speaker, excerpt)

	out, err := ix.completions.Complete(ctx, completionRequest(prompt, 100, 0.1))
	if err != nil {
		ix.log.WarnContext(ctx, "context prefix generation failed", "error", err)
		return fmt.Sprintf("[%s speaking]", speaker)
	}

	prefix := strings.TrimSpace(out)
	if prefix == "" {
		return fmt.Sprintf("[%s speaking]", speaker)
	}
	if !strings.HasPrefix(prefix, "[") {
		prefix = "[" + prefix
	}
	if !strings.HasSuffix(prefix, "]") {
		prefix = prefix + "]"
	}
	return prefix
}

// extract requests facts, entities, a summary, and a detected emotion
// for one turn. Any failure, including malformed output, yields an
// empty extraction so the turn is still indexed verbatim.
func (ix *Indexer) extract(ctx context.Context, text, speaker string) extraction {
	if ix.completions == nil {
		return extraction{}
	}

	prompt := fmt.Sprintf(`Analyze this conversation turn from %q and extract:
1. Key facts/statements (list of short strings)
2. Named entities (people, places, things mentioned)
3. One-sentence summary
4. Primary emotion detected

Text: %q

Return ONLY valid JSON:
{
  "facts": ["fact1", "fact2"],
  "entities": ["entity1"],
  "summary": "one sentence summary",
  "emotion_detected": "emotion"
}`, speaker, text)

	out, err := ix.completions.Complete(ctx, completionRequest(prompt, 250, 0.1))
	if err != nil {
		ix.log.WarnContext(ctx, "metadata extraction failed", "error", err)
		return extraction{}
	}

	var ex extraction
	if raw, ok := extractJSONObject(out); ok {
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			ix.log.WarnContext(ctx, "metadata extraction returned malformed JSON", "error", err)
			return extraction{}
		}
	}
	ex.Facts = trimNonEmpty(ex.Facts)
	ex.Entities = trimNonEmpty(ex.Entities)
	ex.Summary = strings.TrimSpace(ex.Summary)
	ex.Emotion = strings.TrimSpace(ex.Emotion)
	return ex
}

// summarizeSession produces a 3-4 sentence digest of the session,
// covering at most the last 20 turns. Returns "" on failure.
func (ix *Indexer) summarizeSession(ctx context.Context, turns []mem.ConversationTurn) string {
	if ix.completions == nil {
		return ""
	}

	if len(turns) > 20 {
		turns = turns[len(turns)-20:]
	}
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(strings.ToUpper(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Summarize this conversation between a user and an AI companion in 3-4 sentences.
Focus on: topics discussed, emotional arc, key facts about the user revealed.

Conversation:
%s
Return ONLY the summary paragraph.`, b.String())

	out, err := ix.completions.Complete(ctx, completionRequest(prompt, 200, 0.3))
	if err != nil {
		ix.log.WarnContext(ctx, "session summarization failed", "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// extractJSONObject finds the outermost {...} span in a completion
// response, tolerating prose around the JSON.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func trimNonEmpty(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
