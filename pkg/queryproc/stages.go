package queryproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echomem/echomem/pkg/completion"
)

const maxSubQueries = 4

// ambiguousTokens are pronoun-like words whose presence suggests the
// query needs conversational context to be self-contained.
var ambiguousTokens = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "he": {}, "she": {},
	"they": {}, "them": {}, "there": {},
}

// Recontextualize resolves pronouns and ambiguous references against
// the recent conversation. Queries that are already specific (no
// pronoun-like token and at least six words) skip the service call.
// On any failure the input query is returned unchanged.
func (p *Processor) Recontextualize(ctx context.Context, query, conversationContext string) string {
	if strings.TrimSpace(conversationContext) == "" || p.completions == nil {
		return query
	}

	hasAmbiguous := false
	words := strings.Fields(strings.ToLower(query))
	for _, w := range words {
		if _, ok := ambiguousTokens[strings.TrimRight(w, ".,!?")]; ok {
			hasAmbiguous = true
			break
		}
	}
	if !hasAmbiguous && len(words) >= 6 {
		return query
	}

	prompt := fmt.Sprintf(`Rewrite this query by resolving any pronouns or ambiguous references using the conversation context.

Recent conversation:
%s

User's query: %q

Rewrite the query to be self-contained and specific. If the query is already clear, return it unchanged.
Return ONLY the rewritten query, nothing else.`, conversationContext, query)

	out, err := p.completions.Complete(ctx, completion.Request{Prompt: prompt, MaxTokens: 100, Temperature: 0.1})
	if err != nil {
		p.log.WarnContext(ctx, "recontextualization failed", "error", err)
		return query
	}

	rewritten := strings.Trim(strings.TrimSpace(out), `"'`)
	if rewritten == "" {
		return query
	}
	return rewritten
}

// Rewrite enriches the query for semantic search: expanded
// abbreviations, explicit context. Falls back to the input on failure.
func (p *Processor) Rewrite(ctx context.Context, query, conversationContext string) string {
	if p.completions == nil {
		return query
	}
	if conversationContext == "" {
		conversationContext = "None"
	}

	prompt := fmt.Sprintf(`You are helping retrieve relevant memories for an AI companion.

User message: %q
Recent conversation: %s

Rewrite this as a semantic search query for memory retrieval.
Expand abbreviations, add relevant context, make it more explicit.
Return ONLY the rewritten query.`, query, conversationContext)

	out, err := p.completions.Complete(ctx, completion.Request{Prompt: prompt, MaxTokens: 150, Temperature: 0.3})
	if err != nil {
		p.log.WarnContext(ctx, "query rewriting failed", "error", err)
		return query
	}

	rewritten := strings.Trim(strings.TrimSpace(out), `"`)
	if rewritten == "" {
		return query
	}
	return rewritten
}

// GenerateHypothetical produces a hypothetical memory snippet that
// would answer the query, bridging the vocabulary gap between question
// phrasing and stored memories. Falls back to the query on failure.
func (p *Processor) GenerateHypothetical(ctx context.Context, query, conversationContext string) string {
	if p.completions == nil {
		return query
	}
	if conversationContext == "" {
		conversationContext = "general conversation"
	}

	prompt := fmt.Sprintf(`Generate a hypothetical conversation memory between a user and an AI companion relevant to this query.

Query: %q
Context: %s

Write a realistic 2-3 sentence memory snippet. Return ONLY the snippet.`, query, conversationContext)

	out, err := p.completions.Complete(ctx, completion.Request{Prompt: prompt, MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		p.log.WarnContext(ctx, "hypothetical document generation failed", "error", err)
		return query
	}
	if s := strings.TrimSpace(out); s != "" {
		return s
	}
	return query
}

// Decompose breaks a complex query into 2-4 simpler sub-queries. The
// original query is always in the returned set, and failure returns it
// alone.
func (p *Processor) Decompose(ctx context.Context, query string) []string {
	if p.completions == nil {
		return []string{query}
	}

	prompt := fmt.Sprintf(`Break this query into 2-4 simple sub-queries for memory retrieval.
Query: %q

Return a JSON array of strings. Example: ["sub-query 1", "sub-query 2"]
If already simple, return just: [%q]
Return ONLY valid JSON.`, query, query)

	out, err := p.completions.Complete(ctx, completion.Request{Prompt: prompt, MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		p.log.WarnContext(ctx, "query decomposition failed", "error", err)
		return []string{query}
	}

	raw, ok := extractJSONArray(out)
	if !ok {
		return []string{query}
	}
	var subs []string
	if err := json.Unmarshal([]byte(raw), &subs); err != nil {
		p.log.WarnContext(ctx, "query decomposition returned malformed JSON", "error", err)
		return []string{query}
	}

	cleaned := make([]string, 0, len(subs)+1)
	hasOriginal := false
	for _, s := range subs {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		if s == query {
			hasOriginal = true
		}
		cleaned = append(cleaned, s)
	}
	if !hasOriginal {
		cleaned = append([]string{query}, cleaned...)
	}
	if len(cleaned) == 0 {
		return []string{query}
	}
	if len(cleaned) > maxSubQueries {
		cleaned = cleaned[:maxSubQueries]
	}
	return cleaned
}

// extractJSONArray finds the outermost [...] span in a completion
// response, tolerating prose around the JSON.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
