package pipeline

import (
	"fmt"
	"strings"
	"time"

	mem "github.com/echomem/echomem/pkg/memory"
)

// formatContext renders recalled chunks into the structured text block
// injected into the agent's prompt: session digests first, then facts
// and summaries, then verbatim exchanges, each line tagged with a
// human-readable age.
func (p *Pipeline) formatContext(chunks []*mem.MemoryChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	now := p.now()
	var highlights, facts, verbatim []string

	for _, c := range chunks {
		age := ageLabel(now.Sub(c.Meta.Timestamp))
		text := c.DisplayText()

		switch c.Meta.Type {
		case mem.ChunkSessionSummary:
			highlights = append(highlights, fmt.Sprintf("  [%s] %s", age, text))
		case mem.ChunkFacts, mem.ChunkSummary:
			facts = append(facts, fmt.Sprintf("  [%s] %s", age, text))
		default:
			speaker := c.Meta.Speaker
			if speaker == "" {
				speaker = "unknown"
			}
			verbatim = append(verbatim, fmt.Sprintf("  [%s] %s: %s", age, speaker, text))
		}
	}

	var sections []string
	if len(highlights) > 0 {
		sections = append(sections, "PAST SESSION HIGHLIGHTS:\n"+strings.Join(highlights, "\n"))
	}
	if len(facts) > 0 {
		sections = append(sections, "RELEVANT FACTS:\n"+strings.Join(facts, "\n"))
	}
	if len(verbatim) > 0 {
		sections = append(sections, "RELEVANT EXCHANGES:\n"+strings.Join(verbatim, "\n"))
	}
	if len(sections) == 0 {
		return ""
	}

	return "=== MEMORY ===\n" + strings.Join(sections, "\n\n") + "\n=============="
}

// ageLabel renders a memory's age for prompt display.
func ageLabel(age time.Duration) string {
	switch {
	case age < 2*time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(age.Hours()/(24*7)))
	}
}
