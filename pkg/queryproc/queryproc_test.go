package queryproc

import (
	"context"
	"errors"
	"testing"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/completion"
	"github.com/echomem/echomem/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"})
}

func newTestProcessor(cfg config.QueryConfig, svc completion.Service) *Processor {
	return New(cfg, svc, testLogger(), nil)
}

func TestShouldRetrieve_Gate(t *testing.T) {
	skipped := []string{
		"hi", "Hi!", "hello", "HELLO", "hey", "bye", "goodnight",
		"ok", "okay", "yeah", "nope", "thanks", "thank you",
		"mm-hmm", "uh huh", "oh", "wow",
		"ok cool", "yeah sure", "ok thanks bye",
		"a", "no", ".",
	}
	for _, q := range skipped {
		if ShouldRetrieve(q) {
			t.Errorf("ShouldRetrieve(%q) = true, want false", q)
		}
	}

	retrieved := []string{
		"what did I tell you about my sister?",
		"how's that going",
		"remember my interview",
		"tell me about the trip we discussed",
		"hello world program", // 3 words, not all skip patterns
		"yes and also what about dinner",
	}
	for _, q := range retrieved {
		if !ShouldRetrieve(q) {
			t.Errorf("ShouldRetrieve(%q) = false, want true", q)
		}
	}
}

func TestProcess_GateShortCircuits(t *testing.T) {
	svc := completion.NewMockService("should never be called")
	p := newTestProcessor(config.QueryConfig{Recontextualize: true, Decompose: true, HyDE: true}, svc)

	res := p.Process(context.Background(), "hi", "user: long conversation context here")
	if res.ShouldRetrieve {
		t.Fatal("gate should decline greeting")
	}
	if svc.CallCount() != 0 {
		t.Errorf("no completion calls expected when gated, got %d", svc.CallCount())
	}
	if res.Rewritten != "hi" || len(res.SubQueries) != 1 {
		t.Errorf("gated result should carry the query unchanged: %+v", res)
	}
}

func TestRecontextualize(t *testing.T) {
	t.Run("resolves pronouns", func(t *testing.T) {
		svc := completion.NewMockService("")
		svc.Respond("resolving any pronouns", `"How is the user's job interview preparation going?"`)

		p := newTestProcessor(config.QueryConfig{}, svc)
		got := p.Recontextualize(context.Background(), "how's that going?", "user: I have a job interview tomorrow")
		if got != "How is the user's job interview preparation going?" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("specific long query skips service call", func(t *testing.T) {
		svc := completion.NewMockService("")
		p := newTestProcessor(config.QueryConfig{}, svc)

		q := "what did my sister say about the wedding plans last week"
		if got := p.Recontextualize(context.Background(), q, "some context"); got != q {
			t.Errorf("got %q", got)
		}
		if svc.CallCount() != 0 {
			t.Errorf("specific query should not call the service")
		}
	})

	t.Run("empty context skips", func(t *testing.T) {
		svc := completion.NewMockService("")
		p := newTestProcessor(config.QueryConfig{}, svc)
		if got := p.Recontextualize(context.Background(), "how's it going", ""); got != "how's it going" {
			t.Errorf("got %q", got)
		}
		if svc.CallCount() != 0 {
			t.Error("no context should mean no service call")
		}
	})

	t.Run("failure returns input unchanged", func(t *testing.T) {
		svc := completion.NewMockService("")
		svc.Fail(errors.New("down"))
		p := newTestProcessor(config.QueryConfig{}, svc)
		if got := p.Recontextualize(context.Background(), "how's that going", "ctx"); got != "how's that going" {
			t.Errorf("got %q", got)
		}
	})
}

func TestRewrite(t *testing.T) {
	svc := completion.NewMockService("")
	svc.Respond("semantic search query", "user's upcoming job interview at the bank and preparation status")

	p := newTestProcessor(config.QueryConfig{}, svc)
	got := p.Rewrite(context.Background(), "interview prep?", "")
	if got != "user's upcoming job interview at the bank and preparation status" {
		t.Errorf("got %q", got)
	}

	svc.Fail(errors.New("down"))
	if got := p.Rewrite(context.Background(), "interview prep?", ""); got != "interview prep?" {
		t.Errorf("failure fallback got %q", got)
	}
}

func TestDecompose(t *testing.T) {
	t.Run("includes original and caps at four", func(t *testing.T) {
		svc := completion.NewMockService("")
		svc.Respond("sub-queries", `["sister's wedding date", "wedding venue", "wedding guest list", "wedding budget", "wedding dress"]`)

		p := newTestProcessor(config.QueryConfig{}, svc)
		subs := p.Decompose(context.Background(), "tell me everything about my sister's wedding")
		if len(subs) > maxSubQueries {
			t.Fatalf("got %d sub-queries, cap is %d", len(subs), maxSubQueries)
		}
		if subs[0] != "tell me everything about my sister's wedding" {
			t.Errorf("original query must lead the set: %v", subs)
		}
	})

	t.Run("malformed JSON falls back", func(t *testing.T) {
		svc := completion.NewMockService("")
		svc.Respond("sub-queries", "not json at all")
		p := newTestProcessor(config.QueryConfig{}, svc)
		subs := p.Decompose(context.Background(), "complex query")
		if len(subs) != 1 || subs[0] != "complex query" {
			t.Errorf("got %v", subs)
		}
	})

	t.Run("prose around JSON tolerated", func(t *testing.T) {
		svc := completion.NewMockService("")
		svc.Respond("sub-queries", "Here you go:\n[\"part one\", \"part two\"]\nDone!")
		p := newTestProcessor(config.QueryConfig{}, svc)
		subs := p.Decompose(context.Background(), "original")
		if len(subs) != 3 {
			t.Fatalf("got %v", subs)
		}
	})
}

func TestGenerateHypothetical(t *testing.T) {
	svc := completion.NewMockService("")
	svc.Respond("hypothetical conversation memory", "User mentioned their job interview at Meridian Bank, feeling nervous but prepared.")

	p := newTestProcessor(config.QueryConfig{}, svc)
	got := p.GenerateHypothetical(context.Background(), "interview", "")
	if got == "interview" {
		t.Error("expected a generated snippet, got the query back")
	}

	svc.Fail(errors.New("down"))
	if got := p.GenerateHypothetical(context.Background(), "interview", ""); got != "interview" {
		t.Errorf("failure fallback got %q", got)
	}
}

func TestProcess_StageToggles(t *testing.T) {
	svc := completion.NewMockService("")
	svc.Respond("resolving any pronouns", "resolved query about the interview")
	svc.Respond("sub-queries", `["resolved query about the interview", "interview date"]`)
	svc.Respond("hypothetical conversation memory", "User has an interview next Tuesday.")

	p := newTestProcessor(config.QueryConfig{Recontextualize: true, Decompose: true, HyDE: true}, svc)
	res := p.Process(context.Background(), "how's that going", "user: I have an interview")

	if !res.ShouldRetrieve {
		t.Fatal("gate should pass")
	}
	if res.Rewritten != "resolved query about the interview" {
		t.Errorf("rewritten = %q", res.Rewritten)
	}
	if len(res.SubQueries) != 2 {
		t.Errorf("sub-queries = %v", res.SubQueries)
	}
	if res.HydeDocument == "" {
		t.Error("hyde document missing")
	}

	// All stages off: single variant, no calls beyond those already made.
	before := svc.CallCount()
	p.SetStages(false, false, false)
	res = p.Process(context.Background(), "how's that going", "user: I have an interview")
	if res.Rewritten != "how's that going" || len(res.SubQueries) != 1 || res.HydeDocument != "" {
		t.Errorf("stages off should leave query untouched: %+v", res)
	}
	if svc.CallCount() != before {
		t.Errorf("stages off should make no completion calls")
	}
}

func TestResultVariants_Deduplicates(t *testing.T) {
	r := Result{
		Rewritten:    "interview prep",
		SubQueries:   []string{"interview prep", "interview date", ""},
		HydeDocument: "interview date",
	}
	vars := r.Variants()
	if len(vars) != 2 {
		t.Fatalf("got %v", vars)
	}
	if vars[0] != "interview prep" || vars[1] != "interview date" {
		t.Errorf("got %v", vars)
	}
}
