// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package decision

import (
	"testing"
	"time"

	"github.com/pdiddy/research-agent/pkg/types"
)

type stubRecommender struct {
	rec types.Recommendations
	err error
}

func (s *stubRecommender) GetRecommendations(string) (types.Recommendations, error) {
	return s.rec, s.err
}

func ctxWith(mutate func(*types.DecisionContext)) *types.DecisionContext {
	c := &types.DecisionContext{
		RunID:     "run-1",
		Query:     "test query",
		State:     types.StateSearching,
		StartedAt: time.Now(),
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestDecideDefaultContinue(t *testing.T) {
	e := NewEngine(nil, nil)
	d := e.Decide(ctxWith(nil))
	if d.Action != types.ActionContinue {
		t.Errorf("action = %q, want continue", d.Action)
	}
}

func TestDecideErrorBudgetForcesFail(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		for i := 0; i < MaxErrors; i++ {
			c.Errors = append(c.Errors, types.Errorf(types.ErrNetwork, "boom %d", i))
		}
		// Even with perfect quality the error budget wins.
		c.Quality = types.QualityScore{Overall: 1.0}
		c.Progress = 0.9
	})
	d := e.Decide(c)
	if d.Action != types.ActionFail {
		t.Errorf("action = %q, want fail at %d errors", d.Action, MaxErrors)
	}
	if d.Rule != "too-many-errors" {
		t.Errorf("rule = %q, want too-many-errors", d.Rule)
	}
}

func TestDecideQualityMetCompletes(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.Quality.Overall = 0.85
		c.Progress = 0.9
	})
	d := e.Decide(c)
	if d.Action != types.ActionComplete {
		t.Errorf("action = %q, want complete", d.Action)
	}
}

func TestDecideRateLimitAdapts(t *testing.T) {
	rec := &stubRecommender{rec: types.Recommendations{
		Strategy:       &types.Strategy{Approach: types.ApproachFocused, VerificationLevel: types.VerifyStrict, MaxSources: 5},
		TrustedDomains: []string{"sec.gov"},
		SampleCount:    4,
	}}
	e := NewEngine(rec, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.Errors = append(c.Errors, types.Errorf(types.ErrRateLimit, "429"))
	})
	d := e.Decide(c)
	if d.Action != types.ActionAdapt {
		t.Fatalf("action = %q, want adapt", d.Action)
	}
	if len(d.StrategyHints) == 0 {
		t.Error("adapt decision should carry memory-derived hints")
	}
}

func TestDecideRecoverableErrorRetries(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.Sources = []types.SourceRecord{{URL: "https://example.com"}}
		c.Errors = append(c.Errors, types.Errorf(types.ErrTimeout, "slow"))
	})
	d := e.Decide(c)
	if d.Action != types.ActionRetry {
		t.Errorf("action = %q, want retry", d.Action)
	}
}

func TestDecideUnrecoverableErrorFails(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.Sources = []types.SourceRecord{{URL: "https://example.com"}}
		c.Errors = append(c.Errors, types.Errorf(types.ErrParsing, "bad payload"))
	})
	d := e.Decide(c)
	if d.Action != types.ActionFail {
		t.Errorf("action = %q, want fail", d.Action)
	}
}

func TestDecideNoSourcesTriggersParallelSearch(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.State = types.StateSearching
		c.Errors = append(c.Errors, types.Errorf(types.ErrQuality, "empty result"))
	})
	d := e.Decide(c)
	if d.Action != types.ActionParallelSearch {
		t.Errorf("action = %q, want parallel_search", d.Action)
	}
}

func TestConfidenceWithinRange(t *testing.T) {
	e := NewEngine(&stubRecommender{rec: types.Recommendations{ExpectedQuality: 0.9, SampleCount: 10}}, nil)
	contexts := []*types.DecisionContext{
		ctxWith(nil),
		ctxWith(func(c *types.DecisionContext) { c.Quality.Overall = 1.0; c.Progress = 1.0 }),
		ctxWith(func(c *types.DecisionContext) {
			for i := 0; i < 10; i++ {
				c.Errors = append(c.Errors, types.Errorf(types.ErrUnknown, "x"))
			}
		}),
	}
	for _, c := range contexts {
		d := e.Decide(c)
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("confidence = %v, out of [0,1]", d.Confidence)
		}
	}
}

func TestConfidenceBlendsMemory(t *testing.T) {
	low := NewEngine(&stubRecommender{rec: types.Recommendations{ExpectedQuality: 0.0, SampleCount: 10}}, nil)
	high := NewEngine(&stubRecommender{rec: types.Recommendations{ExpectedQuality: 1.0, SampleCount: 10}}, nil)

	c := ctxWith(nil)
	if low.Decide(c).Confidence >= high.Decide(c).Confidence {
		t.Error("higher historical quality should raise confidence")
	}
}

func TestEvaluateProgressLagging(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.StartedAt = time.Now().Add(-time.Hour)
		c.Deadline = c.StartedAt.Add(2 * time.Hour)
		c.Progress = 0.1
	})
	a := e.EvaluateProgress(c)
	if a.OnTrack {
		t.Error("10% progress at the halfway mark should be off track")
	}
	if len(a.Adjustments) == 0 {
		t.Error("off-track assessment should suggest raising parallelism")
	}
}

func TestEvaluateProgressOnTrack(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.StartedAt = time.Now().Add(-time.Minute)
		c.Deadline = c.StartedAt.Add(time.Hour)
		c.Progress = 0.5
	})
	a := e.EvaluateProgress(c)
	if !a.OnTrack {
		t.Errorf("assessment = %+v, want on track", a)
	}
}

func TestEvaluateProgressLowQualityLate(t *testing.T) {
	e := NewEngine(nil, nil)
	c := ctxWith(func(c *types.DecisionContext) {
		c.StartedAt = time.Now()
		c.Progress = 0.6
		c.Quality.Overall = 0.2
	})
	a := e.EvaluateProgress(c)
	found := false
	for _, adj := range a.Adjustments {
		if adj == "raise verification level: quality low past midpoint" {
			found = true
		}
	}
	if !found {
		t.Errorf("adjustments = %v, want verification escalation", a.Adjustments)
	}
}

func TestAddRuleOverridesByPriority(t *testing.T) {
	e := NewEngine(nil, nil)
	e.AddRule(Rule{
		Name:     "always-escalate",
		Priority: 200,
		When:     func(*types.DecisionContext) bool { return true },
		Action:   types.ActionEscalate,
	})
	d := e.Decide(ctxWith(nil))
	if d.Rule != "always-escalate" {
		t.Errorf("rule = %q, want the priority-200 rule to win", d.Rule)
	}
}
