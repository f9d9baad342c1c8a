// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decision evaluates prioritized condition/action rules against
// the live execution context to pick the next orchestration action.
package decision

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	// MaxErrors is the accumulated error count that forces a fail
	// decision regardless of other rules.
	MaxErrors = 5

	// qualityTarget is the overall quality at which a run may complete.
	qualityTarget = 0.7

	// qualityFloor is the overall quality below which escalation kicks
	// in past the run midpoint.
	qualityFloor = 0.4

	// memoryBlend is the weight of the historical expected quality in
	// the confidence adjustment.
	memoryBlend = 0.3

	// errorPenalty is the confidence cost per accumulated error.
	errorPenalty = 0.05

	// defaultRunBudget is the reference wall time for the linear
	// progress curve when the caller sets no deadline.
	defaultRunBudget = 2 * time.Minute
)

// Recommender supplies historical advice for a query. The memory store
// implements it.
type Recommender interface {
	GetRecommendations(query string) (types.Recommendations, error)
}

// Rule is one prioritized condition/action pair.
type Rule struct {
	// Name identifies the rule in decisions and logs.
	Name string

	// Priority orders evaluation; higher evaluates first.
	Priority int

	// Description explains what the rule reacts to.
	Description string

	// When reports whether the rule applies to the context.
	When func(*types.DecisionContext) bool

	// Action is the decision the rule yields.
	Action types.ActionKind
}

// Engine evaluates rules in descending priority; the first match wins.
type Engine struct {
	rules       []Rule
	recommender Recommender
	logger      *zap.Logger
}

// NewEngine builds an Engine with the default rule set. recommender may
// be nil, disabling memory-informed adjustments.
func NewEngine(recommender Recommender, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{recommender: recommender, logger: logger}
	e.rules = defaultRules()
	e.sortRules()
	return e
}

// AddRule installs an additional rule, keeping evaluation order.
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
	e.sortRules()
}

func (e *Engine) sortRules() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "too-many-errors",
			Priority:    100,
			Description: "accumulated errors exceed the hard budget",
			When:        func(c *types.DecisionContext) bool { return c.ErrorCount() >= MaxErrors },
			Action:      types.ActionFail,
		},
		{
			Name:        "quality-met",
			Priority:    90,
			Description: "quality target reached with the run nearly done",
			When: func(c *types.DecisionContext) bool {
				return c.Quality.Overall >= qualityTarget && c.Progress >= 0.75
			},
			Action: types.ActionComplete,
		},
		{
			Name:        "rate-limited",
			Priority:    80,
			Description: "latest error is a rate limit; re-strategize",
			When: func(c *types.DecisionContext) bool {
				err := c.LatestError()
				return err != nil && err.Kind == types.ErrRateLimit
			},
			Action: types.ActionAdapt,
		},
		{
			Name:        "no-sources-found",
			Priority:    70,
			Description: "searching produced nothing; widen the net",
			When: func(c *types.DecisionContext) bool {
				return c.State == types.StateSearching && len(c.Sources) == 0 && c.ErrorCount() > 0
			},
			Action: types.ActionParallelSearch,
		},
		{
			Name:        "low-quality-late",
			Priority:    60,
			Description: "quality under the floor past the midpoint",
			When: func(c *types.DecisionContext) bool {
				return c.Progress > 0.5 && c.Quality.Overall < qualityFloor
			},
			Action: types.ActionEscalate,
		},
		{
			Name:        "recoverable-error",
			Priority:    50,
			Description: "latest error is recoverable; retry the phase",
			When: func(c *types.DecisionContext) bool {
				err := c.LatestError()
				return err != nil && err.Kind.Recoverable()
			},
			Action: types.ActionRetry,
		},
		{
			Name:        "unrecoverable-error",
			Priority:    40,
			Description: "latest error cannot be recovered",
			When: func(c *types.DecisionContext) bool {
				err := c.LatestError()
				return err != nil && !err.Kind.Recoverable()
			},
			Action: types.ActionFail,
		},
		{
			Name:        "default-continue",
			Priority:    10,
			Description: "nothing demands intervention",
			When:        func(*types.DecisionContext) bool { return true },
			Action:      types.ActionContinue,
		},
	}
}

// Decide evaluates the rules against ctx and returns the winning
// decision with an adjusted confidence.
func (e *Engine) Decide(ctx *types.DecisionContext) types.Decision {
	for _, r := range e.rules {
		if !r.When(ctx) {
			continue
		}
		d := types.Decision{
			Action:     r.Action,
			Rule:       r.Name,
			Reason:     r.Description,
			Confidence: e.confidence(r, ctx),
		}
		if r.Action == types.ActionAdapt {
			d.StrategyHints = e.strategyHints(ctx)
		}
		e.logger.Debug("decision",
			zap.String("rule", r.Name),
			zap.String("action", string(r.Action)),
			zap.Float64("confidence", d.Confidence))
		return d
	}
	// Unreachable while the default rule exists.
	return types.Decision{Action: types.ActionContinue, Rule: "fallthrough", Confidence: 0.5}
}

// confidence normalizes the rule's priority to [0,1] and adjusts it by
// current quality, accumulated errors, and the pattern's historical
// expected quality.
func (e *Engine) confidence(r Rule, ctx *types.DecisionContext) float64 {
	conf := float64(r.Priority) / 100.0
	conf += 0.2 * (ctx.Quality.Overall - 0.5)
	conf -= errorPenalty * float64(ctx.ErrorCount())

	if e.recommender != nil {
		if rec, err := e.recommender.GetRecommendations(ctx.Query); err == nil && rec.SampleCount > 0 {
			conf = (1-memoryBlend)*conf + memoryBlend*rec.ExpectedQuality
		}
	}
	return types.Clamp01(conf)
}

// strategyHints pulls memory recommendations to enrich adapt decisions.
func (e *Engine) strategyHints(ctx *types.DecisionContext) []string {
	if e.recommender == nil {
		return nil
	}
	rec, err := e.recommender.GetRecommendations(ctx.Query)
	if err != nil {
		e.logger.Debug("recommendations unavailable", zap.Error(err))
		return nil
	}
	var hints []string
	if rec.Strategy != nil {
		hints = append(hints, fmt.Sprintf("historical best approach: %s (verification %s, %d sources)",
			rec.Strategy.Approach, rec.Strategy.VerificationLevel, rec.Strategy.MaxSources))
	}
	for _, d := range rec.TrustedDomains {
		hints = append(hints, "prefer domain: "+d)
	}
	for _, d := range rec.UntrustedDomains {
		hints = append(hints, "avoid domain: "+d)
	}
	return hints
}

// Assessment is EvaluateProgress's answer.
type Assessment struct {
	// OnTrack reports whether progress keeps pace with the linear
	// time curve.
	OnTrack bool

	// ExpectedProgress is where the linear curve says the run should be.
	ExpectedProgress float64

	// Adjustments lists suggested knob changes.
	Adjustments []string
}

// EvaluateProgress compares actual progress against a linear-time curve
// over the run budget and suggests adjustments.
func (e *Engine) EvaluateProgress(ctx *types.DecisionContext) Assessment {
	budget := defaultRunBudget
	if !ctx.Deadline.IsZero() && !ctx.StartedAt.IsZero() {
		budget = ctx.Deadline.Sub(ctx.StartedAt)
	}

	expected := 0.0
	if budget > 0 {
		expected = types.Clamp01(float64(ctx.Elapsed()) / float64(budget))
	}

	a := Assessment{
		OnTrack:          ctx.Progress >= expected-0.1,
		ExpectedProgress: expected,
	}
	if !a.OnTrack {
		a.Adjustments = append(a.Adjustments, "raise parallelism: progress lags the expected curve")
	}
	if ctx.Progress > 0.5 && ctx.Quality.Overall < qualityFloor {
		a.Adjustments = append(a.Adjustments, "raise verification level: quality low past midpoint")
	}
	return a
}
