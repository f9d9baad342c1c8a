// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan turns a natural-language query into a research strategy
// and an ordered, dependency-aware step list. Analysis is heuristic
// first; an inference service, when available, only refines the result.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// QueryKind classifies what a query is asking for.
type QueryKind string

const (
	KindFactual     QueryKind = "factual"
	KindNumeric     QueryKind = "numeric"
	KindComparison  QueryKind = "comparison"
	KindExploratory QueryKind = "exploratory"
)

// Strategy defaults per query kind.
const (
	defaultMaxSources  = 8
	broadMaxSources    = 12
	focusedMaxSources  = 5
	defaultParallelism = 3
)

// Recommender supplies historical advice; the memory store implements it.
type Recommender interface {
	GetRecommendations(query string) (types.Recommendations, error)
}

// Analysis is the heuristic reading of a query.
type Analysis struct {
	// Kind is the query classification.
	Kind QueryKind

	// Subjects are the comparison subjects for comparison queries,
	// otherwise nil.
	Subjects []string

	// WantsFresh reports whether the query asks for recent information.
	WantsFresh bool
}

// Planner builds research plans.
type Planner struct {
	recommender Recommender
	inference   types.InferenceService
	logger      *zap.Logger
}

// New builds a Planner. recommender and inference may both be nil; the
// planner then works purely from heuristics.
func New(recommender Recommender, inference types.InferenceService, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{recommender: recommender, inference: inference, logger: logger}
}

// comparisonMarkers split a query into comparison subjects.
var comparisonMarkers = []string{" vs ", " vs. ", " versus ", " compared to ", " compare "}

// numericMarkers indicate a query after a specific figure.
var numericMarkers = []string{
	"how many", "how much", "price", "revenue", "market cap",
	"employees", "population", "percentage", "cost",
}

// freshnessMarkers indicate a query about recent events.
var freshnessMarkers = []string{"latest", "recent", "news", "today", "current", "this year"}

// Analyze classifies the query heuristically.
func Analyze(query string) Analysis {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "

	var a Analysis
	for _, m := range freshnessMarkers {
		if strings.Contains(q, m) {
			a.WantsFresh = true
			break
		}
	}

	for _, m := range comparisonMarkers {
		if idx := strings.Index(q, m); idx >= 0 {
			a.Kind = KindComparison
			left := strings.TrimSpace(q[:idx])
			right := strings.TrimSpace(q[idx+len(m):])
			if left != "" && right != "" {
				a.Subjects = []string{left, right}
			}
			return a
		}
	}

	for _, m := range numericMarkers {
		if strings.Contains(q, m) {
			a.Kind = KindNumeric
			return a
		}
	}

	words := strings.Fields(q)
	if len(words) <= 6 || strings.HasPrefix(strings.TrimSpace(q), "what is") ||
		strings.HasPrefix(strings.TrimSpace(q), "who is") {
		a.Kind = KindFactual
		return a
	}
	a.Kind = KindExploratory
	return a
}

// CreatePlan analyzes the query, picks a strategy, lays out ordered
// steps, and folds in memory recommendations when available. Inference
// failures never fail planning.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*types.ResearchPlan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.Errorf(types.ErrParsing, "empty query")
	}

	analysis := Analyze(query)
	strategy := strategyFor(analysis)

	plan := &types.ResearchPlan{
		ID:        uuid.NewString(),
		Query:     query,
		Strategy:  strategy,
		CreatedAt: time.Now(),
	}
	plan.Steps = stepsFor(analysis, strategy)

	if p.recommender != nil {
		p.applyMemory(plan)
	}
	if p.inference != nil {
		p.refineWithInference(ctx, plan)
	}

	p.logger.Debug("plan created",
		zap.String("plan_id", plan.ID),
		zap.String("kind", string(analysis.Kind)),
		zap.String("approach", string(plan.Strategy.Approach)),
		zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

// strategyFor maps an analysis to the initial strategy knobs.
func strategyFor(a Analysis) types.Strategy {
	s := types.Strategy{
		Approach:          types.ApproachFocused,
		VerificationLevel: types.VerifyStandard,
		MaxSources:        defaultMaxSources,
		Parallelism:       defaultParallelism,
		SourceTypes: []types.SourceCategory{
			types.CategoryGovernment, types.CategoryMajorNews, types.CategoryWiki,
		},
	}

	switch a.Kind {
	case KindNumeric:
		// Figures demand the strictest cross-checking.
		s.VerificationLevel = types.VerifyStrict
		s.MaxSources = focusedMaxSources
		s.SourceTypes = []types.SourceCategory{
			types.CategoryGovernment, types.CategoryFinancial, types.CategoryMajorNews,
		}
	case KindComparison:
		s.Approach = types.ApproachComparative
		s.Parallelism = defaultParallelism + len(a.Subjects)
	case KindExploratory:
		s.Approach = types.ApproachBroad
		s.MaxSources = broadMaxSources
		s.VerificationLevel = types.VerifyBasic
	}

	if a.WantsFresh {
		s.SourceTypes = append([]types.SourceCategory{types.CategoryMajorNews}, s.SourceTypes...)
	}
	return s
}

// stepsFor lays out the ordered step list with dependencies. Comparison
// queries get one search step per subject, all feeding the scrape step.
func stepsFor(a Analysis, s types.Strategy) []types.PlanStep {
	var steps []types.PlanStep
	var searchIDs []string

	addSearch := func(desc string) {
		id := fmt.Sprintf("search-%d", len(searchIDs)+1)
		searchIDs = append(searchIDs, id)
		steps = append(steps, types.PlanStep{
			ID: id, Kind: types.StepSearch, Description: desc, Status: types.StepPending,
		})
	}

	if a.Kind == KindComparison && len(a.Subjects) > 0 {
		for _, subject := range a.Subjects {
			addSearch("search sources for " + subject)
		}
	} else {
		addSearch("search primary sources")
	}

	steps = append(steps,
		types.PlanStep{
			ID: "scrape", Kind: types.StepScrape, Status: types.StepPending,
			Description: "fetch full content for ranked results",
			DependsOn:   searchIDs,
		},
		types.PlanStep{
			ID: "analyze", Kind: types.StepAnalyze, Status: types.StepPending,
			Description: "extract and consolidate fields",
			DependsOn:   []string{"scrape"},
		},
	)

	if s.VerificationLevel != types.VerifyBasic {
		steps = append(steps, types.PlanStep{
			ID: "verify", Kind: types.StepVerify, Status: types.StepPending,
			Description: "cross-check claims against ranked sources",
			DependsOn:   []string{"analyze"},
		})
	}
	return steps
}

// applyMemory folds the stored pattern history into the plan: a proven
// strategy replaces the heuristic one, and trusted domains become an
// enrichment step.
func (p *Planner) applyMemory(plan *types.ResearchPlan) {
	rec, err := p.recommender.GetRecommendations(plan.Query)
	if err != nil {
		p.logger.Debug("memory unavailable during planning", zap.Error(err))
		return
	}
	if rec.SampleCount == 0 {
		return
	}

	if rec.Strategy != nil {
		plan.Strategy = *rec.Strategy
		plan.Adaptations = append(plan.Adaptations,
			fmt.Sprintf("adopted historical strategy (%d samples)", rec.SampleCount))
	}
	if len(rec.TrustedDomains) > 0 {
		plan.Steps = append(plan.Steps, types.PlanStep{
			ID: "enrich-trusted", Kind: types.StepEnrich, Status: types.StepPending,
			Description: "query trusted domains: " + strings.Join(rec.TrustedDomains, ", "),
			DependsOn:   []string{"analyze"},
		})
	}
}

// refineWithInference asks the inference service for a better phrasing
// of the first search step. Any failure leaves the plan untouched.
func (p *Planner) refineWithInference(ctx context.Context, plan *types.ResearchPlan) {
	prompt := "Rewrite the following research question as a concise web search query. " +
		"Answer with the query only.\n\n" + plan.Query
	refined, err := p.inference.Complete(ctx, prompt, "")
	if err != nil {
		p.logger.Debug("inference refinement skipped", zap.Error(err))
		return
	}
	refined = strings.TrimSpace(refined)
	if refined == "" || len(refined) > 200 {
		return
	}
	for i := range plan.Steps {
		if plan.Steps[i].Kind == types.StepSearch {
			plan.Steps[i].Description = "search: " + refined
			plan.Adaptations = append(plan.Adaptations, "search query refined by inference")
			break
		}
	}
}

// Adapt applies strategy hints to a live plan and records each change.
// Recognized hints follow the decision engine's formats; unknown hints
// are recorded verbatim.
func Adapt(plan *types.ResearchPlan, hints []string) {
	for _, h := range hints {
		switch {
		case strings.HasPrefix(h, "prefer domain: "):
			domain := strings.TrimPrefix(h, "prefer domain: ")
			plan.Steps = append(plan.Steps, types.PlanStep{
				ID:          fmt.Sprintf("enrich-%s", domain),
				Kind:        types.StepEnrich,
				Status:      types.StepPending,
				Description: "query trusted domain " + domain,
			})
		case strings.HasPrefix(h, "raise parallelism"):
			plan.Strategy.Parallelism++
		case strings.HasPrefix(h, "raise verification level"):
			switch plan.Strategy.VerificationLevel {
			case types.VerifyBasic:
				plan.Strategy.VerificationLevel = types.VerifyStandard
			case types.VerifyStandard:
				plan.Strategy.VerificationLevel = types.VerifyStrict
			}
		}
		plan.Adaptations = append(plan.Adaptations, h)
	}
}
