// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent drives one research run end to end: plan, search,
// analyze, verify, compile. The state machine holds the lifecycle, the
// decision engine picks the next move after every phase, and a run
// always ends with a report, honest about insufficient data, even when
// it fails.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/internal/consolidate"
	"github.com/pdiddy/research-agent/internal/critic"
	"github.com/pdiddy/research-agent/internal/crossref"
	"github.com/pdiddy/research-agent/internal/decision"
	"github.com/pdiddy/research-agent/internal/executor"
	"github.com/pdiddy/research-agent/internal/memory"
	"github.com/pdiddy/research-agent/internal/plan"
	"github.com/pdiddy/research-agent/internal/report"
	"github.com/pdiddy/research-agent/internal/state"
	"github.com/pdiddy/research-agent/internal/wide"
	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	// maxIterations bounds the run loop regardless of decisions.
	maxIterations = 40

	// maxPhaseRetries bounds retry decisions per lifecycle state.
	maxPhaseRetries = 2

	// successQualityFloor is the overall quality above which a completed
	// run is recorded as a success.
	successQualityFloor = 0.5
)

// MemoryStore is the slice of the memory store the agent needs. Nil
// disables learning.
type MemoryStore interface {
	Record(ctx context.Context, mem types.AgentMemory) error
	GetRecommendations(query string) (types.Recommendations, error)
}

// Agent wires the research components together.
type Agent struct {
	cfg          types.AgentConfig
	search       types.SearchService
	inference    types.InferenceService
	memory       MemoryStore
	resolver     *authority.Resolver
	consolidator *consolidate.Consolidator
	critic       *critic.Critic
	planner      *plan.Planner
	engine       *decision.Engine
	compiler     *report.Compiler
	wide         *wide.Runner
	logger       *zap.Logger
}

// New builds an Agent. inference and mem may be nil; the agent then
// relies on heuristics alone and records no outcomes.
func New(cfg types.AgentConfig, search types.SearchService, inference types.InferenceService,
	mem MemoryStore, collector *executor.Collector, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}

	resolver := authority.NewResolver()
	validator := crossref.NewValidator(resolver, cfg.Validation)
	consolidator := consolidate.New(resolver, validator, logger)

	var recommender decision.Recommender
	var planRecommender plan.Recommender
	if mem != nil {
		recommender = mem
		planRecommender = mem
	}

	return &Agent{
		cfg:          cfg,
		search:       search,
		inference:    inference,
		memory:       mem,
		resolver:     resolver,
		consolidator: consolidator,
		critic:       critic.New(resolver, inference, cfg.Critic, logger),
		planner:      plan.New(planRecommender, inference, logger),
		engine:       decision.NewEngine(recommender, logger),
		compiler:     report.New(cfg.Report, logger),
		wide:         wide.New(search, inference, consolidator, nil, cfg.Executor, collector, logger),
		logger:       logger,
	}
}

// RunWide answers a broad query through decomposition and aggregation,
// bypassing the full lifecycle.
func (a *Agent) RunWide(ctx context.Context, query string) (types.Report, error) {
	result, err := a.wide.Run(ctx, query)
	if err != nil {
		return types.Report{}, err
	}

	metrics := a.consolidator.QualityMetrics(types.ConsolidatedRecord{}, result.Sources)
	completeness := 1.0
	if n := len(result.SubQueries); n > 0 {
		completeness = 1 - float64(len(result.FailedAspects))/float64(n)
	}
	quality := types.QualityScore{
		Completeness:  completeness,
		SourceQuality: metrics.SourceAuthority,
	}
	quality.Recompute()

	r := a.compiler.Compile(report.Input{
		RunID:    uuid.NewString(),
		Query:    query,
		Sources:  result.Sources,
		Entities: result.Entities,
		Quality:  quality,
	})
	r.Findings = result.Findings
	if result.InsufficientData {
		r.Findings = nil
	}
	a.writeReport(r)
	return r, nil
}

// Run answers the query through the full lifecycle and always returns a
// report. The error is non-nil when the run failed; the report then
// states what happened instead of fabricating findings.
func (a *Agent) Run(ctx context.Context, query string) (types.Report, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.Report{}, types.Errorf(types.ErrParsing, "empty query")
	}

	runID := uuid.NewString()
	dctx := &types.DecisionContext{RunID: runID, Query: query}
	if deadline, ok := ctx.Deadline(); ok {
		dctx.Deadline = deadline
	}
	m := state.NewMachine(dctx, a.logger)
	retries := make(map[types.ResearchState]int)

	a.logger.Info("run started", zap.String("run_id", runID), zap.String("query", query))

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			m.HandleError(types.NewError(types.ErrTimeout, err))
			break
		}
		current := m.State()
		if current == types.StateCompleted || current == types.StateFailed {
			break
		}

		if err := a.runPhase(ctx, m); err != nil {
			a.routeError(ctx, m, current, err, retries)
			continue
		}
		a.applyDecision(ctx, m, retries)
	}

	return a.finish(ctx, m)
}

// runPhase executes the work of the current state. All transitions are
// left to the decision step.
func (a *Agent) runPhase(ctx context.Context, m *state.Machine) error {
	switch m.State() {
	case types.StatePlanning:
		return a.phasePlan(ctx, m)
	case types.StateSearching:
		return a.phaseSearch(ctx, m)
	case types.StateAnalyzing:
		return a.phaseAnalyze(m)
	case types.StateVerifying:
		return a.phaseVerify(ctx, m)
	default:
		// idle, scraping, and compiling carry no phase work here:
		// content is fetched during searching, compilation happens in
		// finish.
		return nil
	}
}

// routeError records the failure and picks the recovery path. Rate
// limits and unrecoverable kinds go through the machine's per-state
// hooks; other recoverable kinds are left to the decision rules so the
// retry budget applies.
func (a *Agent) routeError(ctx context.Context, m *state.Machine, phase types.ResearchState,
	err error, retries map[types.ResearchState]int) {
	ae := asAgentError(err)
	a.logger.Warn("phase failed",
		zap.String("phase", string(phase)),
		zap.String("kind", string(ae.Kind)),
		zap.Error(err))

	if ae.Kind.Recoverable() && ae.Kind != types.ErrRateLimit {
		if ae.Phase == "" {
			ae.Phase = string(phase)
		}
		m.UpdateContext(func(c *types.DecisionContext) { c.Errors = append(c.Errors, ae) })
		a.applyDecision(ctx, m, retries)
		return
	}
	m.HandleError(ae)
}

func (a *Agent) phasePlan(ctx context.Context, m *state.Machine) error {
	// Re-planning after recovery keeps the existing plan but gives its
	// failed steps another chance.
	if p := m.Context().Plan; p != nil {
		m.UpdateContext(func(*types.DecisionContext) {
			for i := range p.Steps {
				if p.Steps[i].Status == types.StepFailed {
					p.Steps[i].Status = types.StepPending
				}
			}
		})
		return nil
	}
	p, err := a.planner.CreatePlan(ctx, m.Context().Query)
	if err != nil {
		return err
	}
	m.UpdateContext(func(c *types.DecisionContext) { c.Plan = p })
	return nil
}

func (a *Agent) phaseSearch(ctx context.Context, m *state.Machine) error {
	c := m.Context()
	strategy := c.Plan.Strategy

	var gathered []types.SourceRecord
	var firstErr error
	for i := range c.Plan.Steps {
		step := &c.Plan.Steps[i]
		if step.Kind != types.StepSearch && step.Kind != types.StepEnrich {
			continue
		}
		if step.Status != types.StepPending || !c.Plan.CanRun(step.ID) {
			continue
		}

		step.Status = types.StepRunning
		query, opts := stepQuery(step, c.Query)
		opts.Scrape = true
		sources, err := a.search.Search(ctx, query, strategy.MaxSources, opts)
		if err != nil {
			step.Status = types.StepFailed
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		step.Status = types.StepCompleted
		gathered = append(gathered, sources...)
	}

	if len(gathered) == 0 && firstErr != nil {
		return firstErr
	}

	m.UpdateContext(func(c *types.DecisionContext) {
		c.Sources = a.consolidator.DeduplicateResults(append(c.Sources, gathered...))
	})
	metrics := a.consolidator.QualityMetrics(types.ConsolidatedRecord{}, m.Context().Sources)
	m.UpdateQuality(func(q *types.QualityScore) {
		q.SourceQuality = metrics.SourceAuthority
	})
	// Content was fetched alongside the search.
	completeStep(c.Plan, "scrape")
	return nil
}

// completeStep marks a plan step completed if it exists and is not
// already terminal.
func completeStep(p *types.ResearchPlan, id string) {
	if p == nil {
		return
	}
	if step := p.Step(id); step != nil && step.Status != types.StepFailed {
		step.Status = types.StepCompleted
	}
}

func (a *Agent) phaseAnalyze(m *state.Machine) error {
	c := m.Context()
	extractions := make([]consolidate.SourceExtraction, 0, len(c.Sources))
	for _, src := range c.Sources {
		extractions = append(extractions, extractFields(c.Query, src))
	}

	record := a.consolidator.Consolidate(extractions)
	metrics := a.consolidator.QualityMetrics(record, c.Sources)

	m.UpdateContext(func(c *types.DecisionContext) { c.Consolidated = &record })
	m.UpdateQuality(func(q *types.QualityScore) {
		q.Accuracy = metrics.CrossValidation
		q.Completeness = metrics.Completeness
		q.SourceQuality = metrics.SourceAuthority
	})
	completeStep(c.Plan, "analyze")
	return nil
}

func (a *Agent) phaseVerify(ctx context.Context, m *state.Machine) error {
	c := m.Context()
	claims := extractClaims(c.Query, c.Sources)
	if len(claims) == 0 {
		return nil
	}

	verdicts, err := a.critic.VerifyAll(ctx, claims, c.Sources)
	if err != nil {
		return err
	}

	supported := 0
	for _, v := range verdicts {
		if v.Status == types.StatusVerified || v.Status == types.StatusPartiallyVerified {
			supported++
		}
	}

	m.UpdateContext(func(c *types.DecisionContext) { c.Claims = verdicts })
	m.UpdateQuality(func(q *types.QualityScore) {
		q.ClaimVerification = float64(supported) / float64(len(verdicts))
	})
	completeStep(c.Plan, "verify")
	return nil
}

// applyDecision consults the engine and maps its action onto the state
// machine.
func (a *Agent) applyDecision(ctx context.Context, m *state.Machine, retries map[types.ResearchState]int) {
	c := m.Context()
	d := a.engine.Decide(c)
	current := m.State()

	a.logger.Debug("applying decision",
		zap.String("state", string(current)),
		zap.String("action", string(d.Action)),
		zap.String("rule", d.Rule))

	// The decision acknowledges every error it saw; error-driven rules
	// must not re-fire on the same errors in a later phase.
	m.UpdateContext(func(c *types.DecisionContext) { c.HandledErrors = len(c.Errors) })

	switch d.Action {
	case types.ActionContinue:
		m.Transition(nextPhase(current, c))
	case types.ActionComplete:
		if !m.Transition(types.StateCompiling) {
			m.Transition(nextPhase(current, c))
		}
	case types.ActionRetry:
		retries[current]++
		if retries[current] > maxPhaseRetries {
			m.Transition(types.StateFailed)
			return
		}
		// Stay in the phase and give its failed steps another chance.
		if c.Plan != nil {
			for i := range c.Plan.Steps {
				if c.Plan.Steps[i].Status == types.StepFailed {
					c.Plan.Steps[i].Status = types.StepPending
				}
			}
		}
	case types.ActionAdapt:
		if c.Plan != nil {
			plan.Adapt(c.Plan, d.StrategyHints)
		}
		m.Transition(nextPhase(current, c))
	case types.ActionEscalate:
		if c.Plan != nil {
			plan.Adapt(c.Plan, []string{"raise verification level: quality low past midpoint"})
		}
		m.Transition(nextPhase(current, c))
	case types.ActionParallelSearch:
		a.parallelSearch(ctx, m)
	case types.ActionFail:
		m.Transition(types.StateFailed)
	}
}

// nextPhase is the canonical forward edge for continue decisions.
// Scraping is folded into searching, and verification is skipped for
// basic-level plans.
func nextPhase(current types.ResearchState, c *types.DecisionContext) types.ResearchState {
	switch current {
	case types.StateIdle:
		return types.StatePlanning
	case types.StatePlanning:
		return types.StateSearching
	case types.StateSearching:
		if len(c.Sources) == 0 {
			return types.StateCompiling
		}
		return types.StateAnalyzing
	case types.StateAnalyzing:
		if c.Plan != nil && c.Plan.Strategy.VerificationLevel == types.VerifyBasic {
			return types.StateCompiling
		}
		return types.StateVerifying
	case types.StateVerifying:
		return types.StateCompiling
	case types.StateCompiling:
		return types.StateCompleted
	default:
		return types.StateFailed
	}
}

// parallelSearch widens an unproductive search through decomposition
// and merges whatever it finds.
func (a *Agent) parallelSearch(ctx context.Context, m *state.Machine) {
	c := m.Context()
	result, err := a.wide.Run(ctx, c.Query)
	if err != nil || len(result.Sources) == 0 {
		// Nothing found anywhere: compile the honest empty report.
		m.Transition(types.StateCompiling)
		return
	}
	m.UpdateContext(func(c *types.DecisionContext) {
		c.Sources = a.consolidator.DeduplicateResults(append(c.Sources, result.Sources...))
	})
	m.Transition(types.StateAnalyzing)
}

// finish compiles the report, records the outcome, and maps the final
// state to the returned error.
func (a *Agent) finish(ctx context.Context, m *state.Machine) (types.Report, error) {
	c := m.Context()

	in := report.Input{
		RunID:   c.RunID,
		Query:   c.Query,
		Sources: c.Sources,
		Claims:  c.Claims,
		Quality: c.Quality,
	}
	if c.Consolidated != nil {
		in.Record = *c.Consolidated
	}
	r := a.compiler.Compile(in)

	failed := m.State() == types.StateFailed
	if failed {
		r.InsufficientData = r.InsufficientData || len(r.Findings) == 0
		r.Summary = fmt.Sprintf("The research run failed after %d errors. %s",
			c.ErrorCount(), r.Summary)
	}
	a.writeReport(r)
	a.recordOutcome(ctx, c, failed)

	a.logger.Info("run finished",
		zap.String("run_id", c.RunID),
		zap.String("state", string(m.State())),
		zap.Float64("quality", c.Quality.Overall),
		zap.Int("sources", len(c.Sources)),
		zap.Int("errors", c.ErrorCount()))

	if failed {
		if n := c.ErrorCount(); n > 0 {
			return r, c.Errors[n-1]
		}
		return r, types.Errorf(types.ErrUnknown, "run failed without a recorded error")
	}
	return r, nil
}

// writeReport exports the report when an output directory is configured.
func (a *Agent) writeReport(r types.Report) {
	if a.cfg.Report.OutputDir == "" {
		return
	}
	if _, err := a.compiler.WriteYAML(r); err != nil {
		a.logger.Warn("yaml report write failed", zap.Error(err))
	}
	if _, err := a.compiler.WriteMarkdown(r); err != nil {
		a.logger.Warn("markdown report write failed", zap.Error(err))
	}
}

// recordOutcome stores the run in memory for future planning.
func (a *Agent) recordOutcome(ctx context.Context, c *types.DecisionContext, failed bool) {
	if a.memory == nil {
		return
	}
	mem := types.AgentMemory{
		Pattern:    memory.ExtractPattern(c.Query),
		Success:    !failed && c.Quality.Overall >= successQualityFloor,
		Quality:    c.Quality.Overall,
		Domains:    domainOutcomes(c.Sources),
		RecordedAt: time.Now(),
	}
	if c.Plan != nil {
		mem.Strategy = c.Plan.Strategy
		mem.Learnings = c.Plan.Adaptations
	}
	if err := a.memory.Record(ctx, mem); err != nil {
		a.logger.Warn("outcome not recorded", zap.Error(err))
	}
}

// domainOutcomes scores each domain by the mean relevance of its
// sources.
func domainOutcomes(sources []types.SourceRecord) []types.DomainOutcome {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, s := range sources {
		if s.Domain == "" {
			continue
		}
		if _, seen := counts[s.Domain]; !seen {
			order = append(order, s.Domain)
		}
		sums[s.Domain] += s.RelevanceScore
		counts[s.Domain]++
	}

	out := make([]types.DomainOutcome, 0, len(order))
	for _, domain := range order {
		out = append(out, types.DomainOutcome{
			Domain:     domain,
			Usefulness: types.Clamp01(sums[domain] / float64(counts[domain])),
		})
	}
	return out
}

// stepQuery derives the search text and options for one plan step.
func stepQuery(step *types.PlanStep, query string) (string, types.SearchOptions) {
	var opts types.SearchOptions
	desc := step.Description
	switch {
	case strings.HasPrefix(desc, "search: "):
		return strings.TrimPrefix(desc, "search: "), opts
	case strings.HasPrefix(desc, "search sources for "):
		return strings.TrimPrefix(desc, "search sources for "), opts
	case strings.HasPrefix(desc, "query trusted domain "):
		opts.Site = strings.TrimPrefix(desc, "query trusted domain ")
		return query, opts
	case strings.HasPrefix(desc, "query trusted domains: "):
		domains := strings.Split(strings.TrimPrefix(desc, "query trusted domains: "), ", ")
		if len(domains) > 0 {
			opts.Site = domains[0]
		}
		return query, opts
	default:
		return query, opts
	}
}

// asAgentError normalizes any error into the taxonomy.
func asAgentError(err error) *types.AgentError {
	var ae *types.AgentError
	if errors.As(err, &ae) {
		return ae
	}
	return types.NewError(types.ErrUnknown, err)
}

