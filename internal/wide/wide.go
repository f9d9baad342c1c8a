// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package wide decomposes a broad query into bounded sub-queries, fans
// them out through the task executor, and aggregates the results. A run
// that finds nothing reports that honestly instead of inventing output.
package wide

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/consolidate"
	"github.com/pdiddy/research-agent/internal/executor"
	"github.com/pdiddy/research-agent/internal/plan"
	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	// MaxSubQueries caps the fan-out of one wide run.
	MaxSubQueries = 12

	// resultsPerSubQuery bounds each sub-agent's source intake.
	resultsPerSubQuery = 5

	// subQueryTimeout bounds one sub-agent's wall time.
	subQueryTimeout = 45 * time.Second
)

// aspects fan a non-comparison query into facets.
var aspects = []string{
	"overview",
	"history and background",
	"key facts and figures",
	"recent developments",
	"criticism and controversies",
	"future outlook",
}

// SubQuery is one unit of a wide decomposition.
type SubQuery struct {
	// ID orders sub-queries within the run.
	ID int

	// Query is the search text for this facet.
	Query string

	// Aspect labels what the sub-query covers.
	Aspect string
}

// SubResult is what one sub-agent returns.
type SubResult struct {
	Sub     SubQuery
	Sources []types.SourceRecord
}

// Result is the aggregate of one wide run.
type Result struct {
	// Query is the original broad question.
	Query string

	// SubQueries is the executed decomposition.
	SubQueries []SubQuery

	// Sources is the deduplicated union of all sub-agent sources, most
	// reliable first with relevance breaking ties.
	Sources []types.SourceRecord

	// Findings carries one entry per productive sub-query.
	Findings []types.Finding

	// Entities is the consolidated union of extracted entities.
	Entities []types.ExtractedEntity

	// FailedAspects lists aspects whose sub-agents failed.
	FailedAspects []string

	// InsufficientData is set when no sub-query produced any source.
	// Downstream report compilation must state this instead of
	// fabricating content.
	InsufficientData bool
}

// Extractor pulls structured entities out of one source. Optional.
type Extractor interface {
	Extract(ctx context.Context, src types.SourceRecord) ([]types.ExtractedEntity, error)
}

// Runner executes wide research runs. At most one run is in flight per
// Runner: starting a new run cancels the previous run's outstanding
// sub-queries, and each run gets its own executor so runs never share
// queue state.
type Runner struct {
	search       types.SearchService
	inference    types.InferenceService
	consolidator *consolidate.Consolidator
	extractor    Extractor
	execCfg      types.ExecutorConfig
	collector    *executor.Collector
	logger       *zap.Logger

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	exec   *executor.Executor[SubQuery, SubResult]
}

// New builds a Runner. inference and extractor may be nil; decomposition
// then stays heuristic and entity extraction is skipped.
func New(search types.SearchService, inference types.InferenceService, consolidator *consolidate.Consolidator,
	extractor Extractor, cfg types.ExecutorConfig, collector *executor.Collector, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		search:       search,
		inference:    inference,
		consolidator: consolidator,
		extractor:    extractor,
		execCfg:      cfg,
		collector:    collector,
		logger:       logger,
	}
}

// Decompose splits the query into at most limit sub-queries. Comparison
// queries get per-subject facets; everything else fans out over the
// standard aspects. The inference service, when present, may replace the
// heuristic list; its failures never fail decomposition.
func (r *Runner) Decompose(ctx context.Context, query string, limit int) []SubQuery {
	if limit <= 0 || limit > MaxSubQueries {
		limit = MaxSubQueries
	}

	var texts []string
	if r.inference != nil {
		texts = r.decomposeWithInference(ctx, query, limit)
	}
	if len(texts) == 0 {
		texts = heuristicDecompose(query, limit)
	}
	if len(texts) > limit {
		texts = texts[:limit]
	}

	subs := make([]SubQuery, len(texts))
	for i, text := range texts {
		aspect := text
		if idx := strings.Index(text, ": "); idx > 0 {
			aspect = text[:idx]
		}
		subs[i] = SubQuery{ID: i + 1, Query: text, Aspect: aspect}
	}
	return subs
}

// heuristicDecompose builds the sub-query list without inference.
// Capitalized multi-word entities in the query get profile sub-queries
// ahead of the aspect fan-out.
func heuristicDecompose(query string, limit int) []string {
	analysis := plan.Analyze(query)

	var texts []string
	if analysis.Kind == plan.KindComparison && len(analysis.Subjects) > 0 {
		facets := []string{"overview", "key facts and figures", "recent developments"}
		for _, subject := range analysis.Subjects {
			for _, f := range facets {
				texts = append(texts, fmt.Sprintf("%s: %s", f, subject))
			}
		}
	} else {
		for _, entity := range queryEntities(query) {
			texts = append(texts, fmt.Sprintf("profile: %s", entity))
		}
		for _, a := range aspects {
			texts = append(texts, fmt.Sprintf("%s: %s", a, query))
		}
	}
	if len(texts) > limit {
		texts = texts[:limit]
	}
	return texts
}

// queryEntities returns runs of two or more capitalized words from the
// raw query, in order of first appearance.
func queryEntities(query string) []string {
	var entities []string
	seen := make(map[string]bool)
	var run []string
	flush := func() {
		if len(run) >= 2 {
			name := strings.Join(run, " ")
			if !seen[name] {
				seen[name] = true
				entities = append(entities, name)
			}
		}
		run = run[:0]
	}
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, ".,;:!?\"'()")
		r, _ := utf8.DecodeRuneInString(w)
		if w != "" && unicode.IsUpper(r) {
			run = append(run, w)
			continue
		}
		flush()
	}
	flush()
	return entities
}

// decomposeWithInference asks the inference service for one sub-query
// per line. An unusable answer returns nil and the heuristic takes over.
func (r *Runner) decomposeWithInference(ctx context.Context, query string, limit int) []string {
	prompt := fmt.Sprintf(
		"Split the research question into at most %d independent sub-questions, one per line, no numbering.\n\n%s",
		limit, query)
	answer, err := r.inference.Complete(ctx, prompt, "")
	if err != nil {
		r.logger.Debug("inference decomposition skipped", zap.Error(err))
		return nil
	}

	var texts []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			texts = append(texts, line)
		}
	}
	return texts
}

// Run decomposes the query, fans the sub-queries out through the
// executor, and aggregates sources, findings, and entities.
func (r *Runner) Run(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, types.Errorf(types.ErrParsing, "empty query")
	}

	subs := r.Decompose(ctx, query, MaxSubQueries)
	result := Result{Query: query, SubQueries: subs}

	// Supersede any run still in flight: cancel its outstanding
	// sub-queries and start this run on a fresh executor.
	runCtx, cancel := context.WithCancel(ctx)
	exec := executor.New[SubQuery, SubResult](r.execCfg, r.logger, r.collector)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.exec = exec
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		if r.gen == gen {
			r.cancel = nil
		}
		r.mu.Unlock()
	}()

	outcomes := exec.ExecuteAll(runCtx, subs, r.runSubQuery, executor.Options{
		Retries: 1,
		Timeout: subQueryTimeout,
	})

	failed := make(map[int]bool, len(outcomes.Errors))
	for _, te := range outcomes.Errors {
		failed[te.Index] = true
		result.FailedAspects = append(result.FailedAspects, subs[te.Index].Aspect)
		r.logger.Warn("sub-query failed",
			zap.String("aspect", subs[te.Index].Aspect),
			zap.Error(te.Err))
	}

	var all []types.SourceRecord
	for i, sub := range outcomes.Results {
		if failed[i] {
			continue
		}
		all = append(all, sub.Sources...)
		if len(sub.Sources) > 0 {
			result.Findings = append(result.Findings, subFinding(sub))
		}
	}

	result.Sources = r.consolidator.DeduplicateResults(all)
	sort.SliceStable(result.Sources, func(i, j int) bool {
		if result.Sources[i].Reliability != result.Sources[j].Reliability {
			return result.Sources[i].Reliability > result.Sources[j].Reliability
		}
		return result.Sources[i].RelevanceScore > result.Sources[j].RelevanceScore
	})

	if r.extractor != nil {
		result.Entities = r.extractEntities(ctx, result.Sources)
	}

	if len(result.Sources) == 0 {
		result.InsufficientData = true
		result.Findings = nil
		result.Entities = nil
	}

	r.logger.Info("wide run complete",
		zap.String("query", query),
		zap.Int("sub_queries", len(subs)),
		zap.Int("sources", len(result.Sources)),
		zap.Int("failed_aspects", len(result.FailedAspects)),
		zap.Bool("insufficient_data", result.InsufficientData))
	return result, nil
}

// runSubQuery is the executor worker for one sub-query. An empty first
// answer retries once with the aspect label stripped, since the plain
// subject text tends to match where the faceted phrasing does not.
func (r *Runner) runSubQuery(ctx context.Context, sub SubQuery) (SubResult, error) {
	sources, err := r.search.Search(ctx, sub.Query, resultsPerSubQuery, types.SearchOptions{})
	if err != nil {
		return SubResult{Sub: sub}, err
	}
	if len(sources) == 0 {
		if alt := alternateQuery(sub); alt != "" {
			sources, err = r.search.Search(ctx, alt, resultsPerSubQuery, types.SearchOptions{})
			if err != nil {
				return SubResult{Sub: sub}, err
			}
		}
	}
	return SubResult{Sub: sub, Sources: sources}, nil
}

// alternateQuery derives a broader search text for a sub-query whose
// faceted form found nothing. Returns "" when no broader form exists.
func alternateQuery(sub SubQuery) string {
	if idx := strings.Index(sub.Query, ": "); idx > 0 && idx+2 < len(sub.Query) {
		return sub.Query[idx+2:]
	}
	return ""
}

// subFinding summarizes one productive sub-query.
func subFinding(sub SubResult) types.Finding {
	urls := make([]string, 0, len(sub.Sources))
	var relevanceSum float64
	for _, s := range sub.Sources {
		urls = append(urls, s.URL)
		relevanceSum += s.RelevanceScore
	}
	return types.Finding{
		Field: sub.Sub.Aspect,
		Statement: fmt.Sprintf("%d sources cover %s",
			len(sub.Sources), sub.Sub.Aspect),
		Confidence: 100 * relevanceSum / float64(len(sub.Sources)),
		Sources:    urls,
	}
}

// extractEntities runs the extractor over each source and consolidates
// the union. Extraction failures skip the source.
func (r *Runner) extractEntities(ctx context.Context, sources []types.SourceRecord) []types.ExtractedEntity {
	var all []types.ExtractedEntity
	for _, src := range sources {
		entities, err := r.extractor.Extract(ctx, src)
		if err != nil {
			r.logger.Debug("entity extraction failed",
				zap.String("url", src.URL), zap.Error(err))
			continue
		}
		all = append(all, entities...)
	}
	return r.consolidator.ConsolidateEntities(all)
}

// Metrics exposes the most recent run's executor snapshot.
func (r *Runner) Metrics() executor.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec == nil {
		return executor.Metrics{}
	}
	return r.exec.Snapshot()
}
