// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package wide

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/internal/consolidate"
	"github.com/pdiddy/research-agent/internal/crossref"
	"github.com/pdiddy/research-agent/pkg/types"
)

type stubSearch struct {
	results func(query string) []types.SourceRecord
	err     func(query string) error
	calls   atomic.Int32
}

func (s *stubSearch) Search(_ context.Context, query string, _ int, _ types.SearchOptions) ([]types.SourceRecord, error) {
	s.calls.Add(1)
	if s.err != nil {
		if err := s.err(query); err != nil {
			return nil, err
		}
	}
	if s.results == nil {
		return nil, nil
	}
	return s.results(query), nil
}

type stubInference struct {
	answer string
	err    error
}

func (s *stubInference) Complete(context.Context, string, string) (string, error) {
	return s.answer, s.err
}

type stubExtractor struct {
	entities []types.ExtractedEntity
}

func (s *stubExtractor) Extract(context.Context, types.SourceRecord) ([]types.ExtractedEntity, error) {
	return s.entities, nil
}

func newTestRunner(search types.SearchService, inference types.InferenceService, extractor Extractor) *Runner {
	resolver := authority.NewResolver()
	consolidator := consolidate.New(resolver, crossref.NewValidator(resolver, types.ValidationConfig{}), nil)
	return New(search, inference, consolidator, extractor, types.ExecutorConfig{MaxConcurrency: 4}, nil, nil)
}

func TestDecomposeCaps(t *testing.T) {
	r := newTestRunner(&stubSearch{}, nil, nil)
	subs := r.Decompose(context.Background(), "broad topic", 3)
	if len(subs) != 3 {
		t.Errorf("sub-queries = %d, want the cap 3", len(subs))
	}
	subs = r.Decompose(context.Background(), "broad topic", 100)
	if len(subs) > MaxSubQueries {
		t.Errorf("sub-queries = %d, want at most %d", len(subs), MaxSubQueries)
	}
}

func TestDecomposeComparisonCoversBothSubjects(t *testing.T) {
	r := newTestRunner(&stubSearch{}, nil, nil)
	subs := r.Decompose(context.Background(), "Acme Corp vs Globex Corporation", MaxSubQueries)

	var acme, globex int
	for _, s := range subs {
		if strings.Contains(s.Query, "acme corp") {
			acme++
		}
		if strings.Contains(s.Query, "globex corporation") {
			globex++
		}
	}
	if acme == 0 || globex == 0 {
		t.Errorf("decomposition covers acme=%d globex=%d, want both subjects", acme, globex)
	}
}

func TestDecomposeEmitsEntitySubQueries(t *testing.T) {
	r := newTestRunner(&stubSearch{}, nil, nil)
	subs := r.Decompose(context.Background(), "impact of Project Orion on Acme Corp earnings", MaxSubQueries)

	var orion, acme bool
	for _, s := range subs {
		if s.Query == "profile: Project Orion" {
			orion = true
		}
		if s.Query == "profile: Acme Corp" {
			acme = true
		}
	}
	if !orion || !acme {
		t.Errorf("orion=%v acme=%v, want a profile sub-query per capitalized entity", orion, acme)
	}
}

func TestDecomposeUsesInferenceWhenAvailable(t *testing.T) {
	r := newTestRunner(&stubSearch{}, &stubInference{answer: "1. first question\n- second question\n\n"}, nil)
	subs := r.Decompose(context.Background(), "broad topic", MaxSubQueries)
	if len(subs) != 2 {
		t.Fatalf("sub-queries = %d, want the 2 inference lines", len(subs))
	}
	if subs[0].Query != "first question" || subs[1].Query != "second question" {
		t.Errorf("sub-queries = %+v, want cleaned inference lines", subs)
	}
}

func TestDecomposeInferenceFailureFallsBack(t *testing.T) {
	r := newTestRunner(&stubSearch{}, &stubInference{err: types.Errorf(types.ErrNetwork, "down")}, nil)
	subs := r.Decompose(context.Background(), "broad topic", MaxSubQueries)
	if len(subs) == 0 {
		t.Error("no heuristic fallback after inference failure")
	}
}

func TestRunAggregatesAndDeduplicates(t *testing.T) {
	// Every sub-query returns the same source plus one unique one.
	search := &stubSearch{results: func(query string) []types.SourceRecord {
		return []types.SourceRecord{
			{URL: "https://shared.example.com/page", Content: "shared", RelevanceScore: 0.5},
			{URL: "https://unique.example.com/" + query[:8], Content: query, RelevanceScore: 0.9},
		}
	}}
	r := newTestRunner(search, nil, nil)

	result, err := r.Run(context.Background(), "broad topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.InsufficientData {
		t.Fatal("insufficient data flagged despite sources")
	}

	shared := 0
	for _, s := range result.Sources {
		if s.URL == "https://shared.example.com/page" {
			shared++
		}
	}
	if shared != 1 {
		t.Errorf("shared source appears %d times, want deduplicated to 1", shared)
	}
	for i := 1; i < len(result.Sources); i++ {
		if result.Sources[i].RelevanceScore > result.Sources[i-1].RelevanceScore {
			t.Error("aggregated sources not sorted by relevance")
			break
		}
	}
	if len(result.Findings) != len(result.SubQueries) {
		t.Errorf("findings = %d, want one per productive sub-query (%d)",
			len(result.Findings), len(result.SubQueries))
	}
}

func TestRunOrdersSourcesByReliability(t *testing.T) {
	// Every sub-query returns a highly relevant blog post and a less
	// relevant regulatory filing; reliability must win the ordering.
	search := &stubSearch{results: func(query string) []types.SourceRecord {
		return []types.SourceRecord{
			{URL: "https://someblog.example.com/post", Content: "blog take", RelevanceScore: 0.9},
			{URL: "https://www.sec.gov/filing", Content: "filed numbers", RelevanceScore: 0.2},
		}
	}}
	r := newTestRunner(search, nil, nil)

	result, err := r.Run(context.Background(), "broad topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %d, want 2 after deduplication", len(result.Sources))
	}
	if result.Sources[0].URL != "https://www.sec.gov/filing" {
		t.Errorf("first source = %s, want the regulatory filing despite lower relevance", result.Sources[0].URL)
	}
	for _, s := range result.Sources {
		if s.Reliability <= 0 {
			t.Errorf("source %s reliability = %v, want populated on aggregation", s.URL, s.Reliability)
		}
	}
}

// gatedSearch blocks every first-topic query until its context is
// canceled and answers second-topic queries immediately.
type gatedSearch struct {
	started chan struct{}
	once    sync.Once
}

func (g *gatedSearch) Search(ctx context.Context, query string, _ int, _ types.SearchOptions) ([]types.SourceRecord, error) {
	if strings.Contains(query, "first") {
		g.once.Do(func() { close(g.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []types.SourceRecord{{URL: "https://example.com/second", Content: query, RelevanceScore: 0.8}}, nil
}

func TestRunSupersededByNewRun(t *testing.T) {
	search := &gatedSearch{started: make(chan struct{})}
	r := newTestRunner(search, nil, nil)

	type outcome struct {
		result Result
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := r.Run(context.Background(), "first topic")
		first <- outcome{result: res, err: err}
	}()
	<-search.started

	second, err := r.Run(context.Background(), "second topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.InsufficientData || len(second.Sources) == 0 {
		t.Errorf("superseding run found %d sources, want results unaffected by the prior run", len(second.Sources))
	}

	select {
	case o := <-first:
		if o.err != nil {
			t.Fatalf("superseded Run: %v", o.err)
		}
		if !o.result.InsufficientData {
			t.Error("superseded run was not aborted before gathering sources")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("superseded run never returned")
	}
}

func TestRunInsufficientDataIsHonest(t *testing.T) {
	r := newTestRunner(&stubSearch{}, nil, &stubExtractor{
		entities: []types.ExtractedEntity{{Kind: "fact", Name: "should never appear"}},
	})
	result, err := r.Run(context.Background(), "unanswerable question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.InsufficientData {
		t.Error("empty run not flagged as insufficient data")
	}
	if len(result.Findings) != 0 || len(result.Entities) != 0 {
		t.Errorf("findings=%d entities=%d, want none fabricated",
			len(result.Findings), len(result.Entities))
	}
}

func TestRunFallsBackToBroaderQuery(t *testing.T) {
	// Faceted queries find nothing; only the bare subject text matches.
	search := &stubSearch{results: func(query string) []types.SourceRecord {
		if query != "broad topic" {
			return nil
		}
		return []types.SourceRecord{{URL: "https://example.com/topic", Content: "topic", RelevanceScore: 0.6}}
	}}
	r := newTestRunner(search, nil, nil)

	result, err := r.Run(context.Background(), "broad topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.InsufficientData {
		t.Error("fallback searches found sources but run flagged insufficient data")
	}
	if len(result.Sources) != 1 {
		t.Errorf("sources = %d, want the single fallback hit deduplicated to 1", len(result.Sources))
	}
}

func TestRunRecordsFailedAspects(t *testing.T) {
	search := &stubSearch{
		results: func(query string) []types.SourceRecord {
			return []types.SourceRecord{{URL: "https://example.com/" + query[:4], RelevanceScore: 0.5}}
		},
		err: func(query string) error {
			if strings.HasPrefix(query, "history") {
				return types.Errorf(types.ErrNetwork, "unreachable")
			}
			return nil
		},
	}
	r := newTestRunner(search, nil, nil)

	result, err := r.Run(context.Background(), "broad topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.FailedAspects) != 1 || result.FailedAspects[0] != "history and background" {
		t.Errorf("failed aspects = %v, want the history facet", result.FailedAspects)
	}
	if result.InsufficientData {
		t.Error("partial failure must not flag insufficient data")
	}
}

func TestRunExtractsAndConsolidatesEntities(t *testing.T) {
	search := &stubSearch{results: func(query string) []types.SourceRecord {
		return []types.SourceRecord{{URL: "https://example.com/a", RelevanceScore: 0.5}}
	}}
	extractor := &stubExtractor{entities: []types.ExtractedEntity{
		{Kind: "organization", Name: "Acme Corp", Source: "https://example.com/a", Confidence: 0.8},
	}}
	r := newTestRunner(search, nil, extractor)

	result, err := r.Run(context.Background(), "broad topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Every source yields the same entity; consolidation collapses them.
	if len(result.Entities) != 1 {
		t.Errorf("entities = %d, want 1 after consolidation", len(result.Entities))
	}
}

func TestRunEmptyQuery(t *testing.T) {
	r := newTestRunner(&stubSearch{}, nil, nil)
	if _, err := r.Run(context.Background(), "   "); err == nil {
		t.Error("Run accepted an empty query")
	}
}
