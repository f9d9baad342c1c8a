// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/research-agent/pkg/types"
)

// stubSearch routes every search through fn, counting calls.
type stubSearch struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, query string, opts types.SearchOptions) ([]types.SourceRecord, error)
}

func (s *stubSearch) Search(_ context.Context, query string, _ int, opts types.SearchOptions) ([]types.SourceRecord, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, query, opts)
}

func (s *stubSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubMemory struct {
	mu      sync.Mutex
	records []types.AgentMemory
	rec     types.Recommendations
}

func (s *stubMemory) Record(_ context.Context, mem types.AgentMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, mem)
	return nil
}

func (s *stubMemory) GetRecommendations(string) (types.Recommendations, error) {
	return s.rec, nil
}

func (s *stubMemory) recorded() []types.AgentMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AgentMemory, len(s.records))
	copy(out, s.records)
	return out
}

func goodSources() []types.SourceRecord {
	return []types.SourceRecord{
		{
			URL:    "https://www.sec.gov/filings/acme-10k",
			Domain: "sec.gov",
			Title:  "Acme Corp 10-K",
			Content: "Acme Corp reported revenue of 5 billion dollars for fiscal 2025. " +
				"The filing also lists many subsidiaries worldwide.",
			RelevanceScore: 0.9,
		},
		{
			URL:            "https://reuters.com/markets/acme-earnings",
			Domain:         "reuters.com",
			Title:          "Acme earnings",
			Content:        "Acme Corp reported revenue of 5 billion dollars for fiscal 2025, beating estimates.",
			RelevanceScore: 0.7,
		},
	}
}

func newTestAgent(search types.SearchService, mem *stubMemory, outputDir string) *Agent {
	cfg := types.AgentConfig{Report: types.ReportConfig{OutputDir: outputDir}}
	return New(cfg, search, nil, mem, nil, nil)
}

func TestRunCompletesWithVerifiedFindings(t *testing.T) {
	dir := t.TempDir()
	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return goodSources(), nil
	}}
	mem := &stubMemory{}
	a := newTestAgent(search, mem, dir)

	r, err := a.Run(context.Background(), "Acme Corp revenue")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.InsufficientData {
		t.Fatal("insufficient data flagged despite productive sources")
	}
	if len(r.Findings) == 0 {
		t.Fatal("no findings extracted")
	}
	if r.Findings[0].Field != "revenue" {
		t.Errorf("finding field = %q, want revenue", r.Findings[0].Field)
	}
	if len(r.Claims) == 0 {
		t.Fatal("no claims verified")
	}
	if r.Claims[0].Status != types.StatusVerified {
		t.Errorf("claim status = %q, want verified", r.Claims[0].Status)
	}
	if r.Quality.Overall < 0.7 {
		t.Errorf("quality = %.2f, want >= 0.7 for agreeing authoritative sources", r.Quality.Overall)
	}

	for _, name := range []string{r.RunID + ".yaml", r.RunID + ".md"} {
		if _, statErr := os.Stat(filepath.Join(dir, name)); statErr != nil {
			t.Errorf("report file %s not written: %v", name, statErr)
		}
	}

	records := mem.recorded()
	if len(records) != 1 {
		t.Fatalf("recorded outcomes = %d, want 1", len(records))
	}
	if !records[0].Success {
		t.Error("high-quality run recorded as failure")
	}
	if !strings.Contains(records[0].Pattern, "revenue") {
		t.Errorf("pattern = %q, want the query keywords", records[0].Pattern)
	}
	if len(records[0].Domains) != 2 {
		t.Errorf("domain outcomes = %d, want 2", len(records[0].Domains))
	}
}

func TestRunEmptySearchYieldsInsufficientData(t *testing.T) {
	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return nil, nil
	}}
	mem := &stubMemory{}
	a := newTestAgent(search, mem, "")

	r, err := a.Run(context.Background(), "Acme Corp revenue")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !r.InsufficientData {
		t.Fatal("empty search must flag insufficient data")
	}
	if !strings.Contains(r.Summary, "No usable sources") {
		t.Errorf("summary = %q, want the honest statement", r.Summary)
	}
	if len(r.Findings) != 0 {
		t.Error("insufficient-data report must not fabricate findings")
	}

	records := mem.recorded()
	if len(records) != 1 || records[0].Success {
		t.Errorf("records = %+v, want one unsuccessful outcome", records)
	}
}

func TestRunUnrecoverableErrorFails(t *testing.T) {
	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return nil, types.Errorf(types.ErrParsing, "malformed search payload")
	}}
	a := newTestAgent(search, &stubMemory{}, "")

	r, err := a.Run(context.Background(), "Acme Corp revenue")
	if err == nil {
		t.Fatal("unrecoverable search error must fail the run")
	}
	if kind := types.KindOf(err); kind != types.ErrParsing {
		t.Errorf("error kind = %q, want parsing", kind)
	}
	if !r.InsufficientData {
		t.Error("failed run without findings must flag insufficient data")
	}
	if !strings.Contains(r.Summary, "failed") {
		t.Errorf("summary = %q, want the failure stated", r.Summary)
	}
}

func TestRunRecoversFromRateLimit(t *testing.T) {
	search := &stubSearch{fn: func(call int, _ string, _ types.SearchOptions) ([]types.SourceRecord, error) {
		if call == 1 {
			return nil, types.Errorf(types.ErrRateLimit, "429 from upstream")
		}
		return goodSources(), nil
	}}
	a := newTestAgent(search, &stubMemory{}, "")

	r, err := a.Run(context.Background(), "Acme Corp revenue")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if search.callCount() < 2 {
		t.Fatalf("search calls = %d, want a retry after the rate limit", search.callCount())
	}
	if r.InsufficientData || len(r.Findings) == 0 {
		t.Error("recovered run must still produce findings")
	}
}

func TestRunNetworkErrorFallsBackToWideSearch(t *testing.T) {
	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return nil, types.Errorf(types.ErrNetwork, "dns failure")
	}}
	a := newTestAgent(search, &stubMemory{}, "")

	r, err := a.Run(context.Background(), "Acme Corp revenue")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !r.InsufficientData {
		t.Fatal("run with no reachable sources must flag insufficient data")
	}
	if search.callCount() < 2 {
		t.Errorf("search calls = %d, want the widened search attempted", search.callCount())
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return goodSources(), nil
	}}
	a := newTestAgent(search, &stubMemory{}, "")

	r, err := a.Run(ctx, "Acme Corp revenue")
	if err == nil {
		t.Fatal("canceled context must fail the run")
	}
	if kind := types.KindOf(err); kind != types.ErrTimeout {
		t.Errorf("error kind = %q, want timeout", kind)
	}
	if !r.InsufficientData {
		t.Error("canceled run must report insufficient data")
	}
}

func TestRunEmptyQuery(t *testing.T) {
	a := newTestAgent(&stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return nil, nil
	}}, &stubMemory{}, "")

	if _, err := a.Run(context.Background(), "   "); types.KindOf(err) != types.ErrParsing {
		t.Errorf("err = %v, want a parsing error", err)
	}
}

func TestRunWideAggregates(t *testing.T) {
	search := &stubSearch{fn: func(int, string, types.SearchOptions) ([]types.SourceRecord, error) {
		return goodSources(), nil
	}}
	a := newTestAgent(search, &stubMemory{}, "")

	r, err := a.RunWide(context.Background(), "history of Acme Corp")
	if err != nil {
		t.Fatalf("RunWide: %v", err)
	}
	if r.InsufficientData {
		t.Fatal("productive wide run flagged insufficient")
	}
	if len(r.Sources) != 2 {
		t.Errorf("sources = %d, want the deduplicated set", len(r.Sources))
	}
	if len(r.Findings) == 0 {
		t.Error("wide run produced no findings")
	}
}

func TestExtractFields(t *testing.T) {
	src := types.SourceRecord{
		URL: "https://example.com",
		Content: "Total revenue was $4.2 billion while market cap reached " +
			"30 billion dollars. The share price closed at 112.",
	}

	ext := extractFields("Acme revenue and market cap", src)
	if got := ext.Fields["revenue"]; got != 4.2e9 {
		t.Errorf("revenue = %v, want 4.2e9", got)
	}
	if got := ext.Fields["market_cap"]; got != 3e10 {
		t.Errorf("market_cap = %v, want 3e10", got)
	}
	if _, ok := ext.Fields["price"]; ok {
		t.Error("price extracted though the query never asked for it")
	}

	if ext := extractFields("who founded the company", src); len(ext.Fields) != 0 {
		t.Errorf("fields = %v, want none without matching keywords", ext.Fields)
	}
}

func TestParseFigure(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$5 billion", 5e9, true},
		{"was 1,200 units", 1200, true},
		{"3.5 million people", 3.5e6, true},
		{"42", 42, true},
		{"no digits here", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFigure(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseFigure(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractClaimsDeduplicatesAndCaps(t *testing.T) {
	shared := "The orbital launch cadence increased to record levels this year."
	dup := []types.SourceRecord{
		{URL: "https://a.example.com", Content: shared},
		{URL: "https://b.example.com", Content: shared},
	}
	claims := extractClaims("orbital launch cadence", dup)
	if len(claims) != 1 {
		t.Fatalf("claims = %d, want the shared sentence once", len(claims))
	}

	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString("The orbital launch cadence grew again in month number ")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(". ")
	}
	many := []types.SourceRecord{{URL: "https://c.example.com", Content: b.String()}}
	if claims := extractClaims("orbital launch cadence", many); len(claims) != maxClaims {
		t.Errorf("claims = %d, want the cap %d", len(claims), maxClaims)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Four")
	if len(got) != 4 {
		t.Fatalf("sentences = %d, want 4: %q", len(got), got)
	}
	if got[3] != "Four" {
		t.Errorf("trailing fragment = %q, want kept", got[3])
	}
}

func TestStepQuery(t *testing.T) {
	tests := []struct {
		desc     string
		wantQ    string
		wantSite string
	}{
		{"search: acme corp annual revenue", "acme corp annual revenue", ""},
		{"search sources for acme corp", "acme corp", ""},
		{"query trusted domain sec.gov", "original query", "sec.gov"},
		{"query trusted domains: sec.gov, reuters.com", "original query", "sec.gov"},
		{"search primary sources", "original query", ""},
	}
	for _, tt := range tests {
		step := &types.PlanStep{Description: tt.desc}
		q, opts := stepQuery(step, "original query")
		if q != tt.wantQ || opts.Site != tt.wantSite {
			t.Errorf("stepQuery(%q) = %q, site %q; want %q, site %q",
				tt.desc, q, opts.Site, tt.wantQ, tt.wantSite)
		}
	}
}

func TestDomainOutcomes(t *testing.T) {
	sources := []types.SourceRecord{
		{Domain: "sec.gov", RelevanceScore: 0.8},
		{Domain: "blog.example.com", RelevanceScore: 0.5},
		{Domain: "sec.gov", RelevanceScore: 0.6},
		{RelevanceScore: 1.0}, // no domain
	}
	out := domainOutcomes(sources)
	if len(out) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(out))
	}
	if out[0].Domain != "sec.gov" || out[0].Usefulness != 0.7 {
		t.Errorf("first outcome = %+v, want sec.gov at 0.7", out[0])
	}
	if out[1].Domain != "blog.example.com" || out[1].Usefulness != 0.5 {
		t.Errorf("second outcome = %+v, want blog.example.com at 0.5", out[1])
	}
}
