// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package critic

import (
	"context"
	"errors"
	"testing"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/pkg/types"
)

type stubInference struct {
	answer string
	err    error
	calls  int
}

func (s *stubInference) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.answer, s.err
}

func newTestCritic(inference types.InferenceService, cfg types.CriticConfig) *Critic {
	return New(authority.NewResolver(), inference, cfg, nil)
}

func src(url, content string) types.SourceRecord {
	return types.SourceRecord{URL: url, Content: content}
}

func TestVerifyClaimStrongAgreement(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{})
	sources := []types.SourceRecord{
		src("https://www.sec.gov/filing", "Acme Corp reported annual revenue of 5 million dollars."),
		src("https://www.reuters.com/article", "Acme Corp posted revenue of 5 million dollars for the year."),
	}

	v, err := c.VerifyClaim(context.Background(), "Acme Corp annual revenue 5 million dollars", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if v.Status != types.StatusVerified {
		t.Errorf("status = %q, want verified", v.Status)
	}
	if v.Confidence < 0.8 {
		t.Errorf("confidence = %v, want at least 0.8 for a verified claim", v.Confidence)
	}
	if len(v.Supporting) != 2 {
		t.Errorf("supporting = %d sources, want 2", len(v.Supporting))
	}
}

func TestVerifyClaimNoSources(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{})
	v, err := c.VerifyClaim(context.Background(), "Acme Corp revenue", nil)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if v.Status != types.StatusUnverified || v.Confidence != 0 {
		t.Errorf("verdict = %+v, want unverified with zero confidence", v)
	}
}

func TestVerifyClaimEmptyClaim(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{})
	if _, err := c.VerifyClaim(context.Background(), "  ", nil); err == nil {
		t.Error("VerifyClaim accepted an empty claim")
	}
}

func TestVerifyClaimContradiction(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{})
	sources := []types.SourceRecord{
		src("https://www.sec.gov/filing",
			"The report that Acme Corp revenue reached 5 million dollars was refuted by the auditors."),
	}
	v, err := c.VerifyClaim(context.Background(), "Acme Corp revenue reached 5 million dollars", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if v.Status != types.StatusContradicted {
		t.Errorf("status = %q, want contradicted", v.Status)
	}
	if len(v.Contradicting) != 1 {
		t.Errorf("contradicting = %d sources, want 1", len(v.Contradicting))
	}
}

func TestVerifyClaimUsesTopSourcesOnly(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{TopSources: 1})
	sources := []types.SourceRecord{
		src("https://someblog.example.com/post", "Acme Corp revenue was 5 million dollars."),
		src("https://www.sec.gov/filing", "unrelated text"),
	}
	// Only the sec.gov source is graded; it does not mention the claim.
	v, err := c.VerifyClaim(context.Background(), "Acme Corp revenue 5 million dollars", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if v.Status != types.StatusUnverified {
		t.Errorf("status = %q, want unverified when the top source is silent", v.Status)
	}
}

func TestVerifyClaimCacheHit(t *testing.T) {
	inference := &stubInference{answer: "strong"}
	c := newTestCritic(inference, types.CriticConfig{})
	// One of three claim terms matches: the weak band escalates once.
	sources := []types.SourceRecord{src("https://example.com/a", "revenue was discussed briefly")}

	for i := 0; i < 3; i++ {
		if _, err := c.VerifyClaim(context.Background(), "Acme Corp revenue", sources); err != nil {
			t.Fatalf("VerifyClaim: %v", err)
		}
	}
	if inference.calls != 1 {
		t.Errorf("inference calls = %d, want 1: repeats must hit the cache", inference.calls)
	}
	if c.CacheLen() != 1 {
		t.Errorf("cache length = %d, want 1", c.CacheLen())
	}
}

func TestVerifyClaimCacheEviction(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{CacheSize: 2})
	for _, claim := range []string{"claim one text", "claim two text", "claim three text"} {
		if _, err := c.VerifyClaim(context.Background(), claim, nil); err != nil {
			t.Fatalf("VerifyClaim: %v", err)
		}
	}
	if c.CacheLen() != 2 {
		t.Errorf("cache length = %d, want the configured bound 2", c.CacheLen())
	}
}

func TestVerifyClaimInferenceEscalation(t *testing.T) {
	inference := &stubInference{answer: "strong"}
	c := newTestCritic(inference, types.CriticConfig{})
	// Two of five claim terms match: weak band, escalated to inference.
	sources := []types.SourceRecord{
		src("https://www.sec.gov/filing", "Acme Corp announced a shareholder meeting for the spring."),
	}

	v, err := c.VerifyClaim(context.Background(), "Acme Corp quarterly dividend increased", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if inference.calls != 1 {
		t.Errorf("inference calls = %d, want 1 for the ambiguous source", inference.calls)
	}
	if v.Status != types.StatusVerified {
		t.Errorf("status = %q, want verified via inference escalation", v.Status)
	}
}

func TestVerifyClaimNoOverlapSkipsInference(t *testing.T) {
	inference := &stubInference{answer: "strong"}
	c := newTestCritic(inference, types.CriticConfig{})
	sources := []types.SourceRecord{
		src("https://www.sec.gov/filing", "paraphrased text with zero shared vocabulary"),
	}

	v, err := c.VerifyClaim(context.Background(), "Acme Corp quarterly dividend increased", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if inference.calls != 0 {
		t.Errorf("inference calls = %d, want 0 below the weak band", inference.calls)
	}
	if v.Status != types.StatusUnverified {
		t.Errorf("status = %q, want unverified without escalation", v.Status)
	}
}

func TestVerifyClaimInferenceFailureFallsBack(t *testing.T) {
	c := newTestCritic(&stubInference{err: errors.New("service down")}, types.CriticConfig{})
	sources := []types.SourceRecord{
		src("https://www.sec.gov/filing", "Acme Corp announced a shareholder meeting for the spring."),
	}
	v, err := c.VerifyClaim(context.Background(), "Acme Corp quarterly dividend increased", sources)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if v.Status != types.StatusUnverified {
		t.Errorf("status = %q, want unverified when inference is down", v.Status)
	}
}

func TestVerifyAllStopsOnCancel(t *testing.T) {
	c := newTestCritic(nil, types.CriticConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := c.VerifyAll(ctx, []string{"a claim", "b claim"}, nil)
	if err == nil {
		t.Error("VerifyAll ignored a canceled context")
	}
	if len(out) != 0 {
		t.Errorf("verdicts = %d, want none after immediate cancel", len(out))
	}
}

func TestGradeLexicalBands(t *testing.T) {
	terms := claimTerms("Acme Corp revenue five million")
	tests := []struct {
		content string
		want    types.SupportLevel
	}{
		{"Acme Corp revenue five million", types.SupportStrong},
		{"Acme Corp revenue was strong this year", types.SupportModerate},
		{"Acme Corp mentioned in passing", types.SupportWeak},
		{"entirely unrelated text", types.SupportNone},
		{"", types.SupportNone},
	}
	for _, tt := range tests {
		if got := gradeLexical(terms, tt.content); got != tt.want {
			t.Errorf("gradeLexical(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}
