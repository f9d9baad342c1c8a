// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package crossref

import (
	"strings"
	"testing"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/pkg/types"
)

func newTestValidator() *Validator {
	return NewValidator(authority.NewResolver(), types.ValidationConfig{})
}

func TestValidateFieldNoData(t *testing.T) {
	v := newTestValidator()
	fv := v.ValidateField("ceo", nil)
	if fv.Method != types.MethodNoData {
		t.Errorf("method = %q, want no_data", fv.Method)
	}
	if fv.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", fv.Confidence)
	}
}

func TestValidateFieldSingleSource(t *testing.T) {
	v := newTestValidator()

	// High-authority lone source: verified, capped at 80.
	fv := v.ValidateField("ceo", map[string]any{
		"https://www.sec.gov/edgar/doc": "Jane Doe",
	})
	if !fv.Verified {
		t.Error("high-authority single source should be verified")
	}
	if fv.Confidence > 80 {
		t.Errorf("confidence = %v, want capped at 80", fv.Confidence)
	}
	if fv.Method != types.MethodAuthorityBased {
		t.Errorf("method = %q, want authority_based", fv.Method)
	}

	// Low-authority lone source: not verified.
	fv = v.ValidateField("ceo", map[string]any{
		"https://reddit.com/r/stocks": "John Smith",
	})
	if fv.Verified {
		t.Error("low-authority single source should not be verified")
	}
}

func TestValidateFieldExactMatch(t *testing.T) {
	v := newTestValidator()
	fv := v.ValidateField("ticker", map[string]any{
		"https://reuters.com/a": "ACME",
		"https://bbc.com/b":     "ACME",
		"https://wsj.com/c":     "ACME",
	})
	if fv.Method != types.MethodExactMatch {
		t.Fatalf("method = %q, want exact_match", fv.Method)
	}
	if fv.Confidence != 100 {
		t.Errorf("confidence = %v, want 100", fv.Confidence)
	}
	if !fv.Verified {
		t.Error("exact match should be verified")
	}
	if len(fv.Matched) != 3 {
		t.Errorf("matched = %d sources, want 3", len(fv.Matched))
	}
}

func TestValidateFieldNumericWithinTolerance(t *testing.T) {
	v := newTestValidator()
	// Variance (102-100)/101*100 ≈ 1.98% is inside the 5% default.
	fv := v.ValidateField("some_count", map[string]any{
		"https://reuters.com/a": 100.0,
		"https://bbc.com/b":     102.0,
	})
	if !fv.Verified {
		t.Error("2% variance should verify under 5% tolerance")
	}
	if fv.Method != types.MethodToleranceMatch {
		t.Errorf("method = %q, want tolerance_match", fv.Method)
	}
	if fv.Confidence < 0 || fv.Confidence > 100 {
		t.Errorf("confidence = %v, out of [0,100]", fv.Confidence)
	}
}

func TestValidateFieldNumericOutsideTolerance(t *testing.T) {
	v := newTestValidator()
	// Variance (120-100)/110*100 ≈ 18% exceeds the default tolerance.
	fv := v.ValidateField("some_count", map[string]any{
		"https://reuters.com/a": 100.0,
		"https://reddit.com/b":  120.0,
	})
	if fv.Verified {
		t.Error("18% variance must not verify")
	}
	if fv.Method != types.MethodAuthorityBased {
		t.Errorf("method = %q, want authority_based fallback", fv.Method)
	}
	if len(fv.Conflicting) == 0 {
		t.Error("expected conflicting sources recorded")
	}
	// Authority fallback should pick reuters' value.
	if fv.Value != 100.0 {
		t.Errorf("value = %v, want 100 from higher-authority source", fv.Value)
	}
}

func TestValidateFieldPriceTolerance(t *testing.T) {
	v := newTestValidator()
	// Price tolerance is 2%; a 3% spread must not verify.
	fv := v.ValidateField("price", map[string]any{
		"https://reuters.com/a": 100.0,
		"https://bbc.com/b":     103.0,
	})
	if fv.Verified {
		t.Error("3% price variance must not verify under 2% tolerance")
	}
}

func TestValidateFieldFuzzyMatch(t *testing.T) {
	v := newTestValidator()
	fv := v.ValidateField("company", map[string]any{
		"https://reuters.com/a": "Acme Corp",
		"https://bbc.com/b":     "ACME CORP.",
	})
	if fv.Method != types.MethodFuzzyMatch {
		t.Fatalf("method = %q, want fuzzy_match", fv.Method)
	}
	if fv.Confidence != 95 {
		t.Errorf("confidence = %v, want 95", fv.Confidence)
	}
	if !fv.Verified {
		t.Error("single cluster should verify")
	}
}

func TestValidateFieldFuzzyDisagreement(t *testing.T) {
	v := newTestValidator()
	fv := v.ValidateField("company", map[string]any{
		"https://www.sec.gov/a": "Acme Corporation",
		"https://reddit.com/b":  "Completely Different Inc",
	})
	if fv.Method != types.MethodAuthorityBased {
		t.Fatalf("method = %q, want authority fallback", fv.Method)
	}
	if fv.Value != "Acme Corporation" {
		t.Errorf("value = %v, want the sec.gov value", fv.Value)
	}
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
	}{
		{"Acme Corp", "ACME CORP.", 0.85},
		{"OpenAI", "openai", 1.0},
		{"International Business Machines", "IBM", 0.0},
	}
	for _, tt := range tests {
		got := FuzzyMatch(tt.a, tt.b)
		if got < tt.min {
			t.Errorf("FuzzyMatch(%q, %q) = %v, want >= %v", tt.a, tt.b, got, tt.min)
		}
		if got < 0 || got > 1 {
			t.Errorf("FuzzyMatch(%q, %q) = %v, out of [0,1]", tt.a, tt.b, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  ACME,  Corp.\tInc  ")
	if got != "acme corp inc" {
		t.Errorf("Normalize = %q, want %q", got, "acme corp inc")
	}
}

func TestValidateFullMap(t *testing.T) {
	v := newTestValidator()
	record := v.Validate(map[string]map[string]any{
		"https://reuters.com/a": {"company": "Acme Corp", "employees": 5000.0},
		"https://bbc.com/b":     {"company": "ACME CORP.", "employees": 5100.0},
		"https://wsj.com/c":     {"company": "Acme Corp", "founded": "1999"},
	})

	if len(record.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(record.Fields))
	}
	if record.Confidence <= 0 || record.Confidence > 100 {
		t.Errorf("overall confidence = %v, out of (0,100]", record.Confidence)
	}

	company := record.Fields["company"]
	if !company.Verified {
		t.Errorf("company should verify by fuzzy/exact agreement, got %+v", company)
	}

	// founded is single-source from wsj (authority 0.80 > 0.7 floor).
	founded := record.Fields["founded"]
	if founded.Method != types.MethodAuthorityBased {
		t.Errorf("founded method = %q, want authority_based", founded.Method)
	}
}

func TestValidateWarningOnConflict(t *testing.T) {
	v := newTestValidator()
	record := v.Validate(map[string]map[string]any{
		"https://reuters.com/a": {"count": 100.0},
		"https://reddit.com/b":  {"count": 120.0},
	})
	if len(record.Warnings) == 0 {
		t.Error("expected a warning for out-of-tolerance numeric field")
	}
	found := false
	for _, w := range record.Warnings {
		if strings.Contains(w, "count") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %v do not mention the conflicted field", record.Warnings)
	}
	if len(record.Discrepancies) == 0 {
		t.Error("expected a discrepancy entry for the conflicted field")
	}
}
