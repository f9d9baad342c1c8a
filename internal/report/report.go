// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report compiles run results into a structured Report and
// exports it as YAML and rendered Markdown.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

// insufficientDataSummary is the fixed honest answer for runs that
// found nothing usable.
const insufficientDataSummary = "No usable sources were found for this query. " +
	"The research run produced no verifiable findings."

// maxReportSources bounds how many sources a report lists.
const maxReportSources = 20

// Compiler builds and writes reports.
type Compiler struct {
	outputDir string
	logger    *zap.Logger
}

// New builds a Compiler.
func New(cfg types.ReportConfig, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{outputDir: cfg.OutputDir, logger: logger}
}

// Input carries everything a report draws on.
type Input struct {
	RunID    string
	Query    string
	Sources  []types.SourceRecord
	Record   types.ConsolidatedRecord
	Claims   []types.ClaimVerification
	Entities []types.ExtractedEntity
	Quality  types.QualityScore
}

// Compile builds the report. With no sources the report states
// insufficient data and carries no findings, claims, or entities.
func (c *Compiler) Compile(in Input) types.Report {
	r := types.Report{
		RunID:     in.RunID,
		Query:     in.Query,
		Quality:   in.Quality,
		CreatedAt: time.Now(),
	}

	if len(in.Sources) == 0 {
		r.InsufficientData = true
		r.Summary = insufficientDataSummary
		return r
	}

	sources := make([]types.SourceRecord, len(in.Sources))
	copy(sources, in.Sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})
	if len(sources) > maxReportSources {
		sources = sources[:maxReportSources]
	}
	r.Sources = sources
	r.Claims = in.Claims
	r.Entities = in.Entities
	r.Findings = findingsFrom(in.Record)
	r.Summary = summarize(in)
	return r
}

// findingsFrom turns consolidated fields into findings, best confidence
// first.
func findingsFrom(record types.ConsolidatedRecord) []types.Finding {
	var findings []types.Finding
	for name, fv := range record.Fields {
		if fv.Method == types.MethodNoData || fv.Value == nil {
			continue
		}
		statement := fmt.Sprintf("%s: %v", name, fv.Value)
		if !fv.Verified {
			statement += " (unverified)"
		}
		findings = append(findings, types.Finding{
			Field:      name,
			Statement:  statement,
			Confidence: fv.Confidence,
			Sources:    fv.Matched,
		})
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Confidence != findings[j].Confidence {
			return findings[i].Confidence > findings[j].Confidence
		}
		return findings[i].Field < findings[j].Field
	})
	return findings
}

// summarize writes the one-paragraph answer from the verified facts.
func summarize(in Input) string {
	verified := 0
	for _, fv := range in.Record.Fields {
		if fv.Verified {
			verified++
		}
	}
	confirmed := 0
	for _, cl := range in.Claims {
		if cl.Status == types.StatusVerified || cl.Status == types.StatusPartiallyVerified {
			confirmed++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research into %q drew on %d sources.", in.Query, len(in.Sources))
	if n := len(in.Record.Fields); n > 0 {
		fmt.Fprintf(&b, " %d of %d consolidated fields were cross-verified.", verified, n)
	}
	if len(in.Claims) > 0 {
		fmt.Fprintf(&b, " %d of %d claims were supported by the checked sources.", confirmed, len(in.Claims))
	}
	if len(in.Record.Discrepancies) > 0 {
		fmt.Fprintf(&b, " %d fields showed conflicting values across sources.", len(in.Record.Discrepancies))
	}
	fmt.Fprintf(&b, " Overall quality: %.2f.", in.Quality.Overall)
	return b.String()
}

// WriteYAML writes the report to outputDir/<runID>.yaml and returns the
// path.
func (c *Compiler) WriteYAML(r types.Report) (string, error) {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	path := filepath.Join(c.outputDir, r.RunID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	c.logger.Debug("report written", zap.String("path", path))
	return path, nil
}

// WriteMarkdown renders the report to outputDir/<runID>.md and returns
// the path.
func (c *Compiler) WriteMarkdown(r types.Report) (string, error) {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(c.outputDir, r.RunID+".md")
	if err := os.WriteFile(path, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	c.logger.Debug("report written", zap.String("path", path))
	return path, nil
}

// RenderMarkdown renders the report body.
func RenderMarkdown(r types.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", r.Query)
	fmt.Fprintf(&b, "%s\n\n", r.Summary)

	if r.InsufficientData {
		return b.String()
	}

	if len(r.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "- %s (confidence %.0f)\n", f.Statement, f.Confidence)
		}
		b.WriteString("\n")
	}

	if len(r.Claims) > 0 {
		b.WriteString("## Claim Verification\n\n")
		for _, cl := range r.Claims {
			fmt.Fprintf(&b, "- %s: **%s** (confidence %.2f, %d supporting, %d contradicting)\n",
				cl.Claim, cl.Status, cl.Confidence, len(cl.Supporting), len(cl.Contradicting))
		}
		b.WriteString("\n")
	}

	if len(r.Entities) > 0 {
		b.WriteString("## Extracted Entities\n\n")
		for _, e := range r.Entities {
			fmt.Fprintf(&b, "- %s: %s (confidence %.2f)\n", e.Kind, e.Name, e.Confidence)
		}
		b.WriteString("\n")
	}

	if len(r.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for i, s := range r.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, s.URL)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\nQuality: %.2f | Generated: %s\n",
		r.Quality.Overall, r.CreatedAt.Format(time.RFC3339))
	return b.String()
}
