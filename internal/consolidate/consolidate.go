// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package consolidate merges per-source records into one result using
// cross-reference validation and authority ranking, computes quality
// metrics, and removes near-duplicate sources.
package consolidate

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/internal/crossref"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Quality metric weights; they sum to 1.
const (
	weightCompleteness    = 0.25
	weightConsistency     = 0.30
	weightSourceAuthority = 0.25
	weightCrossValidation = 0.20
)

// SourceExtraction is the raw field map pulled from one source.
type SourceExtraction struct {
	// URL identifies the source.
	URL string

	// Fields maps field name to the source's reported value.
	Fields map[string]any
}

// Metrics summarizes consolidation quality.
type Metrics struct {
	// Completeness is the fraction of fields that resolved to a value.
	Completeness float64 `json:"completeness" yaml:"completeness"`

	// Consistency is the fraction of fields marked verified.
	Consistency float64 `json:"consistency" yaml:"consistency"`

	// SourceAuthority is the mean authority of contributing sources.
	SourceAuthority float64 `json:"source_authority" yaml:"source_authority"`

	// CrossValidation is the mean per-field confidence rescaled to [0,1].
	CrossValidation float64 `json:"cross_validation" yaml:"cross_validation"`

	// Overall is the weighted combination of the other four.
	Overall float64 `json:"overall" yaml:"overall"`
}

// Consolidator fuses multi-source evidence.
type Consolidator struct {
	resolver  *authority.Resolver
	validator *crossref.Validator
	logger    *zap.Logger
}

// New builds a Consolidator.
func New(resolver *authority.Resolver, validator *crossref.Validator, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{resolver: resolver, validator: validator, logger: logger}
}

// Consolidate organizes extractions into a source/field map and runs
// cross-reference validation over it.
func (c *Consolidator) Consolidate(extractions []SourceExtraction) types.ConsolidatedRecord {
	dataBySource := make(map[string]map[string]any, len(extractions))
	for _, ex := range extractions {
		if len(ex.Fields) == 0 {
			continue
		}
		dataBySource[ex.URL] = ex.Fields
	}
	record := c.validator.Validate(dataBySource)
	c.logger.Debug("consolidated",
		zap.Int("sources", len(dataBySource)),
		zap.Int("fields", len(record.Fields)),
		zap.Float64("confidence", record.Confidence))
	return record
}

// ConsolidateEntities groups loosely-typed entities by kind and
// normalized name, computes an authority-weighted confidence per group,
// and merges attributes preferring the highest-authority member's
// non-empty values.
func (c *Consolidator) ConsolidateEntities(entities []types.ExtractedEntity) []types.ExtractedEntity {
	groups := make(map[string][]types.ExtractedEntity)
	var keys []string

	for _, e := range entities {
		key := e.Kind + ":" + crossref.Normalize(e.Name)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], e)
	}

	out := make([]types.ExtractedEntity, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.mergeGroup(groups[key]))
	}
	return out
}

// mergeGroup collapses one entity group into a single record.
func (c *Consolidator) mergeGroup(members []types.ExtractedEntity) types.ExtractedEntity {
	// Highest-authority member anchors name and source.
	sort.SliceStable(members, func(i, j int) bool {
		return c.memberAuthority(members[i]) > c.memberAuthority(members[j])
	})
	merged := members[0]
	if merged.Attributes == nil && len(members) > 1 {
		merged.Attributes = make(map[string]string)
	}

	var weighted, total float64
	for _, m := range members {
		w := c.memberAuthority(m)
		weighted += m.Confidence * w
		total += w
		for k, v := range m.Attributes {
			if v == "" {
				continue
			}
			if _, exists := merged.Attributes[k]; !exists {
				if merged.Attributes == nil {
					merged.Attributes = make(map[string]string)
				}
				merged.Attributes[k] = v
			}
		}
	}
	if total > 0 {
		merged.Confidence = types.Clamp01(weighted / total)
	}
	return merged
}

func (c *Consolidator) memberAuthority(e types.ExtractedEntity) float64 {
	if e.Source == "" {
		return authority.DefaultAuthority
	}
	return c.resolver.GetAuthority(e.Source).Authority
}

// DeduplicateResults removes near-duplicate source records by exact URL
// and by normalized content hash, keeping the higher-relevance record on
// collision. Records without a reliability estimate inherit their domain
// category's reliability.
func (c *Consolidator) DeduplicateResults(records []types.SourceRecord) []types.SourceRecord {
	byKey := make(map[string]int)
	var out []types.SourceRecord
	removed := 0

	for _, r := range records {
		if r.Reliability == 0 {
			r.Reliability = c.resolver.GetAuthority(r.URL).Reliability
		}
		urlKey := "url:" + r.URL
		contentKey := ""
		if norm := crossref.Normalize(r.Content); norm != "" {
			contentKey = "content:" + contentHash(norm)
		}

		if i, ok := byKey[urlKey]; ok {
			if r.RelevanceScore > out[i].RelevanceScore {
				out[i] = r
			}
			removed++
			continue
		}
		if contentKey != "" {
			if i, ok := byKey[contentKey]; ok {
				if r.RelevanceScore > out[i].RelevanceScore {
					out[i] = r
				}
				removed++
				byKey[urlKey] = i
				continue
			}
		}

		idx := len(out)
		out = append(out, r)
		byKey[urlKey] = idx
		if contentKey != "" {
			byKey[contentKey] = idx
		}
	}

	if removed > 0 {
		c.logger.Debug("deduplicated sources",
			zap.Int("kept", len(out)),
			zap.Int("removed", removed))
	}
	return out
}

// QualityMetrics combines completeness, consistency, mean source
// authority, and mean cross-validation confidence into one score.
func (c *Consolidator) QualityMetrics(record types.ConsolidatedRecord, sources []types.SourceRecord) Metrics {
	var m Metrics

	if n := len(record.Fields); n > 0 {
		populated, verified := 0, 0
		var confidenceSum float64
		for _, fv := range record.Fields {
			if fv.Method != types.MethodNoData && fv.Value != nil {
				populated++
			}
			if fv.Verified {
				verified++
			}
			confidenceSum += fv.Confidence
		}
		m.Completeness = float64(populated) / float64(n)
		m.Consistency = float64(verified) / float64(n)
		m.CrossValidation = confidenceSum / float64(n) / 100.0
	}

	if len(sources) > 0 {
		var authoritySum float64
		for _, s := range sources {
			authoritySum += c.resolver.GetAuthority(s.URL).Authority
		}
		m.SourceAuthority = authoritySum / float64(len(sources))
	}

	m.Overall = types.Clamp01(
		m.Completeness*weightCompleteness +
			m.Consistency*weightConsistency +
			m.SourceAuthority*weightSourceAuthority +
			m.CrossValidation*weightCrossValidation)
	return m
}

// contentHash returns the first 12 hex characters of SHA-256(s), enough
// to key near-identical content without storing it.
func contentHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)[:12]
}
