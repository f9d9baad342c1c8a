// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SourceCategory classifies a domain by the kind of institution behind it.
type SourceCategory string

const (
	CategoryGovernment SourceCategory = "government"
	CategoryRegulatory SourceCategory = "regulatory"
	CategoryOfficial   SourceCategory = "official"
	CategoryAcademic   SourceCategory = "academic"
	CategoryFinancial  SourceCategory = "financial"
	CategoryMajorNews  SourceCategory = "major_news"
	CategoryMinorNews  SourceCategory = "minor_news"
	CategoryWiki       SourceCategory = "wiki"
	CategorySocial     SourceCategory = "social"
	CategoryUnknown    SourceCategory = "unknown"
)

// SourceRecord is one scraped or found source. Records are created on
// ingestion and read-only thereafter.
type SourceRecord struct {
	// URL is the full address the source was fetched from.
	URL string `json:"url" yaml:"url"`

	// Domain is the registrable host extracted from URL.
	Domain string `json:"domain" yaml:"domain"`

	// Title is the source's self-reported title.
	Title string `json:"title" yaml:"title"`

	// Content is the raw extracted text.
	Content string `json:"content" yaml:"content"`

	// Reliability is the per-source reliability estimate in [0,1].
	Reliability float64 `json:"reliability" yaml:"reliability"`

	// RelevanceScore ranks the source against the query in [0,1].
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// FetchedAt is when the source was retrieved.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// SourceAuthority is the authority profile computed for a domain.
// Profiles are computed lazily and cached by domain.
type SourceAuthority struct {
	// Domain the profile applies to.
	Domain string `json:"domain" yaml:"domain"`

	// Authority is the trust weight in [0,1] used to break ties between
	// conflicting values.
	Authority float64 `json:"authority" yaml:"authority"`

	// Category is the institutional classification behind the weight.
	Category SourceCategory `json:"category" yaml:"category"`

	// Reliability is the category's derived reliability constant in [0,1].
	Reliability float64 `json:"reliability" yaml:"reliability"`

	// Freshness is the category's derived freshness constant in [0,1].
	Freshness float64 `json:"freshness" yaml:"freshness"`
}
