// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "context"

// SearchOptions tunes one search request.
type SearchOptions struct {
	// Scrape asks the service to fetch full page content, not just snippets.
	Scrape bool

	// Site restricts results to one domain, when supported.
	Site string
}

// SearchService is the external search/scrape capability boundary.
// Implementations must return an error instead of panicking and must
// tag failures with an ErrorKind; an empty result slice with a nil
// error is a legitimate outcome.
type SearchService interface {
	Search(ctx context.Context, query string, maxResults int, opts SearchOptions) ([]SourceRecord, error)
}

// InferenceService is the external language-model capability boundary.
// It must be treated as slow, rate-limited, and occasionally returning
// malformed output; every call site keeps a heuristic fallback that does
// not depend on this service succeeding.
type InferenceService interface {
	Complete(ctx context.Context, prompt string, context string) (string, error)
}
