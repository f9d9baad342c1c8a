// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package authority classifies source domains into trust profiles and
// resolves conflicts between sources by trust weight.
package authority

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/research-agent/pkg/types"
)

// DefaultAuthority is assigned to domains no rule matches.
const DefaultAuthority = 0.30

// rule maps a domain pattern to a category and base authority. Patterns
// match whole label suffixes: "sec.gov" matches "www.sec.gov" but not
// "notsec.gov"; ".gov" matches any government domain.
type rule struct {
	pattern   string
	category  types.SourceCategory
	authority float64
}

// defaultRules is ordered by descending trust; the first match wins.
var defaultRules = []rule{
	{".gov", types.CategoryGovernment, 0.95},
	{".mil", types.CategoryGovernment, 0.95},
	{"europa.eu", types.CategoryGovernment, 0.93},
	{"sec.gov", types.CategoryRegulatory, 0.95},
	{"federalreserve.gov", types.CategoryRegulatory, 0.95},
	{"esma.europa.eu", types.CategoryRegulatory, 0.92},
	{".edu", types.CategoryAcademic, 0.85},
	{".ac.uk", types.CategoryAcademic, 0.85},
	{"arxiv.org", types.CategoryAcademic, 0.82},
	{"nature.com", types.CategoryAcademic, 0.88},
	{"sciencedirect.com", types.CategoryAcademic, 0.85},
	{"bloomberg.com", types.CategoryFinancial, 0.82},
	{"ft.com", types.CategoryFinancial, 0.82},
	{"wsj.com", types.CategoryFinancial, 0.80},
	{"morningstar.com", types.CategoryFinancial, 0.75},
	{"reuters.com", types.CategoryMajorNews, 0.80},
	{"apnews.com", types.CategoryMajorNews, 0.80},
	{"bbc.com", types.CategoryMajorNews, 0.78},
	{"bbc.co.uk", types.CategoryMajorNews, 0.78},
	{"nytimes.com", types.CategoryMajorNews, 0.75},
	{"theguardian.com", types.CategoryMajorNews, 0.72},
	{"wikipedia.org", types.CategoryWiki, 0.60},
	{"wikidata.org", types.CategoryWiki, 0.58},
	{"medium.com", types.CategorySocial, 0.35},
	{"substack.com", types.CategorySocial, 0.35},
	{"reddit.com", types.CategorySocial, 0.30},
	{"twitter.com", types.CategorySocial, 0.25},
	{"x.com", types.CategorySocial, 0.25},
	{"facebook.com", types.CategorySocial, 0.25},
}

// categoryProfile holds the derived reliability and freshness constants
// for a category.
type categoryProfile struct {
	reliability float64
	freshness   float64
}

var categoryProfiles = map[types.SourceCategory]categoryProfile{
	types.CategoryGovernment: {reliability: 0.95, freshness: 0.70},
	types.CategoryRegulatory: {reliability: 0.95, freshness: 0.75},
	types.CategoryOfficial:   {reliability: 0.90, freshness: 0.80},
	types.CategoryAcademic:   {reliability: 0.90, freshness: 0.60},
	types.CategoryFinancial:  {reliability: 0.85, freshness: 0.90},
	types.CategoryMajorNews:  {reliability: 0.75, freshness: 0.90},
	types.CategoryMinorNews:  {reliability: 0.55, freshness: 0.85},
	types.CategoryWiki:       {reliability: 0.60, freshness: 0.70},
	types.CategorySocial:     {reliability: 0.30, freshness: 0.95},
	types.CategoryUnknown:    {reliability: 0.40, freshness: 0.50},
}

// Resolver classifies domains and caches the resulting profiles.
// Concurrent lookups of the same domain are collapsed through a
// singleflight group so each domain is classified once.
type Resolver struct {
	mu        sync.RWMutex
	rules     []rule
	cache     map[string]types.SourceAuthority
	overrides map[string]float64
	group     singleflight.Group
}

// NewResolver builds a Resolver with the default rule table.
func NewResolver() *Resolver {
	return &Resolver{
		rules:     defaultRules,
		cache:     make(map[string]types.SourceAuthority),
		overrides: make(map[string]float64),
	}
}

// Domain extracts the lowercased host from rawURL, stripping any www.
// prefix. A bare domain without a scheme is accepted.
func Domain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// GetAuthority resolves the authority profile for the domain of rawURL.
// Results are cached by domain; repeated calls return the first
// computation.
func (r *Resolver) GetAuthority(rawURL string) types.SourceAuthority {
	domain := Domain(rawURL)
	if domain == "" {
		return types.SourceAuthority{
			Authority:   DefaultAuthority,
			Category:    types.CategoryUnknown,
			Reliability: categoryProfiles[types.CategoryUnknown].reliability,
			Freshness:   categoryProfiles[types.CategoryUnknown].freshness,
		}
	}

	r.mu.RLock()
	cached, ok := r.cache[domain]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := r.group.Do(domain, func() (any, error) {
		auth := r.classify(domain)
		r.mu.Lock()
		r.cache[domain] = auth
		r.mu.Unlock()
		return auth, nil
	})
	return v.(types.SourceAuthority)
}

// classify matches domain against the rule table and applies overrides.
func (r *Resolver) classify(domain string) types.SourceAuthority {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category := types.CategoryUnknown
	auth := DefaultAuthority
	for _, rl := range r.rules {
		if matchDomain(domain, rl.pattern) {
			category = rl.category
			auth = rl.authority
			break
		}
	}

	if override, ok := r.overrides[domain]; ok {
		auth = override
	}

	profile := categoryProfiles[category]
	return types.SourceAuthority{
		Domain:      domain,
		Authority:   types.Clamp01(auth),
		Category:    category,
		Reliability: profile.reliability,
		Freshness:   profile.freshness,
	}
}

// matchDomain reports whether domain equals pattern or ends with pattern
// on a label boundary.
func matchDomain(domain, pattern string) bool {
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(domain, pattern) ||
			domain == strings.TrimPrefix(pattern, ".")
	}
	return domain == pattern || strings.HasSuffix(domain, "."+pattern)
}

// SetCustomAuthority installs a per-deployment authority override for a
// domain and invalidates its cache entry.
func (r *Resolver) SetCustomAuthority(domain string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("authority %v out of range [0,1]", value)
	}
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	r.mu.Lock()
	r.overrides[domain] = value
	delete(r.cache, domain)
	r.mu.Unlock()
	return nil
}

// ResolveConflict picks the value belonging to the highest-authority
// source URL. Iteration order ties are broken by URL to keep the result
// deterministic.
func (r *Resolver) ResolveConflict(valuesBySource map[string]any) (value any, sourceURL string) {
	best := -1.0
	for u, v := range valuesBySource {
		a := r.GetAuthority(u).Authority
		if a > best || (a == best && u < sourceURL) {
			best = a
			value = v
			sourceURL = u
		}
	}
	return value, sourceURL
}

// RankSources returns the records sorted by descending domain authority.
// The input slice is not modified.
func (r *Resolver) RankSources(sources []types.SourceRecord) []types.SourceRecord {
	ranked := make([]types.SourceRecord, len(sources))
	copy(ranked, sources)
	sort.SliceStable(ranked, func(i, j int) bool {
		return r.GetAuthority(ranked[i].URL).Authority > r.GetAuthority(ranked[j].URL).Authority
	})
	return ranked
}

// CalculateWeightedConfidence computes the authority-weighted average of
// per-source confidences. Returns 0 when the map is empty.
func (r *Resolver) CalculateWeightedConfidence(confidenceBySource map[string]float64) float64 {
	var weighted, total float64
	for u, conf := range confidenceBySource {
		w := r.GetAuthority(u).Authority
		weighted += conf * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
