// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package critic verifies factual claims against ranked sources. A
// lexical heuristic grades each source's support; the inference service
// is consulted only when the heuristic lands in the ambiguous weak
// band. Verdicts are cached by a fingerprint of the claim and the
// candidate source URLs.
package critic

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/internal/crossref"
	"github.com/pdiddy/research-agent/internal/executor"
	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	defaultTopSources = 3
	defaultCacheSize  = 256

	// Lexical support bands over the fraction of claim terms a source
	// contains.
	strongBand   = 0.8
	moderateBand = 0.5
	weakBand     = 0.25

	// Verdict thresholds over the authority-weighted support score.
	verifiedFloor     = 0.8
	partialFloor      = 0.5
	contradictedBelow = 0.5
)

// negationMarkers flip a lexical match into a contradiction candidate.
var negationMarkers = []string{" not ", " never ", "denied", "false", "refuted", "debunked"}

// gradeJob pairs a claim's terms with one candidate source.
type gradeJob struct {
	claim string
	terms []string
	src   types.SourceRecord
}

// Critic grades claims against sources.
type Critic struct {
	resolver  *authority.Resolver
	inference types.InferenceService
	exec      *executor.Executor[gradeJob, types.SupportLevel]

	topSources int

	mu        sync.Mutex
	cache     map[string]types.ClaimVerification
	cacheKeys []string
	cacheSize int

	logger *zap.Logger
}

// New builds a Critic. inference may be nil; the critic then relies on
// the lexical heuristic alone.
func New(resolver *authority.Resolver, inference types.InferenceService, cfg types.CriticConfig, logger *zap.Logger) *Critic {
	if logger == nil {
		logger = zap.NewNop()
	}
	topSources := cfg.TopSources
	if topSources <= 0 {
		topSources = defaultTopSources
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c := &Critic{
		resolver:   resolver,
		inference:  inference,
		topSources: topSources,
		cache:      make(map[string]types.ClaimVerification),
		cacheSize:  cacheSize,
		logger:     logger,
	}
	c.exec = executor.New[gradeJob, types.SupportLevel](
		types.ExecutorConfig{MaxConcurrency: topSources}, logger, nil)
	return c
}

// VerifyClaim grades the claim against the highest-authority sources and
// returns an authority-weighted verdict. A repeated claim over the same
// candidate sources answers from the cache.
func (c *Critic) VerifyClaim(ctx context.Context, claim string, sources []types.SourceRecord) (types.ClaimVerification, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return types.ClaimVerification{}, types.Errorf(types.ErrParsing, "empty claim")
	}

	key := fingerprint(claim, sources)
	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ranked := c.resolver.RankSources(sources)
	if len(ranked) > c.topSources {
		ranked = ranked[:c.topSources]
	}

	verdict := types.ClaimVerification{Claim: claim, Status: types.StatusUnverified}
	if len(ranked) == 0 {
		c.store(key, verdict)
		return verdict, nil
	}

	terms := claimTerms(claim)

	// Grade the ranked sources in parallel; grading never errors, the
	// inference fallback is handled inside the worker.
	jobs := make([]gradeJob, len(ranked))
	for i, src := range ranked {
		jobs[i] = gradeJob{claim: claim, terms: terms, src: src}
	}
	graded := c.exec.ExecuteAll(ctx, jobs, c.gradeSource, executor.Options{})

	var weighted, authoritySum float64
	hasStrong := false

	for i, src := range ranked {
		level := graded.Results[i]
		auth := c.resolver.GetAuthority(src.URL).Authority
		support := types.SourceSupport{URL: src.URL, Level: level, Authority: auth}
		switch level {
		case types.SupportContradicts:
			verdict.Contradicting = append(verdict.Contradicting, support)
		case types.SupportNone:
			// Neither supporting nor contradicting.
		default:
			verdict.Supporting = append(verdict.Supporting, support)
		}

		if level == types.SupportStrong {
			hasStrong = true
		}
		weighted += level.Weight() * auth
		authoritySum += auth
	}

	score := 0.0
	if authoritySum > 0 {
		score = weighted / authoritySum
	}
	// A net-negative score floors confidence at zero; the contradiction
	// strength is carried by Contradicting and the status below.
	verdict.Confidence = types.Clamp01(score)

	switch {
	case len(verdict.Contradicting) > 0 && score < contradictedBelow:
		verdict.Status = types.StatusContradicted
	case score >= verifiedFloor && hasStrong:
		verdict.Status = types.StatusVerified
	case score >= partialFloor:
		verdict.Status = types.StatusPartiallyVerified
	default:
		verdict.Status = types.StatusUnverified
	}

	c.store(key, verdict)
	c.logger.Debug("claim graded",
		zap.String("status", string(verdict.Status)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("sources", len(ranked)))
	return verdict, nil
}

// gradeSource is the executor worker for one claim/source pair. The
// lexical heuristic answers first. Only the ambiguous weak band
// escalates to the inference service when one is configured, with
// inference failures falling back to the heuristic answer; sources with
// no lexical overlap stay none without any inference call.
func (c *Critic) gradeSource(ctx context.Context, job gradeJob) (types.SupportLevel, error) {
	level := gradeLexical(job.terms, job.src.Content)
	if level == types.SupportWeak && c.inference != nil {
		inferred, err := c.gradeWithInference(ctx, job.claim, job.src)
		if err != nil {
			c.logger.Debug("inference grading skipped",
				zap.String("url", job.src.URL), zap.Error(err))
			return level, nil
		}
		return inferred, nil
	}
	return level, nil
}

// VerifyAll grades every claim in order; per-claim source grading is
// already parallel.
func (c *Critic) VerifyAll(ctx context.Context, claims []string, sources []types.SourceRecord) ([]types.ClaimVerification, error) {
	out := make([]types.ClaimVerification, 0, len(claims))
	for _, claim := range claims {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		v, err := c.VerifyClaim(ctx, claim, sources)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CacheLen reports the number of cached verdicts.
func (c *Critic) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// store caches a verdict, evicting the oldest entry past the bound.
func (c *Critic) store(key string, v types.ClaimVerification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cache[key]; !exists {
		c.cacheKeys = append(c.cacheKeys, key)
	}
	c.cache[key] = v
	for len(c.cacheKeys) > c.cacheSize {
		oldest := c.cacheKeys[0]
		c.cacheKeys = c.cacheKeys[1:]
		delete(c.cache, oldest)
	}
}

// gradeLexical bands the fraction of claim terms found in the content.
// A matching source whose surrounding text carries a negation marker is
// treated as contradicting.
func gradeLexical(terms []string, content string) types.SupportLevel {
	if len(terms) == 0 || content == "" {
		return types.SupportNone
	}
	normalized := " " + crossref.Normalize(content) + " "

	found := 0
	for _, term := range terms {
		if strings.Contains(normalized, " "+term+" ") {
			found++
		}
	}
	coverage := float64(found) / float64(len(terms))

	if coverage >= moderateBand && containsNegation(strings.ToLower(content)) {
		return types.SupportContradicts
	}
	switch {
	case coverage >= strongBand:
		return types.SupportStrong
	case coverage >= moderateBand:
		return types.SupportModerate
	case coverage >= weakBand:
		return types.SupportWeak
	default:
		return types.SupportNone
	}
}

func containsNegation(content string) bool {
	for _, m := range negationMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// gradeWithInference asks the inference service for a one-word support
// judgment and maps it back onto the support levels.
func (c *Critic) gradeWithInference(ctx context.Context, claim string, src types.SourceRecord) (types.SupportLevel, error) {
	prompt := "Does the source text support the claim? Answer with exactly one of: " +
		"strong, moderate, weak, contradicts, none.\n\nClaim: " + claim
	answer, err := c.inference.Complete(ctx, prompt, src.Content)
	if err != nil {
		return types.SupportNone, err
	}
	switch types.SupportLevel(strings.ToLower(strings.TrimSpace(answer))) {
	case types.SupportStrong:
		return types.SupportStrong, nil
	case types.SupportModerate:
		return types.SupportModerate, nil
	case types.SupportWeak:
		return types.SupportWeak, nil
	case types.SupportContradicts:
		return types.SupportContradicts, nil
	default:
		return types.SupportNone, nil
	}
}

// claimTerms extracts the significant terms of a claim: normalized words
// longer than two characters.
func claimTerms(claim string) []string {
	var terms []string
	for _, w := range strings.Fields(crossref.Normalize(claim)) {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// fingerprint keys a verdict by the normalized claim and the sorted
// candidate URLs.
func fingerprint(claim string, sources []types.SourceRecord) string {
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	sort.Strings(urls)
	h := sha256.Sum256([]byte(crossref.Normalize(claim) + "|" + strings.Join(urls, ",")))
	return fmt.Sprintf("%x", h[:8])
}
