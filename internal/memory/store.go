// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory persists research outcomes in SQLite and turns them
// into strategy and domain recommendations for future queries.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	dbFile = "memory.db"

	defaultWindowSize       = 200
	defaultMinDomainSamples = 3

	// domainAlpha is the exponential moving average factor applied to a
	// domain's usefulness on each new observation.
	domainAlpha = 0.3

	// trustFloor and distrustCeiling split domains into recommended and
	// avoided sets once they have enough samples.
	trustFloor      = 0.6
	distrustCeiling = 0.3
)

// Store is the SQLite-backed outcome log.
type Store struct {
	db               *sql.DB
	windowSize       int
	minDomainSamples int
	logger           *zap.Logger
}

// NewStore opens or creates the memory database at cfg.Dir/memory.db.
// The schema is created if it does not exist.
func NewStore(cfg types.MemoryConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}

	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	minSamples := cfg.MinDomainSamples
	if minSamples <= 0 {
		minSamples = defaultMinDomainSamples
	}

	s := &Store{
		db:               db,
		windowSize:       windowSize,
		minDomainSamples: minSamples,
		logger:           logger,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memory schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT NOT NULL,
			strategy TEXT NOT NULL,
			success INTEGER NOT NULL,
			quality REAL NOT NULL,
			learnings TEXT,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_pattern ON outcomes(pattern)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_recorded_at ON outcomes(recorded_at)`,
		`CREATE TABLE IF NOT EXISTS domains (
			domain TEXT PRIMARY KEY,
			samples INTEGER NOT NULL,
			usefulness REAL NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends one outcome and folds its domain observations into the
// running per-domain usefulness averages. The outcome log is pruned to
// the configured window afterwards.
func (s *Store) Record(ctx context.Context, mem types.AgentMemory) error {
	if mem.Pattern == "" {
		return fmt.Errorf("recording outcome: empty pattern")
	}
	recordedAt := mem.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	strategyJSON, err := json.Marshal(mem.Strategy)
	if err != nil {
		return fmt.Errorf("encoding strategy: %w", err)
	}
	learningsJSON, _ := json.Marshal(mem.Learnings)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outcomes (pattern, strategy, success, quality, learnings, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mem.Pattern, string(strategyJSON), boolToInt(mem.Success), mem.Quality,
		string(learningsJSON), recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}

	for _, d := range mem.Domains {
		if err := s.updateDomain(ctx, tx, d, recordedAt); err != nil {
			return err
		}
	}

	// Keep only the newest windowSize outcomes.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM outcomes WHERE rowid NOT IN (
			SELECT rowid FROM outcomes ORDER BY rowid DESC LIMIT ?
		)`, s.windowSize,
	)
	if err != nil {
		return fmt.Errorf("pruning outcome window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing outcome: %w", err)
	}

	s.logger.Debug("outcome recorded",
		zap.String("pattern", mem.Pattern),
		zap.Bool("success", mem.Success),
		zap.Float64("quality", mem.Quality),
		zap.Int("domains", len(mem.Domains)))
	return nil
}

func (s *Store) updateDomain(ctx context.Context, tx *sql.Tx, d types.DomainOutcome, at time.Time) error {
	var samples int
	var usefulness float64
	err := tx.QueryRowContext(ctx,
		`SELECT samples, usefulness FROM domains WHERE domain = ?`, d.Domain,
	).Scan(&samples, &usefulness)

	switch {
	case err == sql.ErrNoRows:
		samples = 1
		usefulness = types.Clamp01(d.Usefulness)
	case err != nil:
		return fmt.Errorf("reading domain %s: %w", d.Domain, err)
	default:
		samples++
		usefulness = (1-domainAlpha)*usefulness + domainAlpha*types.Clamp01(d.Usefulness)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO domains (domain, samples, usefulness, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
			samples=excluded.samples, usefulness=excluded.usefulness, updated_at=excluded.updated_at`,
		d.Domain, samples, usefulness, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting domain %s: %w", d.Domain, err)
	}
	return nil
}

// GetRecommendations answers with the best historical strategy for the
// query's pattern, the pattern's expected quality, and domain advice.
// ExpectedQuality blends the window's mean recorded quality with its
// success rate, so a pattern that always succeeds projects high quality;
// it is -1 with SampleCount 0 when no history matches.
func (s *Store) GetRecommendations(query string) (types.Recommendations, error) {
	pattern := ExtractPattern(query)
	rec := types.Recommendations{ExpectedQuality: -1}

	rows, err := s.db.Query(
		`SELECT strategy, success, quality FROM outcomes
		 WHERE pattern = ? ORDER BY rowid DESC LIMIT ?`,
		pattern, s.windowSize,
	)
	if err != nil {
		return rec, fmt.Errorf("querying outcomes for %q: %w", pattern, err)
	}
	defer rows.Close()

	var qualitySum, bestQuality float64
	var successes int
	var bestStrategy *types.Strategy
	for rows.Next() {
		var strategyJSON string
		var success int
		var quality float64
		if err := rows.Scan(&strategyJSON, &success, &quality); err != nil {
			return rec, fmt.Errorf("scanning outcome: %w", err)
		}
		rec.SampleCount++
		qualitySum += quality
		if success == 1 {
			successes++
		}

		if success == 1 && quality >= bestQuality {
			var strat types.Strategy
			if err := json.Unmarshal([]byte(strategyJSON), &strat); err == nil {
				bestQuality = quality
				bestStrategy = &strat
			}
		}
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("iterating outcomes: %w", err)
	}

	if rec.SampleCount > 0 {
		n := float64(rec.SampleCount)
		rec.ExpectedQuality = (qualitySum/n + float64(successes)/n) / 2
		rec.Strategy = bestStrategy
	}

	trusted, untrusted, err := s.domainAdvice()
	if err != nil {
		return rec, err
	}
	rec.TrustedDomains = trusted
	rec.UntrustedDomains = untrusted
	return rec, nil
}

// domainAdvice splits sampled domains by usefulness, skipping domains
// below the sample floor.
func (s *Store) domainAdvice() (trusted, untrusted []string, err error) {
	rows, err := s.db.Query(
		`SELECT domain, usefulness FROM domains WHERE samples >= ? ORDER BY usefulness DESC, domain`,
		s.minDomainSamples,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var domain string
		var usefulness float64
		if err := rows.Scan(&domain, &usefulness); err != nil {
			return nil, nil, fmt.Errorf("scanning domain: %w", err)
		}
		switch {
		case usefulness >= trustFloor:
			trusted = append(trusted, domain)
		case usefulness <= distrustCeiling:
			untrusted = append(untrusted, domain)
		}
	}
	return trusted, untrusted, rows.Err()
}

// DomainUsefulness returns the running usefulness average for one
// domain. The second return is false when the domain was never observed.
func (s *Store) DomainUsefulness(domain string) (float64, bool) {
	var usefulness float64
	err := s.db.QueryRow(
		`SELECT usefulness FROM domains WHERE domain = ?`, domain,
	).Scan(&usefulness)
	if err != nil {
		return 0, false
	}
	return usefulness, true
}

// OutcomeCount reports the number of retained outcomes.
func (s *Store) OutcomeCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outcomes: %w", err)
	}
	return n, nil
}

// RecentOutcomes returns the newest retained outcomes, newest first.
// limit <= 0 returns the whole window.
func (s *Store) RecentOutcomes(limit int) ([]types.AgentMemory, error) {
	if limit <= 0 {
		limit = s.windowSize
	}
	rows, err := s.db.Query(
		`SELECT pattern, strategy, success, quality, learnings, recorded_at
		 FROM outcomes ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes: %w", err)
	}
	defer rows.Close()

	var out []types.AgentMemory
	for rows.Next() {
		var mem types.AgentMemory
		var strategyJSON, learningsJSON, recordedAt string
		var success int
		if err := rows.Scan(&mem.Pattern, &strategyJSON, &success,
			&mem.Quality, &learningsJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		mem.Success = success != 0
		if err := json.Unmarshal([]byte(strategyJSON), &mem.Strategy); err != nil {
			return nil, fmt.Errorf("decoding strategy: %w", err)
		}
		if learningsJSON != "" {
			_ = json.Unmarshal([]byte(learningsJSON), &mem.Learnings)
		}
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			mem.RecordedAt = t
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// stopwords are dropped during pattern extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "with": true,
}

// patternKeywords is the maximum number of keywords kept per pattern.
const patternKeywords = 5

// ExtractPattern normalizes a query to a stable pattern key: lowercase,
// stopwords removed, remaining keywords sorted and capped. Two phrasings
// of the same question map to the same pattern.
func ExtractPattern(query string) string {
	var words []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f == "" || stopwords[f] {
			continue
		}
		words = append(words, f)
	}
	if len(words) == 0 {
		return "general"
	}
	sort.Strings(words)
	words = dedupe(words)
	if len(words) > patternKeywords {
		words = words[:patternKeywords]
	}
	return strings.Join(words, " ")
}

func dedupe(sorted []string) []string {
	out := sorted[:1]
	for _, w := range sorted[1:] {
		if w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
