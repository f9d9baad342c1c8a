// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	defaultMaxResults = 10

	// scrapeBodyCap bounds how much of a scraped page is retained.
	scrapeBodyCap = 512 * 1024
)

// SearchClient queries a SearXNG-compatible JSON search endpoint and
// optionally fetches full page content for each hit. It implements
// types.SearchService.
type SearchClient struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	userAgent  string
	maxResults int
	logger     *zap.Logger
}

// NewSearchClient builds a SearchClient from config.
func NewSearchClient(cfg types.SearchServiceConfig, logger *zap.Logger) (*SearchClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("search endpoint not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &SearchClient{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		maxResults: maxResults,
		logger:     logger,
	}, nil
}

// searchResponse is the search endpoint's JSON shape.
type searchResponse struct {
	Results []searchHit `json:"results"`
}

type searchHit struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Search runs one query and returns ranked source records. With
// opts.Scrape set, each hit's full page content replaces the search
// snippet; scrape failures keep the snippet and never fail the search.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int, opts types.SearchOptions) ([]types.SourceRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.Errorf(types.ErrParsing, "empty search query")
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	if opts.Site != "" {
		query = fmt.Sprintf("site:%s %s", opts.Site, query)
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	reqURL := c.endpoint + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrUnknown, fmt.Errorf("creating search request: %w", err))
	}
	c.setHeaders(req)

	resp, err := doWithRetry(ctx, c.client, req, 0)
	if err != nil {
		return nil, classifyTransport("search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("search", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, types.NewError(types.ErrParsing, fmt.Errorf("parsing search response: %w", err))
	}

	hits := sr.Results
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	now := time.Now()
	total := len(hits)
	records := make([]types.SourceRecord, 0, total)
	for i, hit := range hits {
		if hit.URL == "" {
			continue
		}
		score := hit.Score
		if score <= 0 {
			// Position-based fallback when the endpoint omits scores.
			if total > 1 {
				score = 1.0 - float64(i)/float64(total-1)*0.9
			} else {
				score = 1.0
			}
		}
		records = append(records, types.SourceRecord{
			URL:            hit.URL,
			Domain:         hostOf(hit.URL),
			Title:          hit.Title,
			Content:        hit.Content,
			RelevanceScore: types.Clamp01(score),
			FetchedAt:      now,
		})
	}

	if opts.Scrape {
		for i := range records {
			body, err := c.Scrape(ctx, records[i].URL)
			if err != nil {
				c.logger.Debug("scrape failed, keeping snippet",
					zap.String("url", records[i].URL), zap.Error(err))
				continue
			}
			records[i].Content = body
		}
	}

	c.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("results", len(records)))
	return records, nil
}

// Scrape fetches one page and returns its body text, capped at 512 KiB.
func (c *SearchClient) Scrape(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", types.NewError(types.ErrUnknown, fmt.Errorf("creating scrape request: %w", err))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := doWithRetry(ctx, c.client, req, 1)
	if err != nil {
		return "", classifyTransport("scrape", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("scrape", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, scrapeBodyCap))
	if err != nil {
		return "", classifyTransport("scrape", err)
	}
	return string(body), nil
}

func (c *SearchClient) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// hostOf extracts the host part of a URL, empty on parse failure.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// classifyStatus maps an HTTP status to an agent error.
func classifyStatus(phase string, status int) *types.AgentError {
	err := types.Errorf(types.ErrNetwork, "%s returned HTTP %d", phase, status)
	switch {
	case status == http.StatusTooManyRequests:
		err = types.Errorf(types.ErrRateLimit, "%s rate limited (HTTP 429)", phase)
	case status == http.StatusGatewayTimeout:
		err = types.Errorf(types.ErrTimeout, "%s timed out upstream (HTTP 504)", phase)
	}
	err.Phase = phase
	return err
}

// classifyTransport maps a transport-level failure to an agent error.
func classifyTransport(phase string, err error) *types.AgentError {
	kind := types.ErrNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = types.ErrTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		kind = types.ErrTimeout
	}
	ae := types.NewError(kind, fmt.Errorf("%s request: %w", phase, err))
	ae.Phase = phase
	return ae
}
