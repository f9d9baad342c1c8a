// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch implements the HTTP clients for the external search,
// scrape, and inference boundaries. Failures are classified into the
// agent error taxonomy so recovery policies can route them.
package fetch

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

// retryBaseDelay is the base duration for exponential backoff on
// retryable HTTP responses. Tests override this to avoid real sleeps.
var retryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// retryable reports whether a response status is worth retrying.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doWithRetry executes an HTTP request and retries retryable statuses
// with exponential backoff starting at retryBaseDelay and doubling each
// attempt. The body is drained and closed before each retry. If the
// context is cancelled during a backoff wait the function returns
// ctx.Err(). After exhausting retries the last response is returned so
// the caller can classify it.
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
