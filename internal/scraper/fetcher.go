package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/clock"
)

// maxPageBytes caps how much of a response body is read. Forum pages are a
// few hundred KB at most; anything larger is not a page we want.
const maxPageBytes = 4 << 20

// HTTPFetcher fetches pages with a fixed user agent, a request timeout, and a
// small number of retries on transport errors.
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// FetcherConfig controls HTTP behavior for the fetcher.
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// NewHTTPFetcher builds an HTTPFetcher.
func NewHTTPFetcher(cfg FetcherConfig, clk clock.Clock, logger *zap.Logger) (*HTTPFetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0")
	}
	if clk == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		clock:      clk,
		logger:     logger,
	}, nil
}

// Fetch retrieves rawURL and returns the body. Transport errors are retried
// up to MaxRetries times; a non-2xx status is returned immediately since the
// server answered and a retry would just repeat the request.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("Retrying fetch",
				zap.String("url", rawURL), zap.Int("attempt", attempt))
			f.clock.Sleep(ctx, f.retryDelay)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
			}
		}
		body, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("new request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	TotalRequests.Inc()
	resp, err := f.client.Do(req)
	if err != nil {
		TotalRequestErrors.Inc()
		return nil, true, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("Failed to close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		TotalRequestErrors.Inc()
		return nil, false, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	return body, false, nil
}
