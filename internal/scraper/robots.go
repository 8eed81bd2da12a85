package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsGate enforces the target site's robots.txt. The policy document is
// fetched at most once per run, on first use, and every subsequent check is
// answered from the cached ruleset.
//
// When the document cannot be fetched the gate either allows everything with
// a logged warning (the default, matching the site's permissive convention)
// or denies everything when failClosed is set.
type RobotsGate struct {
	client     *http.Client
	baseURL    string
	userAgent  string
	failClosed bool
	logger     *zap.Logger

	once  sync.Once
	group *robotstxt.Group
	delay time.Duration
	err   error
}

// NewRobotsGate builds a RobotsGate for the site rooted at baseURL.
func NewRobotsGate(baseURL, userAgent string, failClosed bool, logger *zap.Logger) *RobotsGate {
	return &RobotsGate{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:    baseURL,
		userAgent:  userAgent,
		failClosed: failClosed,
		logger:     logger,
	}
}

// Allowed reports whether the crawl policy permits fetching path.
func (g *RobotsGate) Allowed(ctx context.Context, path string) bool {
	g.once.Do(func() { g.load(ctx) })
	if g.err != nil {
		if g.failClosed {
			g.logger.Warn("robots.txt unavailable; denying by policy",
				zap.String("path", path), zap.Error(g.err))
			return false
		}
		g.logger.Warn("robots.txt unavailable; allowing with rate limiting",
			zap.String("path", path), zap.Error(g.err))
		return true
	}
	if g.group == nil {
		return true
	}
	allowed := g.group.Test(path)
	if !allowed {
		g.logger.Warn("robots.txt disallows path", zap.String("path", path))
	}
	return allowed
}

// CrawlDelay returns the delay robots.txt declares for our user agent, or
// zero when none is declared or the document was unreachable.
func (g *RobotsGate) CrawlDelay(ctx context.Context) time.Duration {
	g.once.Do(func() { g.load(ctx) })
	return g.delay
}

func (g *RobotsGate) load(ctx context.Context) {
	robotsURL := g.baseURL + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		g.err = fmt.Errorf("new robots request: %w", err)
		return
	}
	req.Header.Set("User-Agent", g.userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		g.err = fmt.Errorf("fetch robots: %w", err)
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		g.err = fmt.Errorf("read robots body: %w", err)
		return
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.err = fmt.Errorf("parse robots: %w", err)
		return
	}
	g.group = data.FindGroup(g.userAgent)
	if g.group != nil && g.group.CrawlDelay > 0 {
		g.delay = g.group.CrawlDelay
	}
	g.logger.Info("Loaded robots.txt", zap.String("url", robotsURL),
		zap.Duration("crawl_delay", g.delay))
}
