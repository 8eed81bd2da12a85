package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func robotsServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if hits != nil {
				hits.Add(1)
			}
			fmt.Fprint(w, body)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRobotsGateAllowsAndDenies(t *testing.T) {
	ctx := context.Background()
	srv := robotsServer(t, "User-agent: *\nDisallow: /admin/\n", nil)

	gate := NewRobotsGate(srv.URL, "agtalk-scraper", false, zap.NewNop())
	if !gate.Allowed(ctx, "/forums/") {
		t.Fatal("expected /forums/ to be allowed")
	}
	if gate.Allowed(ctx, "/admin/users") {
		t.Fatal("expected /admin/users to be denied")
	}
}

func TestRobotsGateFetchesOnce(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", &hits)

	gate := NewRobotsGate(srv.URL, "agtalk-scraper", false, zap.NewNop())
	for i := 0; i < 5; i++ {
		gate.Allowed(ctx, "/forums/")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("robots.txt fetched %d times, want 1", got)
	}
}

func TestRobotsGateUnreachableFailOpen(t *testing.T) {
	gate := NewRobotsGate("http://127.0.0.1:1", "agtalk-scraper", false, zap.NewNop())
	if !gate.Allowed(context.Background(), "/forums/") {
		t.Fatal("fail-open gate should allow when robots.txt is unreachable")
	}
}

func TestRobotsGateUnreachableFailClosed(t *testing.T) {
	gate := NewRobotsGate("http://127.0.0.1:1", "agtalk-scraper", true, zap.NewNop())
	if gate.Allowed(context.Background(), "/forums/") {
		t.Fatal("fail-closed gate should deny when robots.txt is unreachable")
	}
}

func TestRobotsGateCrawlDelay(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 5\nDisallow:\n", nil)

	gate := NewRobotsGate(srv.URL, "agtalk-scraper", false, zap.NewNop())
	if got := gate.CrawlDelay(context.Background()); got != 5*time.Second {
		t.Fatalf("crawl delay = %v, want 5s", got)
	}
}

func TestRobotsGateMissingDocumentAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	// A 404 means the site publishes no policy: everything is allowed.
	gate := NewRobotsGate(srv.URL, "agtalk-scraper", true, zap.NewNop())
	if !gate.Allowed(context.Background(), "/forums/") {
		t.Fatal("missing robots.txt should allow even in fail-closed mode")
	}
}
