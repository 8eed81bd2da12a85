package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks HTTP requests dispatched by the scraper.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// TotalRequestErrors tracks requests that resulted in an error.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_request_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalPostsScraped tracks posts forwarded to the persistence sink.
	TotalPostsScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_posts_scraped_total",
		Help: "The total number of posts forwarded to the database.",
	})
	// TotalPostsSkipped tracks posts dropped during extraction.
	TotalPostsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_posts_skipped_total",
		Help: "The total number of posts skipped during extraction.",
	})
	// TotalPolicyDenials tracks sections skipped because of robots.txt.
	TotalPolicyDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_policy_denials_total",
		Help: "The total number of forum sections skipped by crawl policy.",
	})
	// TotalDuplicates tracks posts suppressed by in-run deduplication.
	TotalDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_duplicate_posts_total",
		Help: "The total number of posts suppressed as in-run duplicates.",
	})
)
