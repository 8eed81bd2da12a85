// Package scraper defines core types shared across subsystems and implements
// the round-robin crawl orchestrator.
package scraper

import "fmt"

// ThreadRef points at a discussion thread discovered on a forum listing page.
// It is transient: once the thread's posts are extracted the ref is discarded.
type ThreadRef struct {
	ThreadID string
	URL      string
	ForumID  int
}

// Post is the unit of persistence. Its URL is globally unique: the canonical
// thread URL plus a "#postN" fragment for the post's 1-based position.
type Post struct {
	URL        string
	Title      string
	Author     string
	PostDate   string
	Content    string
	ThreadID   string
	PostNumber int
	ForumID    int
}

// Validate checks the fields the persistence layer requires.
func (p Post) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("post url is required")
	}
	if p.Title == "" {
		return fmt.Errorf("post title is required")
	}
	if p.Content == "" {
		return fmt.Errorf("post content is required")
	}
	if p.PostNumber < 1 {
		return fmt.Errorf("post number must be >= 1, got %d", p.PostNumber)
	}
	return nil
}

// Counters tracks per-run outcomes. All page- and record-scoped failures are
// absorbed into these counters; the run result is just the forwarded total.
type Counters struct {
	ListingPagesFetched int
	ThreadPagesFetched  int
	FetchFailures       int
	ParseSkips          int
	PolicyDenials       int
	DuplicatesSkipped   int
	PostsForwarded      int
	SinkFailures        int
}
