// Package database persists scraped forum posts.
//
// The Provider interface decouples the orchestrator from the concrete store:
// production uses Postgres, tests and dry runs use NoOpProvider.
package database

import (
	"context"
	"time"

	"github.com/mxfeinberg/agtalk-scraper/internal/scraper"
)

// StoredPost is a post as read back from the store.
type StoredPost struct {
	scraper.Post
	ScrapedAt time.Time
}

// Stats summarizes the contents of the posts table.
type Stats struct {
	TotalPosts    int64
	UniqueAuthors int64
	UniqueThreads int64
	FirstScraped  time.Time
	LastScraped   time.Time
}

// Provider is the persistence contract. UpsertPost must be idempotent on the
// post URL: storing an existing URL rewrites the row and refreshes
// scraped_at, it never creates a duplicate.
type Provider interface {
	scraper.PostSink

	InitSchema(ctx context.Context) error
	PostExists(ctx context.Context, url string) (bool, error)
	PostCount(ctx context.Context) (int64, error)
	PostsByThread(ctx context.Context, threadID string) ([]StoredPost, error)
	SearchPosts(ctx context.Context, term string) ([]StoredPost, error)
	Stats(ctx context.Context) (Stats, error)
	Reset(ctx context.Context) error
	Close()
}

// NoOpProvider accepts everything and stores nothing. Used for dry runs and
// as a stand-in when no database is configured.
type NoOpProvider struct{}

// UpsertPost discards the post.
func (NoOpProvider) UpsertPost(context.Context, scraper.Post) error { return nil }

// InitSchema does nothing.
func (NoOpProvider) InitSchema(context.Context) error { return nil }

// PostExists always reports false.
func (NoOpProvider) PostExists(context.Context, string) (bool, error) { return false, nil }

// PostCount always reports zero.
func (NoOpProvider) PostCount(context.Context) (int64, error) { return 0, nil }

// PostsByThread returns nothing.
func (NoOpProvider) PostsByThread(context.Context, string) ([]StoredPost, error) { return nil, nil }

// SearchPosts returns nothing.
func (NoOpProvider) SearchPosts(context.Context, string) ([]StoredPost, error) { return nil, nil }

// Stats reports an empty store.
func (NoOpProvider) Stats(context.Context) (Stats, error) { return Stats{}, nil }

// Reset does nothing.
func (NoOpProvider) Reset(context.Context) error { return nil }

// Close does nothing.
func (NoOpProvider) Close() {}
