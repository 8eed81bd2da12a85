package scraper

import (
	"context"
	"io"
)

// Fetcher retrieves a page body over HTTP. A non-2xx status or transport
// error is returned as an error; callers treat it as a soft per-page failure.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// RobotsPolicy answers whether the site's crawl policy permits a path.
type RobotsPolicy interface {
	Allowed(ctx context.Context, path string) bool
}

// RateLimiter enforces a minimum wall-clock interval between fetches.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// PostSink accepts extracted posts. Implementations must be idempotent on
// Post.URL: re-storing an existing URL rewrites the row, never duplicates it.
type PostSink interface {
	UpsertPost(ctx context.Context, post Post) error
}

// ThreadPage is one page of an extracted thread. HasNext reports whether the
// markup advertises a continuation page.
type ThreadPage struct {
	Posts   []Post
	HasNext bool
}

// Extractor turns fetched markup into thread refs (listing mode) or posts
// (thread mode). startNumber is the 1-based number of the first post on the
// page, so numbering continues across thread pages.
type Extractor interface {
	ExtractListing(r io.Reader, forumID int) ([]ThreadRef, error)
	ExtractThread(r io.Reader, ref ThreadRef, page int, startNumber int) (ThreadPage, error)
}
