package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// ErrSinkUnavailable marks sink errors caused by lost connectivity. The sink
// implementation wraps qualifying errors with this sentinel; any sink error
// not carrying it is treated as scoped to the single record.
var ErrSinkUnavailable = errors.New("persistence sink unavailable")

// Config bounds a crawl run. Validation failures here are the only errors
// raised before any network activity.
type Config struct {
	// ForumIDs lists the sections to crawl, in round-robin order. Duplicates
	// are ignored, first occurrence wins.
	ForumIDs []int
	// StartPage is the first listing page per forum (1-based).
	StartPage int
	// MaxPages is how many listing pages to process per forum.
	MaxPages int
	// MaxThreadPages caps continuation pages followed within one thread.
	MaxThreadPages int
}

// Validate enforces required values.
func (c Config) Validate() error {
	if len(c.ForumIDs) == 0 {
		return fmt.Errorf("at least one forum id is required")
	}
	for _, id := range c.ForumIDs {
		if id < 1 {
			return fmt.Errorf("forum id must be positive, got %d", id)
		}
	}
	if c.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1, got %d", c.StartPage)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be >= 1, got %d", c.MaxPages)
	}
	if c.MaxThreadPages < 1 {
		return fmt.Errorf("max thread pages must be >= 1, got %d", c.MaxThreadPages)
	}
	return nil
}

// sectionState tracks a forum across round-robin iterations.
type sectionState int

const (
	sectionActive sectionState = iota
	// sectionExhausted: a listing page came back with zero threads.
	sectionExhausted
	// sectionDenied: robots.txt refused the listing path.
	sectionDenied
)

// Scraper drives the end-to-end crawl: policy gating, pacing, pagination,
// extraction, dedup, and forwarding to the sink. It is single-threaded; the
// rate limiter serializes every outbound request.
type Scraper struct {
	cfg       Config
	planner   Planner
	fetcher   Fetcher
	extractor Extractor
	robots    RobotsPolicy
	limiter   RateLimiter
	sink      PostSink
	logger    *zap.Logger

	// In-run dedup state, append-only for the lifetime of the run.
	seenPosts   map[string]struct{}
	seenThreads map[string]struct{}
	counters    Counters
}

// New wires a Scraper from its collaborators.
func New(cfg Config, planner Planner, fetcher Fetcher, extractor Extractor,
	robots RobotsPolicy, limiter RateLimiter, sink PostSink, logger *zap.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scraper config: %w", err)
	}
	if fetcher == nil || extractor == nil || robots == nil || limiter == nil || sink == nil {
		return nil, fmt.Errorf("all scraper collaborators are required")
	}
	return &Scraper{
		cfg:         cfg,
		planner:     planner,
		fetcher:     fetcher,
		extractor:   extractor,
		robots:      robots,
		limiter:     limiter,
		sink:        sink,
		logger:      logger,
		seenPosts:   make(map[string]struct{}),
		seenThreads: make(map[string]struct{}),
	}, nil
}

// Counters returns the run's accumulated counters.
func (s *Scraper) Counters() Counters {
	return s.counters
}

// Run crawls all configured forums round-robin: one listing page from each
// forum in turn, expanding every discovered thread immediately, before any
// forum advances to its next page. Crawling a single forum takes exactly the
// same path. Returns the total number of posts forwarded to the sink.
//
// Page- and record-scoped failures are absorbed into counters and logs; the
// only fatal errors are context cancellation and sink connectivity loss.
func (s *Scraper) Run(ctx context.Context) (int, error) {
	forums := dedupeForums(s.cfg.ForumIDs)
	states := make(map[int]sectionState, len(forums))

	s.logger.Info("Starting crawl",
		zap.Ints("forums", forums),
		zap.Int("start_page", s.cfg.StartPage),
		zap.Int("max_pages", s.cfg.MaxPages))

	for page := s.cfg.StartPage; page < s.cfg.StartPage+s.cfg.MaxPages; page++ {
		for _, forumID := range forums {
			if states[forumID] != sectionActive {
				continue
			}
			if err := s.crawlListing(ctx, forumID, page, states); err != nil {
				return s.counters.PostsForwarded, err
			}
		}
	}

	s.logger.Info("Crawl finished",
		zap.Int("posts_forwarded", s.counters.PostsForwarded),
		zap.Int("listing_pages", s.counters.ListingPagesFetched),
		zap.Int("thread_pages", s.counters.ThreadPagesFetched),
		zap.Int("fetch_failures", s.counters.FetchFailures),
		zap.Int("parse_skips", s.counters.ParseSkips),
		zap.Int("policy_denials", s.counters.PolicyDenials),
		zap.Int("duplicates", s.counters.DuplicatesSkipped),
		zap.Int("sink_failures", s.counters.SinkFailures))
	return s.counters.PostsForwarded, nil
}

// crawlListing processes one listing page of one forum and expands every
// thread it references. Non-fatal problems mark the section or are logged and
// absorbed; the returned error is fatal to the run.
func (s *Scraper) crawlListing(ctx context.Context, forumID, page int, states map[int]sectionState) error {
	listingURL := s.planner.ListingURL(forumID, page)

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if !s.robots.Allowed(ctx, urlPath(listingURL)) {
		states[forumID] = sectionDenied
		s.counters.PolicyDenials++
		TotalPolicyDenials.Inc()
		s.logger.Warn("Forum denied by crawl policy; skipping for this run",
			zap.Int("forum_id", forumID), zap.String("url", listingURL))
		return nil
	}

	body, err := s.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		s.counters.FetchFailures++
		s.logger.Warn("Listing page fetch failed",
			zap.Int("forum_id", forumID), zap.Int("page", page), zap.Error(err))
		return nil
	}
	s.counters.ListingPagesFetched++

	refs, err := s.extractor.ExtractListing(bytes.NewReader(body), forumID)
	if err != nil {
		s.counters.ParseSkips++
		s.logger.Warn("Listing page parse failed",
			zap.Int("forum_id", forumID), zap.Int("page", page), zap.Error(err))
		return nil
	}
	if len(refs) == 0 {
		states[forumID] = sectionExhausted
		s.logger.Info("Forum listing exhausted",
			zap.Int("forum_id", forumID), zap.Int("page", page))
		return nil
	}

	s.logger.Debug("Listing page extracted",
		zap.Int("forum_id", forumID), zap.Int("page", page), zap.Int("threads", len(refs)))
	for _, ref := range refs {
		if err := s.expandThread(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// expandThread fetches a thread page by page, forwarding deduplicated posts
// to the sink. Post numbering continues across pages. Threads already
// expanded this run are skipped without refetching.
func (s *Scraper) expandThread(ctx context.Context, ref ThreadRef) error {
	if _, done := s.seenThreads[ref.URL]; done {
		s.logger.Debug("Thread already expanded this run",
			zap.String("thread_id", ref.ThreadID))
		return nil
	}
	s.seenThreads[ref.URL] = struct{}{}

	nextNumber := 1
	for page := 1; page <= s.cfg.MaxThreadPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		pageURL := s.planner.ThreadURL(ref.ThreadID, page)
		body, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			s.counters.FetchFailures++
			s.logger.Warn("Thread page fetch failed",
				zap.String("thread_id", ref.ThreadID), zap.Int("page", page), zap.Error(err))
			return nil
		}
		s.counters.ThreadPagesFetched++

		threadPage, err := s.extractor.ExtractThread(bytes.NewReader(body), ref, page, nextNumber)
		if err != nil {
			s.counters.ParseSkips++
			s.logger.Warn("Thread page parse failed",
				zap.String("thread_id", ref.ThreadID), zap.Int("page", page), zap.Error(err))
			return nil
		}
		if len(threadPage.Posts) == 0 {
			s.logger.Debug("Thread page yielded no posts",
				zap.String("thread_id", ref.ThreadID), zap.Int("page", page))
			return nil
		}

		if err := s.forward(ctx, threadPage.Posts); err != nil {
			return err
		}
		nextNumber += len(threadPage.Posts)

		if !threadPage.HasNext {
			return nil
		}
	}
	s.logger.Debug("Thread page bound reached",
		zap.String("thread_id", ref.ThreadID), zap.Int("max_pages", s.cfg.MaxThreadPages))
	return nil
}

// forward hands posts to the sink, suppressing URLs already seen this run.
// A sink error is fatal only when it carries ErrSinkUnavailable.
func (s *Scraper) forward(ctx context.Context, posts []Post) error {
	for _, post := range posts {
		if _, dup := s.seenPosts[post.URL]; dup {
			s.counters.DuplicatesSkipped++
			TotalDuplicates.Inc()
			continue
		}
		s.seenPosts[post.URL] = struct{}{}

		if err := s.sink.UpsertPost(ctx, post); err != nil {
			if errors.Is(err, ErrSinkUnavailable) {
				return fmt.Errorf("store post %s: %w", post.URL, err)
			}
			s.counters.SinkFailures++
			s.logger.Error("Failed to store post",
				zap.String("url", post.URL), zap.Error(err))
			continue
		}
		s.counters.PostsForwarded++
		TotalPostsScraped.Inc()
	}
	return nil
}

// dedupeForums drops repeated forum ids, keeping first-occurrence order.
func dedupeForums(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// urlPath reduces a full URL to the path robots rules are matched against.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
