package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/parser"
	"github.com/mxfeinberg/agtalk-scraper/internal/scraper"
)

const testBase = "https://forum.test"

// fakeFetcher serves scripted bodies keyed by URL and records request order.
type fakeFetcher struct {
	pages    map[string]string
	requests []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.requests = append(f.requests, rawURL)
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("fetch %s: unexpected status 404", rawURL)
	}
	return []byte(body), nil
}

type fakeRobots struct {
	allow bool
}

func (r *fakeRobots) Allowed(context.Context, string) bool { return r.allow }

type fakeLimiter struct {
	waits int
}

func (l *fakeLimiter) Wait(context.Context) error {
	l.waits++
	return nil
}

// fakeSink records every upsert and tracks distinct URLs.
type fakeSink struct {
	upserts []scraper.Post
	failAll error
}

func (s *fakeSink) UpsertPost(_ context.Context, post scraper.Post) error {
	if s.failAll != nil {
		return s.failAll
	}
	s.upserts = append(s.upserts, post)
	return nil
}

func (s *fakeSink) distinctURLs() map[string]int {
	out := make(map[string]int)
	for _, p := range s.upserts {
		out[p.URL]++
	}
	return out
}

func listingURL(forumID, page int) string {
	return scraper.NewPlanner(testBase).ListingURL(forumID, page)
}

func threadURL(tid string, page int) string {
	return scraper.NewPlanner(testBase).ThreadURL(tid, page)
}

func listingHTML(tids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, tid := range tids {
		fmt.Fprintf(&b, `<a href="/forums/thread-view.asp?tid=%s&fid=3">Thread %s</a>`, tid, tid)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func threadHTML(title string, page int, hasNext bool, authors ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Viewing a thread - %s</title></head><body><table>", title)
	for i, author := range authors {
		fmt.Fprintf(&b, `<tr><td class="messageheader">
<a href="/forums/view-profile.asp?uid=%d">%s</a>
<span class="smalltext">Posted 4/12/2023 08:%02d</span>
</td></tr>`, i+1, author, i)
		fmt.Fprintf(&b, `<tr><td class="messagemiddle">avatar</td>
<td class="messagemiddle">Reply number %d from %s with plenty of content.</td></tr>`, i+1, author)
	}
	b.WriteString("</table>")
	if hasNext {
		fmt.Fprintf(&b, `<a href="/forums/thread-view.asp?tid=x&start=%d&displaytype=flat">next</a>`, scraper.PageOffset(page+1))
	}
	b.WriteString("</body></html>")
	return b.String()
}

type harness struct {
	fetcher *fakeFetcher
	robots  *fakeRobots
	limiter *fakeLimiter
	sink    *fakeSink
	scraper *scraper.Scraper
}

func newHarness(t *testing.T, cfg scraper.Config, pages map[string]string) *harness {
	t.Helper()
	h := &harness{
		fetcher: &fakeFetcher{pages: pages},
		robots:  &fakeRobots{allow: true},
		limiter: &fakeLimiter{},
		sink:    &fakeSink{},
	}
	extractor := parser.New(parser.Config{
		BaseURL:          testBase,
		MinContentLength: 10,
		MaxTitleLength:   200,
	}, zap.NewNop())
	s, err := scraper.New(cfg, scraper.NewPlanner(testBase), h.fetcher, extractor,
		h.robots, h.limiter, h.sink, zap.NewNop())
	require.NoError(t, err)
	h.scraper = s
	return h
}

func TestRoundRobinOrder(t *testing.T) {
	// Forums [3,7], three pages each, one single-page thread per listing page.
	pages := map[string]string{}
	var want []string
	for page := 1; page <= 3; page++ {
		for _, forumID := range []int{3, 7} {
			tid := fmt.Sprintf("%d%d", forumID, page)
			pages[listingURL(forumID, page)] = listingHTML(tid)
			pages[threadURL(tid, 1)] = threadHTML("Thread "+tid, 1, false, "Author")
		}
	}
	// Page-major order: both forums advance together, and each thread is
	// expanded immediately after its listing page.
	for page := 1; page <= 3; page++ {
		for _, forumID := range []int{3, 7} {
			tid := fmt.Sprintf("%d%d", forumID, page)
			want = append(want, listingURL(forumID, page), threadURL(tid, 1))
		}
	}

	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3, 7}, StartPage: 1, MaxPages: 3, MaxThreadPages: 5,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Equal(t, want, h.fetcher.requests)
	// Every request went through the rate limiter.
	assert.Equal(t, len(want), h.limiter.waits)
}

func TestDuplicateForumIDsCollapse(t *testing.T) {
	pages := map[string]string{
		listingURL(3, 1): listingHTML(),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3, 3, 3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 1,
	}, pages)

	_, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{listingURL(3, 1)}, h.fetcher.requests)
}

func TestEmptyListingTerminatesSection(t *testing.T) {
	pages := map[string]string{
		// Forum 3 is empty immediately; forum 7 lists one thread per page.
		listingURL(3, 1):    listingHTML(),
		listingURL(7, 1):    listingHTML("71"),
		listingURL(7, 2):    listingHTML("72"),
		threadURL("71", 1):  threadHTML("T71", 1, false, "A"),
		threadURL("72", 1):  threadHTML("T72", 1, false, "B"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3, 7}, StartPage: 1, MaxPages: 2, MaxThreadPages: 5,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{
		listingURL(3, 1),
		listingURL(7, 1), threadURL("71", 1),
		// Forum 3 never gets a page-2 request.
		listingURL(7, 2), threadURL("72", 1),
	}, h.fetcher.requests)
}

func TestPolicyDenialSkipsRun(t *testing.T) {
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3, 7}, StartPage: 1, MaxPages: 3, MaxThreadPages: 5,
	}, map[string]string{})
	h.robots.allow = false

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, h.fetcher.requests)
	assert.Equal(t, 2, h.scraper.Counters().PolicyDenials)
}

func TestThreadRevisitedAcrossListingPagesIsDeduplicated(t *testing.T) {
	// The same thread shows up on both listing pages; it is expanded once and
	// each post URL is upserted exactly once.
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100"),
		listingURL(3, 2):    listingHTML("100"),
		threadURL("100", 1): threadHTML("Sticky", 1, false, "A", "B"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 2, MaxThreadPages: 5,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{
		listingURL(3, 1), threadURL("100", 1), listingURL(3, 2),
	}, h.fetcher.requests)
	for url, n := range h.sink.distinctURLs() {
		assert.Equal(t, 1, n, "url %s upserted more than once", url)
	}
}

func TestMultiPageThreadContinuesNumbering(t *testing.T) {
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100"),
		threadURL("100", 1): threadHTML("Long", 1, true, "A", "B"),
		threadURL("100", 2): threadHTML("Long", 2, false, "C"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 5,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	var numbers []int
	for _, p := range h.sink.upserts {
		numbers = append(numbers, p.PostNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)
}

func TestMaxThreadPagesBound(t *testing.T) {
	// Every page claims a continuation; only MaxThreadPages are fetched.
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100"),
		threadURL("100", 1): threadHTML("Endless", 1, true, "A"),
		threadURL("100", 2): threadHTML("Endless", 2, true, "B"),
		threadURL("100", 3): threadHTML("Endless", 3, true, "C"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 2,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{
		listingURL(3, 1), threadURL("100", 1), threadURL("100", 2),
	}, h.fetcher.requests)
}

func TestFetchFailuresAreSoft(t *testing.T) {
	pages := map[string]string{
		// Listing page 1 missing entirely; page 2 lists a thread whose fetch
		// also fails. Neither aborts the run.
		listingURL(3, 2): listingHTML("100"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 2, MaxThreadPages: 5,
	}, pages)

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 2, h.scraper.Counters().FetchFailures)
}

func TestEndToEndSingleForum(t *testing.T) {
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100", "200"),
		threadURL("100", 1): threadHTML("First thread", 1, false, "A", "B"),
		threadURL("200", 1): threadHTML("Second thread", 1, false, "C", "D"),
	}
	cfg := scraper.Config{ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 5}

	h := newHarness(t, cfg, pages)
	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	byThread := make(map[string][]int)
	for _, p := range h.sink.upserts {
		byThread[p.ThreadID] = append(byThread[p.ThreadID], p.PostNumber)
	}
	assert.Equal(t, []int{1, 2}, byThread["100"])
	assert.Equal(t, []int{1, 2}, byThread["200"])

	// A second identical run re-derives the same URLs and upserts them again;
	// idempotence is the sink's contract, so the distinct set is unchanged.
	extractor := parser.New(parser.Config{BaseURL: testBase, MinContentLength: 10, MaxTitleLength: 200}, zap.NewNop())
	s2, err := scraper.New(cfg, scraper.NewPlanner(testBase), &fakeFetcher{pages: pages}, extractor,
		&fakeRobots{allow: true}, &fakeLimiter{}, h.sink, zap.NewNop())
	require.NoError(t, err)

	total2, err := s2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, total2)
	assert.Len(t, h.sink.upserts, 8)
	assert.Len(t, h.sink.distinctURLs(), 4)
}

func TestSinkConnectivityLossIsFatal(t *testing.T) {
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100"),
		threadURL("100", 1): threadHTML("Doomed", 1, false, "A"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 5,
	}, pages)
	h.sink.failAll = fmt.Errorf("dial tcp: refused: %w", scraper.ErrSinkUnavailable)

	_, err := h.scraper.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, scraper.ErrSinkUnavailable))
}

func TestRecordScopedSinkErrorsAreSoft(t *testing.T) {
	pages := map[string]string{
		listingURL(3, 1):    listingHTML("100"),
		threadURL("100", 1): threadHTML("Flaky", 1, false, "A"),
	}
	h := newHarness(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 5,
	}, pages)
	h.sink.failAll = errors.New("value too long for column")

	total, err := h.scraper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 1, h.scraper.Counters().SinkFailures)
}

func TestConfigValidation(t *testing.T) {
	cases := []scraper.Config{
		{StartPage: 1, MaxPages: 1, MaxThreadPages: 1},
		{ForumIDs: []int{0}, StartPage: 1, MaxPages: 1, MaxThreadPages: 1},
		{ForumIDs: []int{3}, StartPage: 0, MaxPages: 1, MaxThreadPages: 1},
		{ForumIDs: []int{3}, StartPage: 1, MaxPages: 0, MaxThreadPages: 1},
		{ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 0},
	}
	for i, cfg := range cases {
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
	assert.NoError(t, scraper.Config{
		ForumIDs: []int{3}, StartPage: 1, MaxPages: 1, MaxThreadPages: 1,
	}.Validate())
}
