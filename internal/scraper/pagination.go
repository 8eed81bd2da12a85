package scraper

import (
	"fmt"
	"strings"
)

// postsPerPage is the site's fixed page size. Both forum listings and thread
// views advance in steps of 50 via an offset parameter.
const postsPerPage = 50

// Planner maps (forum, page) and (thread, page) coordinates onto request URLs
// using the site's offset paging convention. All methods are pure.
type Planner struct {
	baseURL string
}

// NewPlanner creates a Planner rooted at baseURL (no trailing slash required).
func NewPlanner(baseURL string) Planner {
	return Planner{baseURL: strings.TrimRight(baseURL, "/")}
}

// PageOffset returns the offset parameter for page (1-based). Page 1 carries
// no offset parameter at all; this value is only meaningful for page >= 2.
func PageOffset(page int) int {
	return 1 + (page-1)*postsPerPage
}

// ListingURL builds the URL for one page of a forum's thread listing.
func (p Planner) ListingURL(forumID, page int) string {
	if page <= 1 {
		return fmt.Sprintf("%s/forums/forum-view.asp?fid=%d&displaytype=flat", p.baseURL, forumID)
	}
	return fmt.Sprintf("%s/forums/forum-view.asp?fid=%d&bookmark=%d&displaytype=flat", p.baseURL, forumID, PageOffset(page))
}

// ThreadURL builds the URL for one page of a thread in flat display. The
// parameter casing differs between the first and continuation pages; that is
// how the site itself links them.
func (p Planner) ThreadURL(threadID string, page int) string {
	if page <= 1 {
		return fmt.Sprintf("%s/forums/thread-view.asp?tid=%s&DisplayType=flat", p.baseURL, threadID)
	}
	return fmt.Sprintf("%s/forums/thread-view.asp?tid=%s&start=%d&displaytype=flat", p.baseURL, threadID, PageOffset(page))
}
