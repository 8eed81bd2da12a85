// Package parser extracts thread references and posts from the forum's HTML.
//
// All knowledge of the site's markup quirks lives here, behind the two
// extraction operations; the orchestrator and planner never see HTML.
package parser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/scraper"
)

const threadTitlePrefix = "Viewing a thread - "

var (
	tidPattern      = regexp.MustCompile(`tid=(\d+)`)
	startPattern    = regexp.MustCompile(`start=(\d+)`)
	postedPattern   = regexp.MustCompile(`Posted\s+(\d{1,2}/\d{1,2}/\d{4}\s+\d{1,2}:\d{2})`)
	spacePattern    = regexp.MustCompile(`\s+`)
	artifactPattern = regexp.MustCompile(`(?i)(Quote:|Reply:|Originally posted by:)`)
	punctPattern    = regexp.MustCompile(`([.!?]){3,}`)
	bareURLPattern  = regexp.MustCompile(`https?://[^\s]+`)
)

// dateStrategy names one place in a post's markup where the site may render
// the timestamp. Strategies are tried in order; the first candidate matching
// the "Posted MM/DD/YYYY HH:MM" pattern wins. The site renders timestamps
// inconsistently between original posts and replies, so losing any of these
// locations silently drops timestamp coverage.
type dateStrategy struct {
	name string
	find func(header *goquery.Selection) *goquery.Selection
}

var dateStrategies = []dateStrategy{
	{name: "header", find: func(h *goquery.Selection) *goquery.Selection {
		return h.Find("span.smalltext")
	}},
	{name: "header_row", find: func(h *goquery.Selection) *goquery.Selection {
		return h.Closest("tr").Find("span.smalltext")
	}},
	{name: "next_row", find: func(h *goquery.Selection) *goquery.Selection {
		return h.Closest("tr").Next().Find("span.smalltext")
	}},
}

// Config bounds what the extractor accepts.
type Config struct {
	BaseURL          string
	MinContentLength int
	MaxTitleLength   int
}

// Extractor implements scraper.Extractor for the AgTalk markup.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, logger: logger}
}

// ExtractListing scans a forum listing page for thread links. Order follows
// the page; each thread appears once, first occurrence wins. An empty result
// means the listing has no more threads, which is not an error.
func (e *Extractor) ExtractListing(r io.Reader, forumID int) ([]scraper.ThreadRef, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var refs []scraper.ThreadRef
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, "thread-view.asp") {
			return
		}
		m := tidPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		tid := m[1]
		if _, dup := seen[tid]; dup {
			return
		}
		seen[tid] = struct{}{}
		refs = append(refs, scraper.ThreadRef{
			ThreadID: tid,
			URL:      fmt.Sprintf("%s/forums/thread-view.asp?tid=%s&DisplayType=flat", e.cfg.BaseURL, tid),
			ForumID:  forumID,
		})
	})
	return refs, nil
}

// ExtractThread pulls every post from one page of a thread in flat display.
// Post numbering starts at startNumber and continues across pages. Posts with
// no usable content are skipped individually; the rest of the page is still
// extracted.
func (e *Extractor) ExtractThread(r io.Reader, ref scraper.ThreadRef, page, startNumber int) (scraper.ThreadPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return scraper.ThreadPage{}, fmt.Errorf("parse thread page: %w", err)
	}

	title := e.threadTitle(doc)
	var posts []scraper.Post
	doc.Find("td.messageheader").Each(func(_ int, header *goquery.Selection) {
		// Navigation bars reuse the messageheader class; a real post header
		// always links the author's profile.
		authorLink := header.Find(`a[href*="view-profile.asp"]`).First()
		if authorLink.Length() == 0 {
			return
		}

		content := e.postContent(header)
		if content == "" {
			scraper.TotalPostsSkipped.Inc()
			e.logger.Warn("Skipping post with no usable content",
				zap.String("thread_id", ref.ThreadID),
				zap.String("title", title))
			return
		}

		number := startNumber + len(posts)
		posts = append(posts, scraper.Post{
			URL:        fmt.Sprintf("%s#post%d", ref.URL, number),
			Title:      title,
			Author:     cleanText(authorLink.Text()),
			PostDate:   e.postDate(header),
			Content:    fmt.Sprintf("Subject: %s, Post: %s", title, content),
			ThreadID:   ref.ThreadID,
			PostNumber: number,
			ForumID:    ref.ForumID,
		})
	})

	return scraper.ThreadPage{
		Posts:   posts,
		HasNext: e.hasNextPage(doc, page),
	}, nil
}

// threadTitle reads the page title, dropping the site's viewing prefix.
func (e *Extractor) threadTitle(doc *goquery.Document) string {
	title := cleanText(doc.Find("title").First().Text())
	title = strings.TrimPrefix(title, threadTitlePrefix)
	if e.cfg.MaxTitleLength > 0 && len(title) > e.cfg.MaxTitleLength {
		title = title[:e.cfg.MaxTitleLength]
	}
	if title == "" {
		title = "[No subject]"
	}
	return title
}

// postContent locates the body cell for the post under header. In flat
// display the content sits in the second messagemiddle cell of the row that
// follows the header's row.
func (e *Extractor) postContent(header *goquery.Selection) string {
	cells := header.Closest("tr").Next().Find("td.messagemiddle")
	if cells.Length() < 2 {
		return ""
	}
	content := cleanText(cells.Eq(1).Text())
	if len(content) < e.cfg.MinContentLength {
		return ""
	}
	return content
}

// postDate tries each timestamp location in priority order.
func (e *Extractor) postDate(header *goquery.Selection) string {
	for _, strategy := range dateStrategies {
		date := ""
		strategy.find(header).EachWithBreak(func(_ int, span *goquery.Selection) bool {
			if m := postedPattern.FindStringSubmatch(cleanText(span.Text())); m != nil {
				date = m[1]
				return false
			}
			return true
		})
		if date != "" {
			return date
		}
	}
	return ""
}

// hasNextPage reports whether any pagination link points past the current
// page's window.
func (e *Extractor) hasNextPage(doc *goquery.Document, page int) bool {
	nextOffset := scraper.PageOffset(page + 1)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		m := startPattern.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		offset, err := strconv.Atoi(m[1])
		if err == nil && offset >= nextOffset {
			found = true
			return false
		}
		return true
	})
	return found
}

// cleanText normalizes whitespace and strips forum artifacts, punctuation
// runs, and bare URLs from extracted text.
func cleanText(text string) string {
	text = artifactPattern.ReplaceAllString(text, "")
	text = punctPattern.ReplaceAllString(text, "$1$1$1")
	text = bareURLPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
