package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageOffset(t *testing.T) {
	cases := []struct {
		page int
		want int
	}{
		{page: 1, want: 1},
		{page: 2, want: 51},
		{page: 3, want: 101},
		{page: 51, want: 2501},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PageOffset(tc.page), "page %d", tc.page)
	}
}

func TestListingURL(t *testing.T) {
	p := NewPlanner("https://talk.newagtalk.com/")

	assert.Equal(t,
		"https://talk.newagtalk.com/forums/forum-view.asp?fid=3&displaytype=flat",
		p.ListingURL(3, 1))
	assert.Equal(t,
		"https://talk.newagtalk.com/forums/forum-view.asp?fid=3&bookmark=51&displaytype=flat",
		p.ListingURL(3, 2))
	assert.Equal(t,
		"https://talk.newagtalk.com/forums/forum-view.asp?fid=7&bookmark=2501&displaytype=flat",
		p.ListingURL(7, 51))
}

func TestThreadURL(t *testing.T) {
	p := NewPlanner("https://talk.newagtalk.com")

	assert.Equal(t,
		"https://talk.newagtalk.com/forums/thread-view.asp?tid=12345&DisplayType=flat",
		p.ThreadURL("12345", 1))
	assert.Equal(t,
		"https://talk.newagtalk.com/forums/thread-view.asp?tid=12345&start=51&displaytype=flat",
		p.ThreadURL("12345", 2))
}
