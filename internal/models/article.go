package models

import (
	"strings"
	"time"
)

// Article holds the fields extracted from a single news page. It lives for
// one publish invocation and is never persisted.
type Article struct {
	Title     string
	Lead      string
	Body      string
	ImageURLs []string
}

// CombinedText joins title, lead and body with blank lines. This is the
// text handed to the rewriter, and the fallback text when rewriting fails.
func (a Article) CombinedText() string {
	return strings.Join([]string{a.Title, a.Lead, a.Body}, "\n\n")
}

// PublishedPost is one row of the durable publication log. Rows are
// immutable once written.
type PublishedPost struct {
	ID          int64
	ChatID      int64
	PublishedAt time.Time
	URL         string
}

// FeedItem is a single entry from the polled RSS feed.
type FeedItem struct {
	Title       string
	Link        string
	PublishedAt time.Time
}
