package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

// HTTPFetcher downloads and parses an RSS feed.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 20 * time.Second}}
}

// Fetch returns the feed's items in the order the feed serves them
// (newest first for the KP feed).
func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string) ([]models.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	var rf rssFeed
	if err := xml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]models.FeedItem, 0, len(rf.Channel.Item))
	for _, it := range rf.Channel.Item {
		items = append(items, models.FeedItem{
			Title:       it.Title,
			Link:        it.Link,
			PublishedAt: parsePubDate(it.PubDate),
		})
	}
	return items, nil
}

func parsePubDate(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC1123Z, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		return t
	}
	return time.Now()
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Link  string    `xml:"link"`
		Item  []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}
