package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

// Client fetches article pages from kuban.kp.ru and extracts the fields
// needed to build a post.
type Client struct {
	client *http.Client
}

// NewClient wires an HTTP client; a nil client gets a 30s timeout default.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{client: client}
}

// FetchArticle downloads the page and extracts its fields. A transport
// failure or non-success status is returned as an error; a page that
// merely lacks the expected markup degrades to empty fields.
func (c *Client) FetchArticle(ctx context.Context, pageURL string) (models.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return models.Article{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "kp-kuban-bot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Article{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Article{}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	return ParseArticle(resp.Body, pageURL)
}

// ParseArticle extracts title, lead, body paragraphs and image URLs from
// article markup. Missing selectors yield empty fields, never an error.
func ParseArticle(r io.Reader, pageURL string) (models.Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Article{}, fmt.Errorf("parse document: %w", err)
	}

	article := models.Article{
		Title: strings.TrimSpace(doc.Find("h1.article__title").First().Text()),
		Lead:  strings.TrimSpace(doc.Find("div.article__lead").First().Text()),
	}

	text := doc.Find("div.article__text").First()

	var paragraphs []string
	text.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	article.Body = strings.Join(paragraphs, "\n\n")

	base, baseErr := url.Parse(pageURL)
	text.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			return
		}
		if baseErr == nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		article.ImageURLs = append(article.ImageURLs, src)
	})

	return article, nil
}
