package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KPKUBAN/kp-kuban-bot/internal/config"
	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

type publishCall struct {
	url    string
	chatID int64
}

type fakePublisher struct {
	calls  []publishCall
	failOn map[string]error
}

func (f *fakePublisher) Publish(ctx context.Context, url string, chatID int64) error {
	if err, ok := f.failOn[url]; ok {
		return err
	}
	f.calls = append(f.calls, publishCall{url: url, chatID: chatID})
	return nil
}

type fakeFeed struct {
	items []models.FeedItem
	err   error
}

func (f *fakeFeed) Fetch(ctx context.Context, feedURL string) ([]models.FeedItem, error) {
	return f.items, f.err
}

type fakePostLog struct {
	existing map[string]bool
	posts    []models.PublishedPost
	count    int
}

func (f *fakePostLog) ExistsURL(ctx context.Context, url string) (bool, error) {
	return f.existing[url], nil
}

func (f *fakePostLog) QueryWindow(ctx context.Context, since time.Time, limit int) ([]models.PublishedPost, error) {
	posts := f.posts
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (f *fakePostLog) CountWindow(ctx context.Context, since time.Time) (int, error) {
	return f.count, nil
}

type sentText struct {
	chatID int64
	text   string
}

type fakeTransport struct {
	texts   []sentText
	inline  []string
	textErr error
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, sentText{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) AnswerInline(ctx context.Context, queryID, title, query string) error {
	f.inline = append(f.inline, query)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		AdminChatID:       100,
		FeedURL:           "https://kuban.kp.ru/online/services/rss/",
		PollIntervalSec:   1800,
		PollFirstDelaySec: 10,
		ReportIntervalSec: 604800,
		FeedBatchLimit:    5,
		DigestLimit:       5,
	}
}

func newTestRelay(pub *fakePublisher, feed *fakeFeed, posts *fakePostLog, transport *fakeTransport) *Relay {
	r := New(testConfig(), pub, feed, posts, transport, slog.Default())
	r.now = func() time.Time { return time.Date(2026, time.March, 8, 12, 0, 0, 0, time.UTC) }
	return r
}

func feedItems(links ...string) []models.FeedItem {
	items := make([]models.FeedItem, 0, len(links))
	for _, l := range links {
		items = append(items, models.FeedItem{Title: l, Link: l, PublishedAt: time.Now()})
	}
	return items
}

func TestPollFeedEmptyStorePublishesAll(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	r := newTestRelay(pub, &fakeFeed{items: feedItems("a.html", "b.html")}, &fakePostLog{existing: map[string]bool{}}, &fakeTransport{})

	r.PollFeed(context.Background())

	if len(pub.calls) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.calls))
	}
	if pub.calls[0].url != "a.html" || pub.calls[1].url != "b.html" {
		t.Fatalf("unexpected publish order: %v", pub.calls)
	}
	for _, c := range pub.calls {
		if c.chatID != 100 {
			t.Fatalf("feed publishes must go to the admin chat, got %d", c.chatID)
		}
	}
}

func TestPollFeedSkipsAlreadyPublished(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	posts := &fakePostLog{existing: map[string]bool{"a.html": true}}
	r := newTestRelay(pub, &fakeFeed{items: feedItems("a.html", "b.html")}, posts, &fakeTransport{})

	r.PollFeed(context.Background())

	if len(pub.calls) != 1 {
		t.Fatalf("expected exactly 1 publish, got %d", len(pub.calls))
	}
	if pub.calls[0].url != "b.html" {
		t.Fatalf("expected only b.html published, got %v", pub.calls)
	}
}

func TestPollFeedTakesAtMostBatchLimit(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	feed := &fakeFeed{items: feedItems("1", "2", "3", "4", "5", "6", "7")}
	r := newTestRelay(pub, feed, &fakePostLog{existing: map[string]bool{}}, &fakeTransport{})

	r.PollFeed(context.Background())

	if len(pub.calls) != 5 {
		t.Fatalf("expected 5 publishes, got %d", len(pub.calls))
	}
	if pub.calls[0].url != "1" || pub.calls[4].url != "5" {
		t.Fatalf("expected the first five entries, got %v", pub.calls)
	}
}

func TestPollFeedIsolatesEntryFailures(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failOn: map[string]error{"a.html": errors.New("status 503")}}
	r := newTestRelay(pub, &fakeFeed{items: feedItems("a.html", "b.html")}, &fakePostLog{existing: map[string]bool{}}, &fakeTransport{})

	r.PollFeed(context.Background())

	if len(pub.calls) != 1 || pub.calls[0].url != "b.html" {
		t.Fatalf("expected b.html published despite a.html failure, got %v", pub.calls)
	}
}

func TestSendReport(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	r := newTestRelay(&fakePublisher{}, &fakeFeed{}, &fakePostLog{count: 17}, transport)

	r.SendReport(context.Background())

	if len(transport.texts) != 1 {
		t.Fatalf("expected 1 report message, got %d", len(transport.texts))
	}
	if transport.texts[0].chatID != 100 {
		t.Fatalf("report must go to the admin chat, got %d", transport.texts[0].chatID)
	}
	want := "За прошлую неделю бот опубликовал 17 постов."
	if transport.texts[0].text != want {
		t.Fatalf("unexpected report text: %q", transport.texts[0].text)
	}
}

func TestSendDigestBound(t *testing.T) {
	t.Parallel()

	posts := &fakePostLog{}
	for i := 0; i < 9; i++ {
		posts.posts = append(posts.posts, models.PublishedPost{URL: fmt.Sprintf("https://kuban.kp.ru/%d.html", i)})
	}
	transport := &fakeTransport{}
	r := newTestRelay(&fakePublisher{}, &fakeFeed{}, posts, transport)

	if err := r.SendDigest(context.Background(), 55); err != nil {
		t.Fatalf("SendDigest error: %v", err)
	}

	if len(transport.texts) != 1 {
		t.Fatalf("expected 1 digest message, got %d", len(transport.texts))
	}
	got := transport.texts[0]
	if got.chatID != 55 {
		t.Fatalf("digest must reply to the requesting chat, got %d", got.chatID)
	}
	want := "Топ-5 постов за неделю:" +
		"\n- https://kuban.kp.ru/0.html" +
		"\n- https://kuban.kp.ru/1.html" +
		"\n- https://kuban.kp.ru/2.html" +
		"\n- https://kuban.kp.ru/3.html" +
		"\n- https://kuban.kp.ru/4.html"
	if got.text != want {
		t.Fatalf("unexpected digest:\n got %q\nwant %q", got.text, want)
	}
}

func TestChosenInlineGoesToSelectingUser(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	r := newTestRelay(pub, &fakeFeed{}, &fakePostLog{}, &fakeTransport{})

	r.HandleChosenInline(context.Background(), 9001, "https://kuban.kp.ru/x.html")

	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	if pub.calls[0].chatID != 9001 {
		t.Fatalf("expected destination 9001, got %d", pub.calls[0].chatID)
	}
}

func TestHandleLinkPublishesToOriginChat(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	r := newTestRelay(pub, &fakeFeed{}, &fakePostLog{}, &fakeTransport{})

	r.HandleLink(context.Background(), 321, "https://kuban.kp.ru/y.html")

	if len(pub.calls) != 1 || pub.calls[0].chatID != 321 {
		t.Fatalf("expected publish to chat 321, got %v", pub.calls)
	}
}

func TestExtractURLWithCyrillicPrefix(t *testing.T) {
	t.Parallel()

	prefix := "Глянь: "
	url := "https://kuban.kp.ru/online/news/123/"
	text := prefix + url

	msg := &tgbotapi.Message{
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{
				Type:   "url",
				Offset: len(utf16.Encode([]rune(prefix))),
				Length: len(utf16.Encode([]rune(url))),
			},
		},
	}

	if got := extractURL(msg); got != url {
		t.Fatalf("extractURL = %q, want %q", got, url)
	}
}

func TestExtractURLTextLink(t *testing.T) {
	t.Parallel()

	msg := &tgbotapi.Message{
		Text: "статья",
		Entities: []tgbotapi.MessageEntity{
			{Type: "text_link", URL: "https://kuban.kp.ru/z.html", Offset: 0, Length: 6},
		},
	}

	if got := extractURL(msg); got != "https://kuban.kp.ru/z.html" {
		t.Fatalf("extractURL = %q", got)
	}
}

func TestExtractURLNoEntities(t *testing.T) {
	t.Parallel()

	if got := extractURL(&tgbotapi.Message{Text: "привет"}); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
}

func TestHandleInlineQueryIgnoresNonURL(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	r := newTestRelay(&fakePublisher{}, &fakeFeed{}, &fakePostLog{}, transport)

	r.handleInlineQuery(context.Background(), &tgbotapi.InlineQuery{ID: "1", Query: "просто текст"})
	if len(transport.inline) != 0 {
		t.Fatalf("expected no inline answer, got %v", transport.inline)
	}

	r.handleInlineQuery(context.Background(), &tgbotapi.InlineQuery{ID: "2", Query: "https://kuban.kp.ru/a.html"})
	if len(transport.inline) != 1 || transport.inline[0] != "https://kuban.kp.ru/a.html" {
		t.Fatalf("expected inline answer for url query, got %v", transport.inline)
	}
}
