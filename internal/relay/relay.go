package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/KPKUBAN/kp-kuban-bot/internal/config"
	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

const (
	greeting         = "Привет! Отправь ссылку на статью, и я подготовлю пост в стиле КП-Кубань."
	digestHeader     = "Топ-5 постов за неделю:"
	inlineTitle      = "Сгенерировать пост"
	reportWindow     = 7 * 24 * time.Hour
	reportTextFormat = "За прошлую неделю бот опубликовал %d постов."
)

// Publisher runs the publish pipeline for one URL.
type Publisher interface {
	Publish(ctx context.Context, url string, chatID int64) error
}

// FeedFetcher returns the feed's entries, newest first.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]models.FeedItem, error)
}

// PostLog is the read side of the publication log.
type PostLog interface {
	ExistsURL(ctx context.Context, url string) (bool, error)
	QueryWindow(ctx context.Context, since time.Time, limit int) ([]models.PublishedPost, error)
	CountWindow(ctx context.Context, since time.Time) (int, error)
}

// Transport is the outbound messaging surface the relay itself uses.
// Publishing goes through the Publisher, which has its own transport view.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerInline(ctx context.Context, queryID, title, query string) error
}

// Relay routes inbound Telegram updates and drives the periodic feed-poll
// and report jobs. Each update is handled on its own goroutine; publish
// calls may overlap freely.
type Relay struct {
	cfg       config.Config
	publisher Publisher
	feed      FeedFetcher
	posts     PostLog
	transport Transport
	logger    *slog.Logger
	now       func() time.Time

	// Serializes poller runs so two overlapping polls cannot both pass the
	// dedup check for the same URL. A poll overlapping a direct publish of
	// the same URL remains a known, accepted race.
	pollMu sync.Mutex
}

func New(cfg config.Config, publisher Publisher, feed FeedFetcher, posts PostLog, transport Transport, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		cfg:       cfg,
		publisher: publisher,
		feed:      feed,
		posts:     posts,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// Run consumes updates and runs the periodic jobs until ctx is done.
func (r *Relay) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	go r.pollLoop(ctx)
	go r.reportLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go r.handleUpdate(ctx, update)
		}
	}
}

func (r *Relay) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	case update.InlineQuery != nil:
		r.handleInlineQuery(ctx, update.InlineQuery)
	case update.ChosenInlineResult != nil:
		r.HandleChosenInline(ctx, update.ChosenInlineResult.From.ID, update.ChosenInlineResult.Query)
	}
}

func (r *Relay) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if err := r.transport.SendText(ctx, chatID, greeting); err != nil {
			r.logger.Error("greeting failed", "chat_id", chatID, "error", err)
		}
		return
	case "digest":
		if err := r.SendDigest(ctx, chatID); err != nil {
			r.logger.Error("digest failed", "chat_id", chatID, "error", err)
		}
		return
	}

	url := extractURL(msg)
	if url == "" {
		return
	}
	r.HandleLink(ctx, chatID, url)
}

// HandleLink publishes a directly submitted URL back to the chat it
// arrived on.
func (r *Relay) HandleLink(ctx context.Context, chatID int64, url string) {
	if err := r.publisher.Publish(ctx, url, chatID); err != nil {
		r.logger.Error("direct publish failed", "url", url, "chat_id", chatID, "error", err)
	}
}

// HandleChosenInline publishes the queried URL to the user who picked the
// inline suggestion, never to the admin fallback.
func (r *Relay) HandleChosenInline(ctx context.Context, userID int64, url string) {
	if err := r.publisher.Publish(ctx, url, userID); err != nil {
		r.logger.Error("inline publish failed", "url", url, "user_id", userID, "error", err)
	}
}

func (r *Relay) handleInlineQuery(ctx context.Context, q *tgbotapi.InlineQuery) {
	if !strings.HasPrefix(q.Query, "http") {
		return
	}
	if err := r.transport.AnswerInline(ctx, q.ID, inlineTitle, q.Query); err != nil {
		r.logger.Error("inline answer failed", "error", err)
	}
}

func (r *Relay) pollLoop(ctx context.Context) {
	first := time.NewTimer(r.cfg.PollFirstDelay())
	defer first.Stop()

	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	r.PollFeed(ctx)

	ticker := time.NewTicker(r.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PollFeed(ctx)
		}
	}
}

// PollFeed fetches the configured feed and publishes its newest entries
// that have not been published before, each to the admin chat. Entries are
// processed independently so one bad URL cannot block the batch.
func (r *Relay) PollFeed(ctx context.Context) {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	items, err := r.feed.Fetch(ctx, r.cfg.FeedURL)
	if err != nil {
		r.logger.Error("feed fetch failed", "feed", r.cfg.FeedURL, "error", err)
		return
	}

	if len(items) > r.cfg.FeedBatchLimit {
		items = items[:r.cfg.FeedBatchLimit]
	}

	for _, item := range items {
		exists, err := r.posts.ExistsURL(ctx, item.Link)
		if err != nil {
			r.logger.Error("dedup check failed", "url", item.Link, "error", err)
			continue
		}
		if exists {
			continue
		}
		if err := r.publisher.Publish(ctx, item.Link, r.cfg.AdminChatID); err != nil {
			r.logger.Error("feed publish failed", "url", item.Link, "error", err)
		}
	}
}

func (r *Relay) reportLoop(ctx context.Context) {
	r.SendReport(ctx)

	ticker := time.NewTicker(r.cfg.ReportInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SendReport(ctx)
		}
	}
}

// SendReport sends the trailing-week publication count to the admin chat.
func (r *Relay) SendReport(ctx context.Context) {
	count, err := r.posts.CountWindow(ctx, r.now().Add(-reportWindow))
	if err != nil {
		r.logger.Error("report count failed", "error", err)
		return
	}

	text := fmt.Sprintf(reportTextFormat, count)
	if err := r.transport.SendText(ctx, r.cfg.AdminChatID, text); err != nil {
		r.logger.Error("report delivery failed", "error", err)
	}
}

// SendDigest replies with up to the configured number of the newest posts
// from the trailing week, as a bulleted URL list.
func (r *Relay) SendDigest(ctx context.Context, chatID int64) error {
	posts, err := r.posts.QueryWindow(ctx, r.now().Add(-reportWindow), r.cfg.DigestLimit)
	if err != nil {
		return fmt.Errorf("query digest window: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(digestHeader)
	for _, p := range posts {
		sb.WriteString("\n- ")
		sb.WriteString(p.URL)
	}

	return r.transport.SendText(ctx, chatID, sb.String())
}

// extractURL pulls the first URL out of a message's entities. Entity
// offsets count UTF-16 code units, so the text is sliced in that encoding.
func extractURL(msg *tgbotapi.Message) string {
	for _, entity := range msg.Entities {
		switch entity.Type {
		case "text_link":
			if entity.URL != "" {
				return entity.URL
			}
		case "url":
			encoded := utf16.Encode([]rune(msg.Text))
			if entity.Offset < 0 || entity.Offset+entity.Length > len(encoded) {
				continue
			}
			return string(utf16.Decode(encoded[entity.Offset : entity.Offset+entity.Length]))
		}
	}
	return ""
}
