package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

// ArticleSource fetches a page and extracts its article fields.
type ArticleSource interface {
	FetchArticle(ctx context.Context, url string) (models.Article, error)
}

// Rewriter restyles combined article text; it may fail.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Transport delivers posts to a chat.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoURL string) error
}

// Recorder appends to the durable publication log.
type Recorder interface {
	Append(ctx context.Context, chatID int64, publishedAt time.Time, url string) (models.PublishedPost, error)
}

// Publisher runs the fetch → extract → rewrite → deliver → record sequence
// for one URL. The destination chat is always resolved by the caller.
type Publisher struct {
	source    ArticleSource
	rewriter  Rewriter
	transport Transport
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func New(source ArticleSource, rewriter Rewriter, transport Transport, recorder Recorder, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		source:    source,
		rewriter:  rewriter,
		transport: transport,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Publish fetches the article at url and posts it to chatID. A rewrite
// failure falls back to the raw combined text; a photo delivery failure is
// logged and the text still goes out. A text delivery failure aborts the
// call without recording, so failed deliveries never count as published.
func (p *Publisher) Publish(ctx context.Context, url string, chatID int64) error {
	article, err := p.source.FetchArticle(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch article: %w", err)
	}

	combined := article.CombinedText()

	text, err := p.rewriter.Rewrite(ctx, combined)
	if err != nil {
		p.logger.Warn("rewrite failed, using raw text", "url", url, "error", err)
		text = combined
	}

	if len(article.ImageURLs) > 0 {
		if err := p.transport.SendPhoto(ctx, chatID, article.ImageURLs[0]); err != nil {
			p.logger.Warn("photo delivery failed", "url", url, "chat_id", chatID, "error", err)
		}
	}

	if err := p.transport.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}

	if _, err := p.recorder.Append(ctx, chatID, p.now(), url); err != nil {
		return fmt.Errorf("record post: %w", err)
	}

	p.logger.Info("published", "url", url, "chat_id", chatID)
	return nil
}
