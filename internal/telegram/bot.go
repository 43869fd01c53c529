package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Bot wraps the Telegram Bot API with the small surface the relay needs:
// outbound text/photo delivery, inline-query answers and an inbound update
// stream. Outbound calls share a rate limiter to stay under the Bot API
// flood limits.
type Bot struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func NewBot(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}, nil
}

// Updates starts long polling and returns the update stream.
func (b *Bot) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return b.api.GetUpdatesChan(u)
}

// Stop shuts down the long-polling loop.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// SendText delivers an HTML-formatted message to the chat.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendPhoto delivers a photo by URL to the chat.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photoURL string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// AnswerInline offers a single suggestion that, when chosen, sends the
// queried URL as a message. Cache time is zero so repeated queries for the
// same URL are answered fresh.
func (b *Bot) AnswerInline(ctx context.Context, queryID, title, query string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	result := tgbotapi.NewInlineQueryResultArticle(uuid.NewString(), title, query)
	answer := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       []interface{}{result},
		CacheTime:     0,
	}

	if _, err := b.api.Request(answer); err != nil {
		return fmt.Errorf("answer inline query: %w", err)
	}
	return nil
}
