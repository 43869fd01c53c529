package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KPKUBAN/kp-kuban-bot/internal/config"
	"github.com/KPKUBAN/kp-kuban-bot/internal/feed"
	"github.com/KPKUBAN/kp-kuban-bot/internal/logging"
	"github.com/KPKUBAN/kp-kuban-bot/internal/publisher"
	"github.com/KPKUBAN/kp-kuban-bot/internal/relay"
	"github.com/KPKUBAN/kp-kuban-bot/internal/rewrite"
	"github.com/KPKUBAN/kp-kuban-bot/internal/scraper"
	"github.com/KPKUBAN/kp-kuban-bot/internal/store"
	"github.com/KPKUBAN/kp-kuban-bot/internal/telegram"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	postStore, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open post store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer postStore.Close()

	bot, err := telegram.NewBot(cfg.TelegramToken)
	if err != nil {
		logger.Error("connect to telegram", "error", err)
		os.Exit(1)
	}

	pipeline := publisher.New(
		scraper.NewClient(nil),
		rewrite.NewOpenAIClient(cfg.OpenAI),
		bot,
		postStore,
		logger.With("component", "publisher"),
	)

	r := relay.New(cfg, pipeline, feed.NewHTTPFetcher(), postStore, bot, logger.With("component", "relay"))

	logger.Info("kp-kuban-bot started", "feed", cfg.FeedURL, "poll_interval", cfg.PollInterval())
	r.Run(ctx, bot.Updates())
	bot.Stop()
	logger.Info("kp-kuban-bot stopped")
}
