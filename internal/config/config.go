package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "KP_BOT_CONFIG"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	adminChatIDEnv   = "ADMIN_CHAT_ID"
	openAIKeyEnv     = "OPENAI_API_KEY"
	feedURLEnv       = "FEED_URL"
	databasePathEnv  = "DATABASE_PATH"
)

// Config holds all settings required across the application. The bot token
// and API keys come from the environment only; everything else may be set
// in a YAML file and overridden per-key via env vars. Intervals are plain
// second counts in YAML.
type Config struct {
	TelegramToken     string       `yaml:"-"`
	AdminChatID       int64        `yaml:"adminChatId"`
	FeedURL           string       `yaml:"feedUrl"`
	DatabasePath      string       `yaml:"databasePath"`
	PollIntervalSec   int          `yaml:"pollIntervalSec"`
	PollFirstDelaySec int          `yaml:"pollFirstDelaySec"`
	ReportIntervalSec int          `yaml:"reportIntervalSec"`
	FeedBatchLimit    int          `yaml:"feedBatchLimit"`
	DigestLimit       int          `yaml:"digestLimit"`
	OpenAI            OpenAIConfig `yaml:"openai"`
	LogLevel          string       `yaml:"logLevel"`
}

// PollInterval returns the feed polling period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollFirstDelay returns the delay before the first poll after startup.
func (c Config) PollFirstDelay() time.Duration {
	return time.Duration(c.PollFirstDelaySec) * time.Second
}

// ReportInterval returns the period of the publication-count report.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSec) * time.Second
}

// OpenAIConfig defines how the rewrite adapter contacts the API.
type OpenAIConfig struct {
	APIKey       string `yaml:"-"`
	BaseURL      string `yaml:"baseUrl"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"systemPrompt"`
	MaxTokens    int64  `yaml:"maxTokens"`
	TimeoutSec   int    `yaml:"timeoutSec"`
}

// Timeout returns the per-call rewrite deadline.
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Load reads YAML configuration (if present) and applies environment
// overrides on top of defaults.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("config: cannot read %s: %v (using defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (using defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	c.TelegramToken = getEnv(telegramTokenEnv, c.TelegramToken)
	c.OpenAI.APIKey = getEnv(openAIKeyEnv, c.OpenAI.APIKey)
	c.FeedURL = getEnv(feedURLEnv, c.FeedURL)
	c.DatabasePath = getEnv(databasePathEnv, c.DatabasePath)
	c.AdminChatID = getEnvAsInt64(adminChatIDEnv, c.AdminChatID)
}

func defaultConfig() Config {
	return Config{
		FeedURL:           "https://kuban.kp.ru/online/services/rss/",
		DatabasePath:      "bot_data.db",
		PollIntervalSec:   1800,
		PollFirstDelaySec: 10,
		ReportIntervalSec: 604800,
		FeedBatchLimit:    5,
		DigestLimit:       5,
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
			SystemPrompt: "Перепиши новость в стиле Telegram-канала КП-Кубань: " +
				"лаконично, с эмодзи, короткими абзацами.",
			MaxTokens:  512,
			TimeoutSec: 30,
		},
		LogLevel: "info",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
