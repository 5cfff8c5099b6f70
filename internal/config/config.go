// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	TickInterval time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	RedditClientID     string
	RedditClientSecret string
	RedditAPIURL       string
	RedditPublicURL    string
	RedditTokenURL     string
	UserAgent          string
	FetchLimit         int
	PlatformRPS        float64

	MaxConsecutiveFailures int

	MetricsAddr          string
	TelegramBotToken     string
	TelegramReportChatID int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/signals.db"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditAPIURL:       envOrDefault("REDDIT_API_URL", "https://oauth.reddit.com"),
		RedditPublicURL:    envOrDefault("REDDIT_PUBLIC_URL", "https://www.reddit.com"),
		RedditTokenURL:     envOrDefault("REDDIT_TOKEN_URL", "https://www.reddit.com/api/v1/access_token"),
		UserAgent:          envOrDefault("USER_AGENT", "SignalBot/1.0"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.RedditClientID == "" || cfg.RedditClientSecret == "" {
		return nil, fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	var err error
	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchLimit, err = intEnv("FETCH_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.FetchLimit <= 0 || cfg.FetchLimit > 100 {
		return nil, fmt.Errorf("FETCH_LIMIT must be between 1 and 100, got %d", cfg.FetchLimit)
	}
	if cfg.MaxConsecutiveFailures, err = intEnv("MAX_CONSECUTIVE_FAILURES", 0); err != nil {
		return nil, err
	}

	cfg.PlatformRPS = 1
	if raw := os.Getenv("PLATFORM_RPS"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid PLATFORM_RPS %q", raw)
		}
		cfg.PlatformRPS = v
	}

	if raw := os.Getenv("TELEGRAM_REPORT_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_REPORT_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramReportChatID = id
	}

	return cfg, nil
}

// ReportsEnabled reports whether tick summaries should be sent to Telegram.
func (c *Config) ReportsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramReportChatID != 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
