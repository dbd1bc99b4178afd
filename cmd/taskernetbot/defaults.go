package main

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.base_url", telegram.DefaultBaseURL)
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 8)
	viper.SetDefault("telegram.event_timeout", 30*time.Second)
	viper.SetDefault("telegram.inline_cache_time", 300)

	// Webhook
	viper.SetDefault("webhook.listen", "127.0.0.1:8080")
	viper.SetDefault("webhook.public_url", "")
	viper.SetDefault("webhook.path", "/telegram/webhook")
	viper.SetDefault("webhook.secret_token", "")

	// Taskernet
	viper.SetDefault("taskernet.base_url", taskernet.DefaultBaseURL)
	viper.SetDefault("taskernet.request_timeout", 15*time.Second)
	viper.SetDefault("taskernet.rate_limit", 0.0)
	viper.SetDefault("taskernet.rate_burst", 1)
	viper.SetDefault("taskernet.user_agent", "taskernetbot/1.0 (+https://github.com/quailyquaily/taskernetbot)")

	// Result cache
	viper.SetDefault("cache.backend", resultcache.BackendMemory)
	viper.SetDefault("cache.lru.size", resultcache.DefaultLRUSize)
	viper.SetDefault("cache.lru.ttl", 24*time.Hour)
	viper.SetDefault("cache.sqlite.path", filepath.Join(xdg.StateHome, "taskernetbot", "results.db"))
	viper.SetDefault("cache.postgres.dsn", "")

	// Message formatting
	viper.SetDefault("format.timezone", "UTC")
}
