package bot

import (
	"strings"
	"time"
)

const (
	defaultPollTimeout     = 30 * time.Second
	defaultEventTimeout    = 30 * time.Second
	defaultMaxConcurrency  = 8
	defaultInlineCacheTime = 300
	defaultWebhookListen   = "127.0.0.1:8080"
	defaultWebhookPath     = "/telegram/webhook"

	// Telegram rejects answers with more than 50 results.
	maxInlineResults = 50
)

// Options configures both transports. Zero values fall back to defaults.
type Options struct {
	PollTimeout    time.Duration
	EventTimeout   time.Duration
	MaxConcurrency int
	// InlineCacheTime is passed to answerInlineQuery in seconds. Negative
	// values leave it to Telegram.
	InlineCacheTime int

	WebhookListen      string
	WebhookPublicURL   string
	WebhookPath        string
	WebhookSecretToken string
}

func normalizeOptions(opts Options) Options {
	opts.WebhookListen = strings.TrimSpace(opts.WebhookListen)
	opts.WebhookPublicURL = strings.TrimRight(strings.TrimSpace(opts.WebhookPublicURL), "/")
	opts.WebhookPath = strings.TrimSpace(opts.WebhookPath)
	opts.WebhookSecretToken = strings.TrimSpace(opts.WebhookSecretToken)

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaultEventTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.InlineCacheTime == 0 {
		opts.InlineCacheTime = defaultInlineCacheTime
	}
	if opts.WebhookListen == "" {
		opts.WebhookListen = defaultWebhookListen
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = defaultWebhookPath
	}
	if !strings.HasPrefix(opts.WebhookPath, "/") {
		opts.WebhookPath = "/" + opts.WebhookPath
	}
	return opts
}
