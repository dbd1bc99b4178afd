package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quailyquaily/taskernetbot/internal/bot"
	"github.com/quailyquaily/taskernetbot/internal/configutil"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/spf13/cobra"
)

func addTelegramFlags(cmd *cobra.Command) {
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", telegram.DefaultBaseURL, "Telegram API base URL.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Int("telegram-max-concurrency", 8, "Max number of updates handled concurrently.")
	cmd.Flags().Duration("telegram-event-timeout", 30*time.Second, "Deadline for handling one update.")
	cmd.Flags().Int("telegram-inline-cache-time", 300, "cache_time (seconds) sent with inline answers; negative leaves Telegram's default.")
	addTaskernetFlags(cmd)
	addCacheFlags(cmd)
}

type telegramRuntime struct {
	deps    *runtimeDeps
	api     *telegram.API
	handler *bot.Handler
	opts    bot.Options
}

func newTelegramRuntime(ctx context.Context, cmd *cobra.Command) (*telegramRuntime, error) {
	token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
	if token == "" {
		return nil, fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TASKERNETBOT_TELEGRAM_BOT_TOKEN)")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(configutil.FlagOrViperString(cmd, "telegram-base-url", "telegram.base_url")), "/")
	if baseURL == "" {
		baseURL = telegram.DefaultBaseURL
	}

	deps, err := buildRuntime(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}

	opts := bot.Options{
		PollTimeout:        configutil.FlagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout"),
		EventTimeout:       configutil.FlagOrViperDuration(cmd, "telegram-event-timeout", "telegram.event_timeout"),
		MaxConcurrency:     configutil.FlagOrViperInt(cmd, "telegram-max-concurrency", "telegram.max_concurrency"),
		InlineCacheTime:    configutil.FlagOrViperInt(cmd, "telegram-inline-cache-time", "telegram.inline_cache_time"),
		WebhookListen:      configutil.FlagOrViperString(cmd, "webhook-listen", "webhook.listen"),
		WebhookPublicURL:   configutil.FlagOrViperString(cmd, "webhook-public-url", "webhook.public_url"),
		WebhookPath:        configutil.FlagOrViperString(cmd, "webhook-path", "webhook.path"),
		WebhookSecretToken: configutil.FlagOrViperString(cmd, "webhook-secret-token", "webhook.secret_token"),
	}

	// Long polls hold the connection for PollTimeout; per-call deadlines come from contexts.
	api := telegram.NewAPI(&http.Client{}, baseURL, token)

	meCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	me, err := api.GetMe(meCtx)
	cancel()
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	deps.Logger.Info("telegram_bot_identity", "bot_id", me.ID, "username", me.Username)

	handler, err := bot.NewHandler(bot.HandlerOptions{
		API:       api,
		Shares:    deps.Shares,
		Presenter: deps.Presenter,
		Enricher:  deps.Enricher,
		Self:      me,
		Options:   opts,
		Logger:    deps.Logger,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	return &telegramRuntime{deps: deps, api: api, handler: handler, opts: opts}, nil
}

func newPollingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polling",
		Short: "Run the inline bot with getUpdates long polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := newTelegramRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.deps.Close()

			return bot.NewPoller(rt.api, rt.handler, rt.opts, rt.deps.Logger).Run(ctx)
		},
	}
	addTelegramFlags(cmd)
	return cmd
}

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Run the inline bot behind a Telegram webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := newTelegramRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.deps.Close()

			return bot.NewWebhookServer(rt.api, rt.handler, rt.opts, rt.deps.Logger).Run(ctx)
		},
	}
	addTelegramFlags(cmd)
	cmd.Flags().String("webhook-listen", "127.0.0.1:8080", "Address the webhook server listens on.")
	cmd.Flags().String("webhook-public-url", "", "Public base URL Telegram posts to; setWebhook is skipped when empty.")
	cmd.Flags().String("webhook-path", "/telegram/webhook", "Path of the webhook endpoint.")
	cmd.Flags().String("webhook-secret-token", "", "Secret checked against X-Telegram-Bot-Api-Secret-Token.")
	return cmd
}
