package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/quailyquaily/taskernetbot/internal/worker"
)

type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// Poller feeds long-polled updates into a bounded worker pool.
type Poller struct {
	source  UpdateSource
	handler *Handler
	opts    Options
	logger  *slog.Logger
	// retryDelay is the pause after a failed getUpdates call.
	retryDelay time.Duration
}

func NewPoller(source UpdateSource, handler *Handler, opts Options, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:     source,
		handler:    handler,
		opts:       normalizeOptions(opts),
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run polls until ctx is done. Updates are acknowledged as soon as they are
// queued; handling errors never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	for {
		err := p.source.DeleteWebhook(ctx, false)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			p.logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
		p.logger.Warn("telegram_delete_webhook_error", "error", err.Error())
		if !sleepCtx(ctx, 2*time.Second) {
			p.logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
	}

	jobs := make(chan telegram.Update, p.opts.MaxConcurrency*4)
	wait := worker.Start(worker.StartOptions[telegram.Update]{
		Ctx:         ctx,
		Concurrency: p.opts.MaxConcurrency,
		Jobs:        jobs,
		Handle:      p.handler.handleUpdateLogged,
		Logger:      p.logger,
	})
	defer func() {
		close(jobs)
		wait()
	}()

	p.logger.Info("telegram_polling_start",
		"poll_timeout", p.opts.PollTimeout.String(),
		"max_concurrency", p.opts.MaxConcurrency,
	)

	var offset int64
	for {
		updates, nextOffset, err := p.source.GetUpdates(ctx, offset, p.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				p.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if telegram.IsPollTimeoutError(err) {
				p.logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				p.logger.Warn("telegram_get_updates_error", "error", err.Error())
			}
			if !sleepCtx(ctx, p.retryDelay) {
				p.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			if err := worker.Enqueue(ctx, ctx, jobs, u); err != nil {
				p.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
