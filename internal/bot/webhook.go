package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/quailyquaily/taskernetbot/internal/worker"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes    = 1 << 20
)

type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error
}

// WebhookServer receives updates pushed by Telegram and hands them to the
// same worker pool the poller uses.
type WebhookServer struct {
	registrar WebhookRegistrar
	handler   *Handler
	opts      Options
	logger    *slog.Logger
}

func NewWebhookServer(registrar WebhookRegistrar, handler *Handler, opts Options, logger *slog.Logger) *WebhookServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookServer{
		registrar: registrar,
		handler:   handler,
		opts:      normalizeOptions(opts),
		logger:    logger,
	}
}

// Run registers the webhook when a public URL is configured, then serves
// until ctx is done.
func (s *WebhookServer) Run(ctx context.Context) error {
	workersCtx, stopWorkers := context.WithCancel(ctx)
	jobs := make(chan telegram.Update, s.opts.MaxConcurrency*4)
	wait := worker.Start(worker.StartOptions[telegram.Update]{
		Ctx:         workersCtx,
		Concurrency: s.opts.MaxConcurrency,
		Jobs:        jobs,
		Handle:      s.handler.handleUpdateLogged,
		Logger:      s.logger,
	})
	defer wait()
	defer stopWorkers()

	dispatch := func(reqCtx context.Context, u telegram.Update) error {
		return worker.Enqueue(reqCtx, workersCtx, jobs, u)
	}
	srv := &http.Server{
		Addr:              s.opts.WebhookListen,
		Handler:           newWebhookRouter(s.opts.WebhookPath, s.opts.WebhookSecretToken, dispatch, s.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.WebhookPublicURL != "" {
		hookURL := s.opts.WebhookPublicURL + s.opts.WebhookPath
		err := s.registrar.SetWebhook(ctx, telegram.SetWebhookRequest{
			URL:            hookURL,
			SecretToken:    s.opts.WebhookSecretToken,
			AllowedUpdates: telegram.AllowedUpdates,
		})
		if err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		s.logger.Info("telegram_webhook_registered", "url", hookURL)
	} else {
		s.logger.Warn("telegram_webhook_not_registered", "reason", "webhook.public_url is empty")
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("telegram_webhook_listen", "addr", s.opts.WebhookListen, "path", s.opts.WebhookPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.logger.Info("telegram_stop", "reason", "context_canceled")
		return nil
	}
}

func newWebhookRouter(path, secret string, dispatch func(context.Context, telegram.Update) error, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		if secret != "" {
			got := req.Header.Get(secretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.Warn("telegram_webhook_bad_secret", "remote", req.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		var u telegram.Update
		if err := json.NewDecoder(io.LimitReader(req.Body, maxUpdateBytes)).Decode(&u); err != nil {
			logger.Warn("telegram_webhook_bad_update", "error", err.Error())
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if err := dispatch(req.Context(), u); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
