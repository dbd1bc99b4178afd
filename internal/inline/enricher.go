package inline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/taskernetbot/internal/markdown"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/quailyquaily/taskernetbot/internal/telegramutil"
)

type ShareFetcher interface {
	FetchShareDetail(ctx context.Context, shareURL string) (*taskernet.Share, error)
}

// MessagePatch replaces the text of an already sent inline message.
type MessagePatch struct {
	Text      string
	ParseMode string
	Keyboard  telegram.InlineKeyboardMarkup
}

type Enricher struct {
	store   resultcache.Store
	fetcher ShareFetcher
	logger  *slog.Logger
}

func NewEnricher(store resultcache.Store, fetcher ShareFetcher, logger *slog.Logger) (*Enricher, error) {
	if store == nil {
		return nil, fmt.Errorf("enricher: result cache is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("enricher: share fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{store: store, fetcher: fetcher, logger: logger}, nil
}

// Enrich builds the patch for a chosen result. A nil patch with a nil error
// means there is nothing to do: direct-link selections already carry the
// description, and unknown ids or an unreachable Taskernet leave the sent
// message as it is. A cached link that cannot be parsed is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, resultID string, fromDirectURL bool) (*MessagePatch, error) {
	if fromDirectURL {
		return nil, nil
	}

	entry, ok, err := e.store.Get(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", resultID, err)
	}
	if !ok || strings.TrimSpace(entry.URL) == "" {
		e.logger.Warn("inline_enrich_cache_miss", "result_id", resultID)
		return nil, nil
	}

	share, err := e.fetcher.FetchShareDetail(ctx, entry.URL)
	if errors.Is(err, taskernet.ErrMalformedShareURL) {
		return nil, fmt.Errorf("enrich %s: %w", resultID, err)
	}
	if err != nil {
		e.logger.Warn("inline_enrich_detail_unavailable", "result_id", resultID, "share_url", entry.URL, "error", err.Error())
		return nil, nil
	}
	if share.Description == nil {
		e.logger.Debug("inline_enrich_no_description", "result_id", resultID, "share_url", entry.URL)
		return nil, nil
	}

	return &MessagePatch{
		Text:      entry.Text + "\n\n" + markdown.RenderDescription(*share.Description),
		ParseMode: telegramutil.ParseModeMarkdown,
		Keyboard:  entry.Keyboard,
	}, nil
}
