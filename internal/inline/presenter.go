package inline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
)

// Result is one selectable inline entry. Its ID is fresh for every
// presentation and is registered in the result cache before the Result is
// handed out.
type Result struct {
	ID           string
	Title        string
	Description  string
	Body         MessageBody
	CanonicalURL string
	Keyboard     telegram.InlineKeyboardMarkup
	// ShowURL exposes CanonicalURL on the article itself (direct-link results).
	ShowURL bool
}

func (r Result) Article() telegram.InlineQueryResultArticle {
	kb := r.Keyboard
	article := telegram.InlineQueryResultArticle{
		Type:  "article",
		ID:    r.ID,
		Title: r.Title,
		InputMessageContent: telegram.InputTextMessageContent{
			MessageText: r.Body.Text,
			ParseMode:   r.Body.ParseMode,
		},
		ReplyMarkup: &kb,
		Description: r.Description,
	}
	if r.ShowURL {
		article.URL = r.CanonicalURL
	}
	return article
}

type PresenterOptions struct {
	Store    resultcache.Store
	Location *time.Location
	NewID    func() string
	Logger   *slog.Logger
}

type Presenter struct {
	store  resultcache.Store
	loc    *time.Location
	newID  func() string
	logger *slog.Logger
}

func NewPresenter(opts PresenterOptions) (*Presenter, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("presenter: result cache is required")
	}
	p := &Presenter{
		store:  opts.Store,
		loc:    opts.Location,
		newID:  opts.NewID,
		logger: opts.Logger,
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// PresentSearchResults turns search hits into results, one per share, in
// order. A share whose cache entry cannot be written is left out and its
// error is returned alongside the results that were cached.
func (p *Presenter) PresentSearchResults(ctx context.Context, query string, shares []taskernet.Share) ([]Result, error) {
	results := make([]Result, 0, len(shares))
	var errs []error
	for _, share := range shares {
		description := share.StatsLine()
		if tags := share.HashTags(); tags != "" {
			description += "\n" + tags
		}
		title := strings.TrimSpace(share.Name)
		if title == "" {
			title = share.ID
		}
		res := Result{
			ID:           p.newID(),
			Title:        title,
			Description:  description,
			Body:         BuildMessageBody(share, p.loc),
			CanonicalURL: share.URL,
			Keyboard:     ActionKeyboard(query, share.URL),
		}
		if err := p.register(ctx, res); err != nil {
			p.logger.Warn("inline_cache_put_error", "result_id", res.ID, "share_id", share.ID, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// PresentURLResult presents the share behind a pasted link. Unlike search
// results it is titled with the share id and "Search again" looks up the
// share name.
func (p *Presenter) PresentURLResult(ctx context.Context, shareURL string, detail taskernet.Share) (Result, error) {
	res := Result{
		ID:           p.newID(),
		Title:        detail.ID,
		Description:  detail.StatsLine(),
		Body:         BuildMessageBody(detail, p.loc),
		CanonicalURL: shareURL,
		Keyboard:     ActionKeyboard(detail.Name, shareURL),
		ShowURL:      true,
	}
	if err := p.register(ctx, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Presenter) register(ctx context.Context, res Result) error {
	return p.store.Put(ctx, res.ID, resultcache.Entry{
		Text:      res.Body.Text,
		ParseMode: res.Body.ParseMode,
		URL:       res.CanonicalURL,
		Keyboard:  res.Keyboard,
	})
}
