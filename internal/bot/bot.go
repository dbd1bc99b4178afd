package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/taskernetbot/internal/inline"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
)

// TelegramAPI is the part of the Bot API the handler calls.
type TelegramAPI interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
	AnswerInlineQuery(ctx context.Context, req telegram.AnswerInlineQueryRequest) error
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
}

// ShareSource is the Taskernet side of the handler.
type ShareSource interface {
	IsShareURL(query string) bool
	SearchShares(ctx context.Context, query string) ([]taskernet.Share, error)
	FetchShareDetail(ctx context.Context, shareURL string) (*taskernet.Share, error)
}

type HandlerOptions struct {
	API       TelegramAPI
	Shares    ShareSource
	Presenter *inline.Presenter
	Enricher  *inline.Enricher
	// Self is the bot account; messages sent through it are not answered.
	Self    *telegram.User
	Options Options
	Logger  *slog.Logger
}

// Handler turns one update into Bot API calls. It is safe for concurrent use.
type Handler struct {
	api       TelegramAPI
	shares    ShareSource
	presenter *inline.Presenter
	enricher  *inline.Enricher
	self      telegram.User
	opts      Options
	logger    *slog.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("bot: telegram api is required")
	}
	if opts.Shares == nil {
		return nil, fmt.Errorf("bot: share source is required")
	}
	if opts.Presenter == nil || opts.Enricher == nil {
		return nil, fmt.Errorf("bot: presenter and enricher are required")
	}
	h := &Handler{
		api:       opts.API,
		shares:    opts.Shares,
		presenter: opts.Presenter,
		enricher:  opts.Enricher,
		opts:      normalizeOptions(opts.Options),
		logger:    opts.Logger,
	}
	if opts.Self != nil {
		h.self = *opts.Self
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// HandleUpdate processes one update within the event timeout. Returned errors
// concern this update only.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.EventTimeout)
	defer cancel()

	switch {
	case u.InlineQuery != nil:
		return h.handleInlineQuery(ctx, u.InlineQuery)
	case u.ChosenInlineResult != nil:
		return h.handleChosenResult(ctx, u.ChosenInlineResult)
	case u.Message != nil:
		return h.handleMessage(ctx, u.Message)
	default:
		return nil
	}
}

// handleUpdateLogged is the worker entry point shared by both transports.
func (h *Handler) handleUpdateLogged(ctx context.Context, u telegram.Update) {
	if err := h.HandleUpdate(ctx, u); err != nil {
		h.logger.Warn("telegram_update_error", "update_id", u.UpdateID, "kind", u.Kind(), "error", err.Error())
	}
}

func (h *Handler) handleInlineQuery(ctx context.Context, q *telegram.InlineQuery) error {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil
	}

	var (
		results []inline.Result
		err     error
	)
	if h.shares.IsShareURL(query) {
		results, err = h.presentShareLink(ctx, query)
	} else {
		results, err = h.presentSearch(ctx, query)
	}
	if err != nil {
		return err
	}

	req := telegram.AnswerInlineQueryRequest{
		InlineQueryID: q.ID,
		Results:       make([]telegram.InlineQueryResultArticle, 0, len(results)),
	}
	for _, res := range results {
		req.Results = append(req.Results, res.Article())
	}
	if h.opts.InlineCacheTime >= 0 {
		cacheTime := h.opts.InlineCacheTime
		req.CacheTime = &cacheTime
	}
	if len(results) == 0 {
		h.logger.Info("inline_query_no_results", "query", query)
		req.Button = &telegram.InlineQueryResultsButton{Text: "No result found!", StartParameter: "help"}
	}
	if err := h.api.AnswerInlineQuery(ctx, req); err != nil {
		return fmt.Errorf("answer inline query %s: %w", q.ID, err)
	}
	h.logger.Info("inline_query_answered", "query", query, "results", len(results))
	return nil
}

func (h *Handler) presentSearch(ctx context.Context, query string) ([]inline.Result, error) {
	shares, err := h.shares.SearchShares(ctx, query)
	if err != nil {
		// Search failures read as an empty result set.
		return nil, nil
	}
	if len(shares) > maxInlineResults {
		shares = shares[:maxInlineResults]
	}
	results, err := h.presenter.PresentSearchResults(ctx, query, shares)
	if err != nil {
		h.logger.Warn("inline_present_partial", "query", query, "presented", len(results), "error", err.Error())
	}
	return results, nil
}

func (h *Handler) presentShareLink(ctx context.Context, shareURL string) ([]inline.Result, error) {
	detail, err := h.shares.FetchShareDetail(ctx, shareURL)
	if errors.Is(err, taskernet.ErrMalformedShareURL) {
		return nil, err
	}
	if err != nil {
		return nil, nil
	}
	res, err := h.presenter.PresentURLResult(ctx, shareURL, *detail)
	if err != nil {
		return nil, fmt.Errorf("present share link: %w", err)
	}
	return []inline.Result{res}, nil
}

func (h *Handler) handleChosenResult(ctx context.Context, chosen *telegram.ChosenInlineResult) error {
	fromDirectURL := h.shares.IsShareURL(strings.TrimSpace(chosen.Query))
	patch, err := h.enricher.Enrich(ctx, chosen.ResultID, fromDirectURL)
	if err != nil {
		return err
	}
	if patch == nil {
		return nil
	}
	if chosen.InlineMessageID == "" {
		h.logger.Warn("inline_enrich_no_message_id", "result_id", chosen.ResultID)
		return nil
	}

	kb := patch.Keyboard
	err = h.api.EditMessageText(ctx, telegram.EditMessageTextRequest{
		InlineMessageID: chosen.InlineMessageID,
		Text:            patch.Text,
		ParseMode:       patch.ParseMode,
		ReplyMarkup:     &kb,
	})
	if telegram.IsMessageNotModified(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit inline message %s: %w", chosen.InlineMessageID, err)
	}
	h.logger.Info("inline_result_enriched", "result_id", chosen.ResultID)
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	if h.isSelf(msg.ViaBot) {
		return nil
	}
	firstName := ""
	if msg.From != nil {
		firstName = msg.From.FirstName
	}
	err := h.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:           msg.Chat.ID,
		Text:             welcomeText(firstName),
		ReplyToMessageID: msg.MessageID,
		ReplyMarkup:      welcomeKeyboard(),
	})
	if err != nil {
		return fmt.Errorf("send welcome to chat %d: %w", msg.Chat.ID, err)
	}
	return nil
}

func (h *Handler) isSelf(u *telegram.User) bool {
	if u == nil {
		return false
	}
	if h.self.ID != 0 && u.ID == h.self.ID {
		return true
	}
	return h.self.Username != "" && strings.EqualFold(u.Username, h.self.Username)
}

func welcomeText(firstName string) string {
	return "Hello " + firstName + ",\nThis bot works only in inline mode."
}

func welcomeKeyboard() *telegram.InlineKeyboardMarkup {
	here := ""
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
		{Text: "Go inline here", SwitchInlineQueryCurrentChat: &here},
		{
			Text: "Go inline in a chat",
			SwitchInlineQueryChosenChat: &telegram.SwitchInlineQueryChosenChat{
				AllowUserChats:  true,
				AllowGroupChats: true,
			},
		},
	}}}
}
