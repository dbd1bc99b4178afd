package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/quailyquaily/taskernetbot/internal/inline"
	"github.com/quailyquaily/taskernetbot/internal/logutil"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
)

const baseURL = "https://taskernet.com/"

type fakeAPI struct {
	mu      sync.Mutex
	sent    []telegram.SendMessageRequest
	answers []telegram.AnswerInlineQueryRequest
	edits   []telegram.EditMessageTextRequest
	editErr error
}

func (f *fakeAPI) SendMessage(_ context.Context, req telegram.SendMessageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeAPI) AnswerInlineQuery(_ context.Context, req telegram.AnswerInlineQueryRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, req)
	return nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, req telegram.EditMessageTextRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, req)
	return f.editErr
}

type fakeShares struct {
	mu        sync.Mutex
	search    []taskernet.Share
	searchErr error
	details   map[string]*taskernet.Share
	searches  []string
	fetches   []string
}

func (f *fakeShares) IsShareURL(query string) bool {
	return strings.HasPrefix(query, baseURL)
}

func (f *fakeShares) SearchShares(_ context.Context, query string) ([]taskernet.Share, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.search, f.searchErr
}

func (f *fakeShares) FetchShareDetail(_ context.Context, shareURL string) (*taskernet.Share, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, shareURL)
	if _, _, err := taskernet.ParseShareURL(baseURL, shareURL); err != nil {
		return nil, err
	}
	if d, ok := f.details[shareURL]; ok {
		return d, nil
	}
	return nil, taskernet.ErrUnavailable
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string  { return &v }

const wifiURL = baseURL + "shares/?user=u1&id=Wifi"

func newTestHandler(t *testing.T, api *fakeAPI, shares *fakeShares) *Handler {
	t.Helper()
	store := resultcache.NewMemoryStore()
	n := 0
	presenter, err := inline.NewPresenter(inline.PresenterOptions{
		Store:  store,
		Logger: logutil.Discard(),
		NewID: func() string {
			n++
			return fmt.Sprintf("r%d", n)
		},
	})
	if err != nil {
		t.Fatalf("NewPresenter() error = %v", err)
	}
	enricher, err := inline.NewEnricher(store, shares, logutil.Discard())
	if err != nil {
		t.Fatalf("NewEnricher() error = %v", err)
	}
	h, err := NewHandler(HandlerOptions{
		API:       api,
		Shares:    shares,
		Presenter: presenter,
		Enricher:  enricher,
		Self:      &telegram.User{ID: 99, Username: "taskernet_bot", IsBot: true},
		Logger:    logutil.Discard(),
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return h
}

func wifiShare() taskernet.Share {
	return taskernet.Share{
		ID:    "Wifi",
		URL:   wifiURL,
		Name:  "Wifi Toggle",
		Type:  "Task",
		Tags:  []string{"wifi"},
		Stats: &taskernet.Stats{Views: int64p(10), Downloads: int64p(5)},
	}
}

func TestInlineSearchThenChosenEnrichment(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	detail := wifiShare()
	detail.Description = strp("Turns <b>wifi</b> off")
	shares := &fakeShares{
		search:  []taskernet.Share{wifiShare()},
		details: map[string]*taskernet.Share{wifiURL: &detail},
	}
	h := newTestHandler(t, api, shares)
	ctx := context.Background()

	err := h.HandleUpdate(ctx, telegram.Update{UpdateID: 1, InlineQuery: &telegram.InlineQuery{ID: "q1", Query: " wifi "}})
	if err != nil {
		t.Fatalf("inline query error = %v", err)
	}
	if len(api.answers) != 1 {
		t.Fatalf("answers mismatch: got %d want 1", len(api.answers))
	}
	answer := api.answers[0]
	if answer.InlineQueryID != "q1" || len(answer.Results) != 1 || answer.Button != nil {
		t.Fatalf("answer mismatch: got %+v", answer)
	}
	if answer.CacheTime == nil || *answer.CacheTime != defaultInlineCacheTime {
		t.Fatalf("cache time mismatch: got %v", answer.CacheTime)
	}
	article := answer.Results[0]
	if article.ID != "r1" || article.Title != "Wifi Toggle" || article.URL != "" {
		t.Fatalf("article mismatch: got %+v", article)
	}
	if len(shares.searches) != 1 || shares.searches[0] != "wifi" {
		t.Fatalf("search query mismatch: got %v", shares.searches)
	}

	err = h.HandleUpdate(ctx, telegram.Update{UpdateID: 2, ChosenInlineResult: &telegram.ChosenInlineResult{
		ResultID:        "r1",
		InlineMessageID: "im1",
		Query:           "wifi",
	}})
	if err != nil {
		t.Fatalf("chosen result error = %v", err)
	}
	if len(api.edits) != 1 {
		t.Fatalf("edits mismatch: got %d want 1", len(api.edits))
	}
	edit := api.edits[0]
	want := article.InputMessageContent.MessageText + "\n\nTurns *wifi* off\n\n"
	if edit.InlineMessageID != "im1" || edit.Text != want || edit.ParseMode != "Markdown" {
		t.Fatalf("edit mismatch:\ngot  %+v\nwant text %q", edit, want)
	}
	if edit.ReplyMarkup == nil || len(edit.ReplyMarkup.InlineKeyboard[0]) != 2 {
		t.Fatalf("edit should keep the keyboard: got %+v", edit.ReplyMarkup)
	}
}

func TestInlineSearchNoResults(t *testing.T) {
	t.Parallel()

	for _, shares := range []*fakeShares{{}, {searchErr: taskernet.ErrUnavailable}} {
		api := &fakeAPI{}
		h := newTestHandler(t, api, shares)
		if err := h.HandleUpdate(context.Background(), telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: "zzz"}}); err != nil {
			t.Fatalf("inline query error = %v", err)
		}
		answer := api.answers[0]
		if len(answer.Results) != 0 || answer.Results == nil {
			t.Fatalf("results should be an empty list: got %#v", answer.Results)
		}
		if answer.Button == nil || answer.Button.Text != "No result found!" || answer.Button.StartParameter != "help" {
			t.Fatalf("fallback button mismatch: got %+v", answer.Button)
		}
	}
}

func TestInlineEmptyQueryIgnored(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	shares := &fakeShares{}
	h := newTestHandler(t, api, shares)
	if err := h.HandleUpdate(context.Background(), telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: "   "}}); err != nil {
		t.Fatalf("inline query error = %v", err)
	}
	if len(api.answers) != 0 || len(shares.searches) != 0 {
		t.Fatalf("empty query should be ignored: answers=%d searches=%d", len(api.answers), len(shares.searches))
	}
}

func TestInlineSearchCapsResults(t *testing.T) {
	t.Parallel()

	many := make([]taskernet.Share, 0, 60)
	for i := 0; i < 60; i++ {
		s := wifiShare()
		s.ID = fmt.Sprintf("s%d", i)
		many = append(many, s)
	}
	api := &fakeAPI{}
	h := newTestHandler(t, api, &fakeShares{search: many})
	if err := h.HandleUpdate(context.Background(), telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: "wifi"}}); err != nil {
		t.Fatalf("inline query error = %v", err)
	}
	if got := len(api.answers[0].Results); got != maxInlineResults {
		t.Fatalf("result count mismatch: got %d want %d", got, maxInlineResults)
	}
}

func TestInlineDirectLink(t *testing.T) {
	t.Parallel()

	detail := wifiShare()
	detail.Description = strp("Plain")
	api := &fakeAPI{}
	shares := &fakeShares{details: map[string]*taskernet.Share{wifiURL: &detail}}
	h := newTestHandler(t, api, shares)
	ctx := context.Background()

	if err := h.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: wifiURL}}); err != nil {
		t.Fatalf("inline query error = %v", err)
	}
	if len(shares.searches) != 0 {
		t.Fatalf("direct links should not search: got %v", shares.searches)
	}
	article := api.answers[0].Results[0]
	if article.Title != "Wifi" || article.URL != wifiURL || article.Description != "Views: 10 | Downloads: 5" {
		t.Fatalf("direct link article mismatch: got %+v", article)
	}
	if !strings.HasSuffix(article.InputMessageContent.MessageText, "#wifiPlain\n\n") {
		t.Fatalf("direct link body should carry the description: got %q", article.InputMessageContent.MessageText)
	}

	err := h.HandleUpdate(ctx, telegram.Update{ChosenInlineResult: &telegram.ChosenInlineResult{
		ResultID: article.ID, InlineMessageID: "im", Query: wifiURL,
	}})
	if err != nil {
		t.Fatalf("chosen result error = %v", err)
	}
	if len(api.edits) != 0 || len(shares.fetches) != 1 {
		t.Fatalf("direct link selection should not edit: edits=%d fetches=%d", len(api.edits), len(shares.fetches))
	}
}

func TestInlineDirectLinkErrors(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	h := newTestHandler(t, api, &fakeShares{})
	ctx := context.Background()

	if err := h.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: wifiURL}}); err != nil {
		t.Fatalf("unavailable detail should answer empty, got error %v", err)
	}
	if len(api.answers) != 1 || api.answers[0].Button == nil {
		t.Fatalf("unavailable detail should show the fallback button: got %+v", api.answers)
	}

	err := h.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q2", Query: baseURL + "about"}})
	if !errors.Is(err, taskernet.ErrMalformedShareURL) {
		t.Fatalf("malformed link error = %v, want ErrMalformedShareURL", err)
	}
}

func TestChosenResultCacheMissIsNoOp(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	shares := &fakeShares{}
	h := newTestHandler(t, api, shares)
	err := h.HandleUpdate(context.Background(), telegram.Update{ChosenInlineResult: &telegram.ChosenInlineResult{
		ResultID: "unknown", InlineMessageID: "im", Query: "wifi",
	}})
	if err != nil {
		t.Fatalf("cache miss error = %v", err)
	}
	if len(api.edits) != 0 || len(shares.fetches) != 0 {
		t.Fatalf("cache miss should not fetch or edit: edits=%d fetches=%d", len(api.edits), len(shares.fetches))
	}
}

func TestChosenResultNotModifiedIgnored(t *testing.T) {
	t.Parallel()

	detail := wifiShare()
	detail.Description = strp("x")
	api := &fakeAPI{editErr: &telegram.RequestError{Method: "editMessageText", StatusCode: 400, Description: "Bad Request: message is not modified"}}
	h := newTestHandler(t, api, &fakeShares{search: []taskernet.Share{wifiShare()}, details: map[string]*taskernet.Share{wifiURL: &detail}})
	ctx := context.Background()
	_ = h.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{ID: "q", Query: "wifi"}})
	err := h.HandleUpdate(ctx, telegram.Update{ChosenInlineResult: &telegram.ChosenInlineResult{ResultID: "r1", InlineMessageID: "im", Query: "wifi"}})
	if err != nil {
		t.Fatalf("not modified should be ignored: got %v", err)
	}
}

func TestWelcomeMessage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	h := newTestHandler(t, api, &fakeShares{})
	ctx := context.Background()

	msg := &telegram.Message{MessageID: 7, Chat: &telegram.Chat{ID: 42, Type: "private"}, From: &telegram.User{ID: 1, FirstName: "Ada"}, Text: "/start"}
	if err := h.HandleUpdate(ctx, telegram.Update{Message: msg}); err != nil {
		t.Fatalf("message error = %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent mismatch: got %d want 1", len(api.sent))
	}
	sent := api.sent[0]
	if sent.ChatID != 42 || sent.ReplyToMessageID != 7 || sent.Text != "Hello Ada,\nThis bot works only in inline mode." {
		t.Fatalf("welcome mismatch: got %+v", sent)
	}
	row := sent.ReplyMarkup.InlineKeyboard[0]
	if len(row) != 2 || row[0].SwitchInlineQueryCurrentChat == nil || *row[0].SwitchInlineQueryCurrentChat != "" {
		t.Fatalf("go inline here button mismatch: got %+v", row)
	}
	chosen := row[1].SwitchInlineQueryChosenChat
	if chosen == nil || !chosen.AllowUserChats || !chosen.AllowGroupChats || chosen.AllowBotChats || chosen.AllowChannelChats {
		t.Fatalf("go inline in a chat button mismatch: got %+v", chosen)
	}

	own := &telegram.Message{MessageID: 8, Chat: &telegram.Chat{ID: 42}, ViaBot: &telegram.User{ID: 99}, Text: "#Task"}
	other := &telegram.Message{MessageID: 9, Chat: &telegram.Chat{ID: 42}, Text: ""}
	for _, m := range []*telegram.Message{own, other} {
		if err := h.HandleUpdate(ctx, telegram.Update{Message: m}); err != nil {
			t.Fatalf("message error = %v", err)
		}
	}
	if len(api.sent) != 1 {
		t.Fatalf("own and non-text messages should be ignored: sent=%d", len(api.sent))
	}
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	got := normalizeOptions(Options{WebhookPath: "hook", WebhookPublicURL: "https://bot.example.com/", InlineCacheTime: -1})
	if got.PollTimeout != defaultPollTimeout || got.MaxConcurrency != defaultMaxConcurrency || got.EventTimeout != defaultEventTimeout {
		t.Fatalf("defaults mismatch: got %+v", got)
	}
	if got.WebhookPath != "/hook" || got.WebhookPublicURL != "https://bot.example.com" {
		t.Fatalf("webhook normalize mismatch: got %+v", got)
	}
	if got.InlineCacheTime != -1 {
		t.Fatalf("negative cache time should be kept: got %d", got.InlineCacheTime)
	}
}
