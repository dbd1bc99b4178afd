package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/taskernetbot/internal/logutil"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
)

type fakeSource struct {
	mu             sync.Mutex
	batches        [][]telegram.Update
	offsets        []int64
	deleteCalls    int
	failFirstFetch bool
}

func (f *fakeSource) DeleteWebhook(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return nil
}

func (f *fakeSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]telegram.Update, int64, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if f.failFirstFetch {
		f.failFirstFetch = false
		f.mu.Unlock()
		return nil, offset, errors.New("bad gateway")
	}
	if len(f.batches) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, offset, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()

	next := offset
	for _, u := range batch {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return batch, next, nil
}

func TestPollerDispatchesUpdates(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	h := newTestHandler(t, api, &fakeShares{})
	source := &fakeSource{
		failFirstFetch: true,
		batches: [][]telegram.Update{
			{{UpdateID: 10, Message: &telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 1}, Text: "hi"}}},
			{{UpdateID: 11, Message: &telegram.Message{MessageID: 2, Chat: &telegram.Chat{ID: 2}, Text: "/help"}}},
		},
	}
	p := NewPoller(source, h, Options{MaxConcurrency: 2}, logutil.Discard())
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		api.mu.Lock()
		n := len(api.sent)
		api.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for updates: sent=%d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	if source.deleteCalls != 1 {
		t.Fatalf("deleteWebhook calls mismatch: got %d want 1", source.deleteCalls)
	}
	wantOffsets := []int64{0, 0, 11, 12}
	if len(source.offsets) != len(wantOffsets) {
		t.Fatalf("offsets mismatch: got %v want %v", source.offsets, wantOffsets)
	}
	for i := range wantOffsets {
		if source.offsets[i] != wantOffsets[i] {
			t.Fatalf("offsets mismatch: got %v want %v", source.offsets, wantOffsets)
		}
	}
}

func TestWebhookRouter(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []telegram.Update
	dispatch := func(_ context.Context, u telegram.Update) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
		return nil
	}
	srv := httptest.NewServer(newWebhookRouter("/hook", "s3cret", dispatch, logutil.Discard()))
	defer srv.Close()

	post := func(secret, body string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set(secretTokenHeader, secret)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post error = %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("", `{"update_id":1}`); code != http.StatusForbidden {
		t.Fatalf("missing secret status mismatch: got %d want 403", code)
	}
	if code := post("wrong", `{"update_id":1}`); code != http.StatusForbidden {
		t.Fatalf("wrong secret status mismatch: got %d want 403", code)
	}
	if code := post("s3cret", `{not json`); code != http.StatusBadRequest {
		t.Fatalf("bad body status mismatch: got %d want 400", code)
	}
	if code := post("s3cret", `{"update_id":5,"inline_query":{"id":"q","query":"wifi"}}`); code != http.StatusOK {
		t.Fatalf("valid update status mismatch: got %d want 200", code)
	}

	mu.Lock()
	if len(got) != 1 || got[0].UpdateID != 5 || got[0].InlineQuery == nil || got[0].InlineQuery.Query != "wifi" {
		t.Fatalf("dispatched updates mismatch: got %+v", got)
	}
	mu.Unlock()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status mismatch: got %d want 200", resp.StatusCode)
	}
}

func TestWebhookRouterUnavailable(t *testing.T) {
	t.Parallel()

	dispatch := func(context.Context, telegram.Update) error { return context.Canceled }
	srv := httptest.NewServer(newWebhookRouter("/hook", "", dispatch, logutil.Discard()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hook", "application/json", strings.NewReader(`{"update_id":1}`))
	if err != nil {
		t.Fatalf("post error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status mismatch: got %d want 503", resp.StatusCode)
	}
}
