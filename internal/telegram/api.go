package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type okResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	prefix := "telegram"
	if e.Method != "" {
		prefix = "telegram " + e.Method
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("%s http %d: %s", prefix, e.StatusCode, desc)
		}
		return prefix + ": " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("%s http %d: %s", prefix, e.StatusCode, body)
		}
		return fmt.Sprintf("%s http %d", prefix, e.StatusCode)
	}
	if body != "" {
		return prefix + ": " + body
	}
	return prefix + " request failed"
}

// TransportError is a failed round trip. Its message never contains the
// bot token, which net/http would otherwise echo as part of the URL.
type TransportError struct {
	Method string
	err    error
	token  string
}

func (e *TransportError) Error() string {
	msg := e.err.Error()
	if e.token != "" {
		msg = strings.ReplaceAll(msg, e.token, "<redacted>")
	}
	return "telegram " + e.Method + ": " + msg
}

func (e *TransportError) Unwrap() error { return e.err }

func IsMarkdownParseError(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		desc := strings.ToLower(strings.TrimSpace(reqErr.Description))
		if strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity") {
			return true
		}
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't parse entity")
}

// IsMessageNotModified reports Telegram's rejection of an edit that would not
// change the message.
func IsMessageNotModified(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return strings.Contains(strings.ToLower(reqErr.Description), "message is not modified")
}

func IsPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

func (api *API) call(ctx context.Context, method string, reqBody any, out any) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := api.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, err: err, token: api.token}
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env okResponse
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		return &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (api *API) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := api.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for updates and returns the next offset to request.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := api.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: AllowedUpdates,
	}, &updates)
	if err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

func (api *API) SendMessage(ctx context.Context, req SendMessageRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("telegram sendMessage: empty text")
	}
	return api.call(ctx, "sendMessage", req, nil)
}

func (api *API) AnswerInlineQuery(ctx context.Context, req AnswerInlineQueryRequest) error {
	if strings.TrimSpace(req.InlineQueryID) == "" {
		return fmt.Errorf("telegram answerInlineQuery: missing inline_query_id")
	}
	if req.Results == nil {
		req.Results = []InlineQueryResultArticle{}
	}
	return api.call(ctx, "answerInlineQuery", req, nil)
}

// EditMessageText edits an inline message. Markdown the server refuses to
// parse is resent as plain text.
func (api *API) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	if strings.TrimSpace(req.InlineMessageID) == "" {
		return fmt.Errorf("telegram editMessageText: missing inline_message_id")
	}
	err := api.call(ctx, "editMessageText", req, nil)
	if err == nil || req.ParseMode == "" || !IsMarkdownParseError(err) {
		return err
	}
	slog.Warn("telegram_edit_markdown_rejected", "inline_message_id", req.InlineMessageID, "error", err.Error())
	req.ParseMode = ""
	return api.call(ctx, "editMessageText", req, nil)
}

func (api *API) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("telegram setWebhook: missing url")
	}
	return api.call(ctx, "setWebhook", req, nil)
}

func (api *API) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return api.call(ctx, "deleteWebhook", deleteWebhookRequest{DropPendingUpdates: dropPending}, nil)
}
