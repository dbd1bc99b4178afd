package taskernet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://taskernet.com/"

	apiPath         = "_ah/api/datashare/v1/"
	maxResponseBody = 4 * 1024 * 1024
)

var (
	// ErrUnavailable covers network failures, non-200 answers and unusable
	// bodies. Callers degrade to "no results"; requests are never retried.
	ErrUnavailable = errors.New("taskernet unavailable")
	// ErrMalformedShareURL means a share link does not have the
	// shares/?user=<user>&id=<share> shape.
	ErrMalformedShareURL = errors.New("malformed taskernet share url")
)

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("taskernet http %d", e.StatusCode)
	}
	return fmt.Sprintf("taskernet http %d: %s", e.StatusCode, body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnavailable
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	http      *http.Client
	baseURL   string
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "taskernetbot/1.0"
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:      httpClient,
		baseURL:   baseURL,
		timeout:   timeout,
		userAgent: userAgent,
		limiter:   limiter,
		logger:    logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsShareURL reports whether an inline query is a direct Taskernet link
// rather than search text.
func (c *Client) IsShareURL(query string) bool {
	return strings.HasPrefix(query, c.baseURL)
}

// SearchShares runs a public search. A response without shares yields an
// empty slice and no error.
func (c *Client) SearchShares(ctx context.Context, query string) ([]Share, error) {
	endpoint := c.baseURL + apiPath + "shares/public?a=0&tags=&q=" + url.QueryEscape(query) + "&minDate=AllTime"

	var out searchResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Warn("taskernet_search_error", "query", query, "error", err.Error())
		return nil, err
	}
	c.logger.Info("taskernet_search_ok", "query", query, "shares", len(out.Shares))
	return out.Shares, nil
}

// FetchShareDetail loads the full record behind a share link.
func (c *Client) FetchShareDetail(ctx context.Context, shareURL string) (*Share, error) {
	userID, shareID, err := ParseShareURL(c.baseURL, shareURL)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + apiPath + "shares/" + userID + "/" + shareID + "?a=0&countView=false"

	var out detailResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		c.logger.Warn("taskernet_detail_error", "share_url", shareURL, "error", err.Error())
		return nil, err
	}
	if out.Info == nil {
		c.logger.Warn("taskernet_detail_error", "share_url", shareURL, "error", "missing info")
		return nil, fmt.Errorf("%w: detail response has no info", ErrUnavailable)
	}
	return out.Info, nil
}

// ParseShareURL splits <base>shares/?user=<user>&id=<share> into its raw,
// still percent-encoded, segments.
func ParseShareURL(baseURL, shareURL string) (userID, shareID string, err error) {
	prefix := baseURL + "shares/?user="
	_, rest, ok := strings.Cut(shareURL, prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedShareURL, shareURL)
	}
	userID, shareID, ok = strings.Cut(rest, "&id=")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedShareURL, shareURL)
	}
	if i := strings.IndexAny(shareID, "&#"); i >= 0 {
		shareID = shareID[:i]
	}
	if userID == "" || shareID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedShareURL, shareURL)
	}
	return userID, shareID, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}
	return nil
}
