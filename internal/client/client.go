// Package client talks to the analysis backend: the streamed chat endpoint
// and the plain JSON endpoints behind it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"finchat/internal/config"
	"finchat/pkg/logger"
)

const (
	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
	defaultTimeout            = 30 * time.Second
)

type Client struct {
	baseURL        string
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker[[]byte]
	requestTimeout time.Duration
}

func New(cfg config.ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	c := NewWithHTTPClient(cfg.BaseURL, NewHTTPClient(timeout))
	c.requestTimeout = timeout
	return c
}

// NewWithHTTPClient is used by tests to point the client at an httptest server.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           hc,
		breaker:        newBreaker(),
		requestTimeout: defaultTimeout,
	}
}

// newBreaker fails fast while the backend keeps returning errors. Client
// errors (4xx) do not count as failures.
func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
	})
}

// Analyze runs the multi-agent analysis for a symbol.
func (c *Client) Analyze(ctx context.Context, symbol string, out interface{}) error {
	return c.do(ctx, http.MethodPost, "/agents/analyze/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil, out)
}

// Scan returns scanner results, e.g. kind "bullish".
func (c *Client) Scan(ctx context.Context, kind string, out interface{}) error {
	if kind == "" {
		kind = "bullish"
	}
	return c.do(ctx, http.MethodPost, "/agents/scanner/"+url.PathEscape(kind), nil, nil, out)
}

func (c *Client) StockInfo(ctx context.Context, symbol string, out interface{}) error {
	return c.do(ctx, http.MethodGet, "/stock_info/"+url.PathEscape(strings.ToUpper(symbol)), nil, nil, out)
}

func (c *Client) MarketIndices(ctx context.Context, out interface{}) error {
	return c.do(ctx, http.MethodGet, "/market/indices", nil, nil, out)
}

func (c *Client) Trending(ctx context.Context, out interface{}) error {
	return c.do(ctx, http.MethodGet, "/market/trending", nil, nil, out)
}

func (c *Client) GlobalIndices(ctx context.Context, out interface{}) error {
	return c.do(ctx, http.MethodGet, "/market/global", nil, nil, out)
}

type NewsRequest struct {
	Symbols []string `json:"symbols"`
	Limit   int      `json:"limit"`
}

func (c *Client) News(ctx context.Context, req NewsRequest, out interface{}) error {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	return c.do(ctx, http.MethodPost, "/news/fetch", nil, req, out)
}

type Watchlist struct {
	UserID    string    `json:"user_id"`
	Symbols   []string  `json:"symbols"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Client) Watchlist(ctx context.Context, userID string) (*Watchlist, error) {
	var w Watchlist
	if err := c.do(ctx, http.MethodGet, "/watchlist/"+url.PathEscape(userID), nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) AddToWatchlist(ctx context.Context, userID, symbol string) (*Watchlist, error) {
	var w Watchlist
	q := url.Values{"symbol": {symbol}}
	if err := c.do(ctx, http.MethodPost, "/watchlist/"+url.PathEscape(userID)+"/add", q, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) RemoveFromWatchlist(ctx context.Context, userID, symbol string) (*Watchlist, error) {
	var w Watchlist
	path := "/watchlist/" + url.PathEscape(userID) + "/remove/" + url.PathEscape(symbol)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

type KeyStatus struct {
	IsSet     bool   `json:"is_set"`
	MaskedKey string `json:"masked_key"`
}

func (c *Client) KeyStatus(ctx context.Context) (*KeyStatus, error) {
	var ks KeyStatus
	if err := c.do(ctx, http.MethodGet, "/settings/gemini-keys", nil, nil, &ks); err != nil {
		return nil, err
	}
	return &ks, nil
}

func (c *Client) UpdateKey(ctx context.Context, key string) error {
	body := map[string]string{"gemini_api_key": key}
	return c.do(ctx, http.MethodPost, "/settings/gemini-keys", nil, body, nil)
}

// do bounds the whole exchange, body read included, by requestTimeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query, in)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &APIError{StatusCode: http.StatusServiceUnavailable, Detail: "Backend is unavailable, please try again later"}
		}
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in interface{}) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: readDetail(resp)}
	}
	return io.ReadAll(resp.Body)
}
