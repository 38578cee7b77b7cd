package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "stock-price-checker/internal/errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

//go:generate mockgen -package=quote_test -destination=mock_http_client_test.go -source=client.go HTTPClient

// DefaultBaseURL is the freeCodeCamp stock price proxy.
const DefaultBaseURL = "https://stock-price-checker-proxy.freecodecamp.rocks"

const maxBodyBytes = 1 << 20

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches quotes from the upstream proxy. It never retries.
type Client struct {
	baseURL   string
	http      HTTPClient
	limiter   *rate.Limiter
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(u, "/") }
}

// WithLimiter gates outbound requests. A nil limiter disables gating.
func WithLimiter(l *rate.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient builds a Client with a pooled transport and a 10s timeout
// unless overridden by options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: "stock-price-checker/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(10 * time.Second)
	}
	return c
}

// NewHTTPClient returns an *http.Client tuned for a single upstream host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type quoteResponse struct {
	Symbol      string   `json:"symbol"`
	LatestPrice *float64 `json:"latestPrice"`
}

// Price implements Fetcher.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("wait for upstream slot: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/v1/stock/%s/quote", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	log.Tracef("querying upstream quote for %s", symbol)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperrors.New(apperrors.KindUpstream, "quote request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Newf(apperrors.KindUpstream, "unexpected upstream status %d for %s", resp.StatusCode, symbol)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, apperrors.New(apperrors.KindUpstream, "read quote body", err)
	}

	// The proxy answers unknown symbols with a bare JSON string such as
	// "Unknown symbol" instead of an object.
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] == '"' {
		return 0, fmt.Errorf("%s: %w", symbol, apperrors.ErrUnknownSymbol)
	}

	var q quoteResponse
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, apperrors.New(apperrors.KindUpstream, "decode quote", err)
	}
	if q.LatestPrice == nil {
		return 0, fmt.Errorf("%s: %w", symbol, apperrors.ErrUnknownSymbol)
	}
	return *q.LatestPrice, nil
}
