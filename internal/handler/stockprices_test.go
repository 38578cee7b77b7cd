package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	apperrors "stock-price-checker/internal/errors"
	"stock-price-checker/internal/likes"
	"stock-price-checker/internal/metrics"
	"stock-price-checker/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  []string
}

func (f *fakeQuotes) Price(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: %w", symbol, apperrors.ErrUnknownSymbol)
	}
	return p, nil
}

type recordingPublisher struct {
	events []stream.Event
}

func (p *recordingPublisher) Publish(ev stream.Event) { p.events = append(p.events, ev) }

type fixture struct {
	h        *Handler
	quotes   *fakeQuotes
	registry *likes.Registry
	events   *recordingPublisher
	metrics  *metrics.Metrics
}

func newFixture() *fixture {
	f := &fixture{
		quotes: &fakeQuotes{prices: map[string]float64{
			"GOOG": 172.63,
			"MSFT": 410.5,
			"AAPL": 227.1,
			"AMZN": 186.4,
		}},
		registry: likes.New(),
		events:   &recordingPublisher{},
		metrics:  metrics.New(),
	}
	f.h = NewHandler(Deps{
		Quotes:         f.quotes,
		Registry:       f.registry,
		Events:         f.events,
		Metrics:        f.metrics,
		TrustForwarded: true,
	})
	return f
}

func (f *fixture) get(t *testing.T, target, remote string) map[string]json.RawMessage {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	f.h.Router(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func single(t *testing.T, body map[string]json.RawMessage) map[string]any {
	t.Helper()
	require.Contains(t, body, "stockData")
	var out map[string]any
	require.NoError(t, json.Unmarshal(body["stockData"], &out))
	return out
}

func pair(t *testing.T, body map[string]json.RawMessage) []map[string]any {
	t.Helper()
	require.Contains(t, body, "stockData")
	var out []map[string]any
	require.NoError(t, json.Unmarshal(body["stockData"], &out))
	require.Len(t, out, 2)
	return out
}

func errorText(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	require.Contains(t, body, "error")
	var msg string
	require.NoError(t, json.Unmarshal(body["error"], &msg))
	return msg
}

func TestStockPrices_SingleStock(t *testing.T) {
	f := newFixture()

	data := single(t, f.get(t, "/api/stock-prices?stock=goog", "192.0.2.1:5000"))
	assert.Equal(t, "GOOG", data["stock"])
	assert.Equal(t, 172.63, data["price"])
	assert.Equal(t, float64(0), data["likes"])
	assert.NotContains(t, data, "rel_likes")
	assert.Equal(t, []string{"GOOG"}, f.quotes.calls)
}

func TestStockPrices_LikeTwiceFromSameClient(t *testing.T) {
	f := newFixture()

	first := single(t, f.get(t, "/api/stock-prices?stock=msft&like=true", "192.0.2.1:5000"))
	second := single(t, f.get(t, "/api/stock-prices?stock=msft&like=true", "192.0.2.1:6000"))

	assert.Equal(t, float64(1), first["likes"])
	assert.Equal(t, first["likes"], second["likes"])
	assert.Len(t, f.events.events, 1)
	assert.Equal(t, stream.Event{Stock: "MSFT", Likes: 1, At: f.events.events[0].At}, f.events.events[0])

	s := f.metrics.GetSnapshot()
	assert.EqualValues(t, 1, s.LikesAccepted)
	assert.EqualValues(t, 1, s.LikesDuplicate)
}

func TestStockPrices_LikesFromDistinctClients(t *testing.T) {
	f := newFixture()

	f.get(t, "/api/stock-prices?stock=MSFT&like=true", "192.0.2.1:5000")
	data := single(t, f.get(t, "/api/stock-prices?stock=MSFT&like=true", "192.0.2.2:5000"))
	assert.Equal(t, float64(2), data["likes"])
}

func TestStockPrices_ForwardedHeaderIdentifiesClient(t *testing.T) {
	f := newFixture()

	req := func(forwarded string) {
		r := httptest.NewRequest(http.MethodGet, "/api/stock-prices?stock=GOOG&like=true", nil)
		r.RemoteAddr = "10.0.0.1:80"
		r.Header.Set("X-Forwarded-For", forwarded)
		f.h.Router(httptest.NewRecorder(), r)
	}
	req("198.51.100.1")
	req("198.51.100.1")
	req("198.51.100.2")

	assert.Equal(t, 2, f.registry.Count("GOOG"))
}

func TestStockPrices_LikeOnlyWhenExactlyTrue(t *testing.T) {
	f := newFixture()

	for _, v := range []string{"TRUE", "1", "yes", ""} {
		f.get(t, "/api/stock-prices?stock=GOOG&like="+v, "192.0.2.1:5000")
	}
	assert.Equal(t, 0, f.registry.Count("GOOG"))
}

func TestStockPrices_TwoStocksRelativeLikes(t *testing.T) {
	f := newFixture()
	f.registry.Register("GOOG", "someone")
	f.registry.Register("GOOG", "someone-else")
	f.registry.Register("MSFT", "someone")

	data := pair(t, f.get(t, "/api/stock-prices?stock=goog&stock=msft", "192.0.2.1:5000"))

	assert.Equal(t, "GOOG", data[0]["stock"])
	assert.Equal(t, "MSFT", data[1]["stock"])
	assert.Equal(t, float64(1), data[0]["rel_likes"])
	assert.Equal(t, float64(-1), data[1]["rel_likes"])
	for _, d := range data {
		assert.NotContains(t, d, "likes")
		assert.Contains(t, d, "price")
	}
}

func TestStockPrices_TwoStocksLikedTogether(t *testing.T) {
	f := newFixture()

	data := pair(t, f.get(t, "/api/stock-prices?stock[]=aapl&stock[]=amzn&like=true", "192.0.2.9:1"))

	assert.Equal(t, 1, f.registry.Count("AAPL"))
	assert.Equal(t, 1, f.registry.Count("AMZN"))
	assert.Equal(t, data[0]["rel_likes"].(float64)+data[1]["rel_likes"].(float64), float64(0))
	assert.Len(t, f.events.events, 2)
}

func TestStockPrices_TooManySymbols(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=GOOG&stock=MSFT&stock=AAPL&like=true", "192.0.2.1:5000")
	assert.Equal(t, "Maximum 2 stocks allowed", errorText(t, body))
	assert.NotContains(t, body, "stockData")

	assert.Empty(t, f.quotes.calls)
	assert.Equal(t, 0, f.registry.Len())
	assert.EqualValues(t, 1, f.metrics.GetSnapshot().FailedRequests)
}

func TestStockPrices_TooManySymbolsCountsBlankValues(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=GOOG&stock=&stock=MSFT&like=true", "192.0.2.1:5000")
	assert.Equal(t, "Maximum 2 stocks allowed", errorText(t, body))
	assert.Empty(t, f.quotes.calls)
	assert.Equal(t, 0, f.registry.Len())
}

func TestStockPrices_BlankValueBesideSymbol(t *testing.T) {
	f := newFixture()

	data := single(t, f.get(t, "/api/stock-prices?stock=GOOG&stock=", "192.0.2.1:5000"))
	assert.Equal(t, "GOOG", data["stock"])
}

func TestStockPrices_IndexedArrayForm(t *testing.T) {
	f := newFixture()

	data := pair(t, f.get(t, "/api/stock-prices?stock%5B1%5D=MSFT&stock%5B0%5D=GOOG", "192.0.2.1:5000"))
	assert.Equal(t, "GOOG", data[0]["stock"])
	assert.Equal(t, "MSFT", data[1]["stock"])
	assert.Equal(t, []string{"GOOG", "MSFT"}, f.quotes.calls)

	body := f.get(t, "/api/stock-prices?stock%5B0%5D=GOOG&stock%5B1%5D=MSFT&stock%5B2%5D=AAPL", "192.0.2.1:5000")
	assert.Equal(t, "Maximum 2 stocks allowed", errorText(t, body))
}

func TestStockPrices_InvalidSymbol(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=notreal", "192.0.2.1:5000")
	assert.Equal(t, "Invalid stock symbol: NOTREAL", errorText(t, body))
}

func TestStockPrices_InvalidSecondSymbolKeepsFirstLike(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=GOOG&stock=bogus&like=true", "192.0.2.1:5000")
	assert.Equal(t, "Invalid stock symbol: BOGUS", errorText(t, body))

	// Likes are not rolled back across a failed batch.
	assert.Equal(t, 1, f.registry.Count("GOOG"))
	assert.Equal(t, 0, f.registry.Count("BOGUS"))
}

func TestStockPrices_InvalidFirstSymbolStopsBatch(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=bogus&stock=GOOG&like=true", "192.0.2.1:5000")
	assert.Equal(t, "Invalid stock symbol: BOGUS", errorText(t, body))
	assert.Equal(t, []string{"BOGUS"}, f.quotes.calls)
	assert.Equal(t, 0, f.registry.Len())
}

func TestStockPrices_MissingSymbol(t *testing.T) {
	f := newFixture()

	body := f.get(t, "/api/stock-prices?stock=", "192.0.2.1:5000")
	assert.Equal(t, "Missing stock symbol", errorText(t, body))
}

func TestStockPrices_MethodNotAllowed(t *testing.T) {
	f := newFixture()

	rr := httptest.NewRecorder()
	f.h.Router(rr, httptest.NewRequest(http.MethodPost, "/api/stock-prices?stock=GOOG", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture()
	f.get(t, "/api/stock-prices?stock=MSFT&like=true", "192.0.2.1:5000")

	rr := httptest.NewRecorder()
	f.h.Router(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "stock-price-checker", resp.Service)
	assert.Equal(t, 1, resp.Likes.Symbols)
	assert.Equal(t, []likes.Entry{{Stock: "MSFT", Likes: 1}}, resp.Likes.Stocks)
	assert.EqualValues(t, 1, resp.Metrics.LikesAccepted)
}

func TestRouter_StreamDisabled(t *testing.T) {
	f := newFixture()

	rr := httptest.NewRecorder()
	f.h.Router(rr, httptest.NewRequest(http.MethodGet, "/api/stock-prices/stream", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
