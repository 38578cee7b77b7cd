package handler

import (
	"cmp"
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"stock-price-checker/internal/anonymize"
	apperrors "stock-price-checker/internal/errors"
	"stock-price-checker/internal/likes"
	"stock-price-checker/internal/stream"

	log "github.com/sirupsen/logrus"
)

// MaxSymbols is the largest number of stocks accepted in one request.
const MaxSymbols = 2

type errorResponse struct {
	Error string `json:"error"`
}

type stockLikes struct {
	Stock string  `json:"stock"`
	Price float64 `json:"price"`
	Likes int     `json:"likes"`
}

type stockRelLikes struct {
	Stock    string  `json:"stock"`
	Price    float64 `json:"price"`
	RelLikes int     `json:"rel_likes"`
}

type singleResponse struct {
	StockData stockLikes `json:"stockData"`
}

type pairResponse struct {
	StockData [2]stockRelLikes `json:"stockData"`
}

// stockPrices answers GET /api/stock-prices. Every outcome, including
// errors, is written with status 200; callers inspect the "error" field.
func (s *Handler) stockPrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "only GET method allowed"})
		return
	}

	query := r.URL.Query()
	symbols := requestedSymbols(query)
	like := query.Get("like") == "true"
	id := anonymize.FromRequest(r, s.trustForwarded)

	data, err := s.lookup(r.Context(), symbols, like, id)
	if err != nil {
		s.metrics.IncrementFailedRequest()
		log.WithFields(log.Fields{
			"symbols": symbols,
			"client":  id,
		}).Debugf("stock price lookup failed: %v", err)
		writeJSON(w, http.StatusOK, errorResponse{Error: apperrors.Message(err)})
		return
	}

	writeJSON(w, http.StatusOK, shape(data))
}

// requestedSymbols collects the stock parameter in query order from the
// repeated (stock=), bracket (stock[]=) and indexed (stock[0]=) forms.
// Values are trimmed but blanks are kept so the caller can count what was sent.
func requestedSymbols(query url.Values) []string {
	var out []string
	for _, key := range []string{"stock", "stock[]"} {
		for _, v := range query[key] {
			out = append(out, strings.TrimSpace(v))
		}
	}

	type indexed struct {
		index  int
		values []string
	}
	var keyed []indexed
	for key, values := range query {
		inner, ok := strings.CutPrefix(key, "stock[")
		if !ok {
			continue
		}
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok || inner == "" {
			continue
		}
		n, err := strconv.Atoi(inner)
		if err != nil || n < 0 {
			continue
		}
		keyed = append(keyed, indexed{index: n, values: values})
	}
	slices.SortFunc(keyed, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })
	for _, k := range keyed {
		for _, v := range k.values {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// lookup fetches each symbol in order and, when like is set, registers the
// client's like right after that symbol's price resolves. A failure on a
// later symbol does not undo likes already recorded for earlier ones.
// The symbol limit applies to every value sent, blank ones included.
func (s *Handler) lookup(ctx context.Context, requested []string, like bool, id string) ([]stockLikes, error) {
	if len(requested) > MaxSymbols {
		return nil, apperrors.TooManySymbols(MaxSymbols)
	}
	symbols := slices.DeleteFunc(slices.Clone(requested), func(v string) bool { return v == "" })
	if len(symbols) == 0 {
		return nil, apperrors.MissingSymbol()
	}

	out := make([]stockLikes, 0, len(symbols))
	for _, raw := range symbols {
		symbol := likes.Normalize(raw)

		price, err := s.quotes.Price(ctx, symbol)
		s.metrics.RecordQuoteFetch(err)
		if err != nil {
			return nil, apperrors.InvalidSymbol(symbol, err)
		}

		if like {
			accepted := s.registry.Register(symbol, id)
			s.metrics.RecordLike(accepted)
			if accepted && s.events != nil {
				s.events.Publish(stream.Event{
					Stock: symbol,
					Likes: s.registry.Count(symbol),
					At:    time.Now().UTC(),
				})
			}
		}

		out = append(out, stockLikes{
			Stock: symbol,
			Price: price,
			Likes: s.registry.Count(symbol),
		})
	}
	return out, nil
}

func shape(data []stockLikes) interface{} {
	if len(data) == 1 {
		return singleResponse{StockData: data[0]}
	}

	a, b := data[0], data[1]
	return pairResponse{StockData: [2]stockRelLikes{
		{Stock: a.Stock, Price: a.Price, RelLikes: a.Likes - b.Likes},
		{Stock: b.Stock, Price: b.Price, RelLikes: b.Likes - a.Likes},
	}}
}
