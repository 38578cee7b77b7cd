package handler

import (
	"net/http"
	"time"

	"stock-price-checker/internal/likes"
	"stock-price-checker/internal/metrics"
	"stock-price-checker/internal/quote"
	"stock-price-checker/internal/stream"

	log "github.com/sirupsen/logrus"
)

// Deps are the collaborators a Handler needs. Events and Stream may be nil.
type Deps struct {
	Quotes   quote.Fetcher
	Registry *likes.Registry
	Events   stream.Publisher
	Stream   http.Handler
	Metrics  *metrics.Metrics

	// TrustForwarded makes X-Forwarded-For the source of the client address.
	TrustForwarded bool
	Version        string
}

type Handler struct {
	quotes         quote.Fetcher
	registry       *likes.Registry
	events         stream.Publisher
	stream         http.Handler
	metrics        *metrics.Metrics
	trustForwarded bool
	version        string
}

func NewHandler(deps Deps) *Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.GetMetrics()
	}
	return &Handler{
		quotes:         deps.Quotes,
		registry:       deps.Registry,
		events:         deps.Events,
		stream:         deps.Stream,
		metrics:        m,
		trustForwarded: deps.TrustForwarded,
		version:        deps.Version,
	}
}

func (s *Handler) Router(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	switch r.URL.Path {
	case "/api/stock-prices", "/api/stock-prices/":
		s.stockPrices(w, r)

	case "/api/stock-prices/stream":
		if s.stream == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "like stream disabled"})
			return
		}
		s.stream.ServeHTTP(w, r)
		return

	case "/status":
		s.status(w, r)

	case "/healthz":
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))

	case "/metrics":
		s.metrics.HTTPHandler(w, r)

	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	}

	duration := time.Since(start)
	s.metrics.RecordRequest(duration)
	log.Debugf("request %s %s from %s served in %s", r.Method, r.RequestURI, r.RemoteAddr, duration)
}

// ServeHTTP lets a Handler be mounted directly.
func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router(w, r)
}

type statusResponse struct {
	Service string           `json:"service"`
	Version string           `json:"version"`
	Metrics metrics.Snapshot `json:"metrics"`
	Likes   likesSummary     `json:"likes"`
}

type likesSummary struct {
	Symbols int           `json:"symbols"`
	Stocks  []likes.Entry `json:"stocks"`
}

func (s *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "only GET method allowed"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Service: "stock-price-checker",
		Version: s.version,
		Metrics: s.metrics.GetSnapshot(),
		Likes: likesSummary{
			Symbols: s.registry.Len(),
			Stocks:  s.registry.Snapshot(),
		},
	})
}
