package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"stock-price-checker/internal/config"
	"stock-price-checker/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// Server wraps the HTTP listener and its middleware chain
type Server struct {
	httpServer *http.Server
	config     *config.Config
	metrics    *metrics.Metrics
	errorLog   io.Closer
}

// NewServer creates a new server instance around handler
func NewServer(cfg *config.Config, handler http.Handler, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.GetMetrics()
	}
	server := &Server{config: cfg, metrics: m}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Features.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	// net/http internal errors go through logrus
	errorWriter := log.StandardLogger().WriterLevel(log.WarnLevel)
	server.errorLog = errorWriter

	server.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           server.withMiddleware(mux),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderSize,
		ErrorLog:          stdlog.New(errorWriter, "http: ", 0),
	}

	return server
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	log.Infof("stock price checker listening on %s", l.Addr())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured port.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("stock price checker shutting down gracefully...")
	defer s.errorLog.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("shutdown error: %v", err)
		return err
	}

	log.Info("stock price checker shutdown complete")
	return nil
}

// withMiddleware adds middleware to the handler
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	return s.requestIDMiddleware(
		s.loggingMiddleware(
			s.recoveryMiddleware(
				s.corsMiddleware(handler),
			),
		),
	)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs all requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"request_id": r.Header.Get(requestIDHeader),
			"method":     r.Method,
			"url":        r.RequestURI,
			"remote":     r.RemoteAddr,
			"status":     ww.statusCode,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
		}).Info("Request processed")
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.WithFields(log.Fields{
					"error":      err,
					"request_id": r.Header.Get(requestIDHeader),
					"method":     r.Method,
					"url":        r.RequestURI,
					"remote":     r.RemoteAddr,
				}).Error("Panic recovered")

				s.metrics.IncrementPanic()

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers; the API is public and read-only.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack is required by the websocket upgrade on the like stream.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
