package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stock-price-checker/internal/config"
	"stock-price-checker/internal/handler"
	"stock-price-checker/internal/likes"
	"stock-price-checker/internal/logging"
	"stock-price-checker/internal/metrics"
	"stock-price-checker/internal/quote"
	"stock-price-checker/internal/server"
	"stock-price-checker/internal/stream"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	tomb "gopkg.in/tomb.v2"
)

var (
	Version   string = "1.0.0"
	Buildtime string = "unknown"
)

func main() {
	cfg, help, err := config.Load(os.Args[1:])
	if help {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}

	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logCloser.Close()

	log.Infof("Stock price checker version %s, build time %s", Version, Buildtime)
	if log.GetLevel() > log.InfoLevel {
		log.Infof("Set level to %s", log.GetLevel())
	}

	m := metrics.GetMetrics()

	var limiter *rate.Limiter
	if cfg.Upstream.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Upstream.RPS), cfg.Upstream.Burst)
	}
	client := quote.NewClient(
		quote.WithBaseURL(cfg.Upstream.BaseURL),
		quote.WithHTTPClient(quote.NewHTTPClient(cfg.Upstream.Timeout)),
		quote.WithLimiter(limiter),
		quote.WithUserAgent("stock-price-checker/"+Version),
	)
	fetcher := quote.NewCache(client, cfg.Cache.MaxEntries, cfg.Cache.TTL)
	if cfg.Cache.TTL > 0 {
		log.Infof("Quote cache enabled (ttl %s, %d entries)", cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}

	deps := handler.Deps{
		Quotes:         fetcher,
		Registry:       likes.New(),
		Metrics:        m,
		TrustForwarded: !cfg.Features.IgnoreForwarded,
		Version:        Version,
	}

	var hub *stream.Hub
	if !cfg.Features.DisableStream {
		hub = stream.NewHub(m)
		deps.Events = hub
		deps.Stream = hub
	}

	if cfg.Features.IgnoreForwarded {
		log.Infof("X-Forwarded-For is ignored, clients are identified by transport address")
	}

	srv := server.NewServer(cfg, handler.NewHandler(deps), m)

	var t tomb.Tomb
	t.Go(srv.ListenAndServe)
	t.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer signal.Stop(signals)

		select {
		case s := <-signals:
			log.Infof("%s received, shutting down ...", s)
		case <-t.Dying():
		}

		if hub != nil {
			hub.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	if err := t.Wait(); err != nil {
		log.Errorf("stock price checker stopped: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}
