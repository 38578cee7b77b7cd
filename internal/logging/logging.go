package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"stock-price-checker/internal/config"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the standard logrus logger from cfg. File output is
// rotated by lumberjack; the returned closer flushes and closes it.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	return configure(log.StandardLogger(), cfg)
}

func configure(logger *log.Logger, cfg config.LoggingConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{
			TimestampFormat:   time.RFC3339,
			DisableHTMLEscape: true,
		})
	case "text", "":
		logger.SetFormatter(&log.TextFormatter{
			DisableColors:   cfg.DisableColors,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	switch cfg.Output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
		return nopCloser{}, nil
	case "stderr":
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	// File output with rotation
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	logger.SetOutput(rotator)
	return rotator, nil
}
