package config

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds all configuration parameters
type Config struct {
	// Server configuration
	Server ServerConfig `group:"server" namespace:"server" env-namespace:"SPC_SERVER"`

	// Upstream quote service
	Upstream UpstreamConfig `group:"upstream" namespace:"upstream" env-namespace:"SPC_UPSTREAM"`

	// Quote cache
	Cache CacheConfig `group:"cache" namespace:"cache" env-namespace:"SPC_CACHE"`

	// Logging configuration
	Logging LoggingConfig `group:"logging" namespace:"logging" env-namespace:"SPC_LOG"`

	// Feature flags
	Features FeatureConfig `group:"features" namespace:"features" env-namespace:"SPC_FEAT"`
}

type ServerConfig struct {
	Port              int           `short:"p" long:"port" env:"PORT" description:"Port to listen on" default:"3000"`
	ReadTimeout       time.Duration `long:"read-timeout" env:"READ_TIMEOUT" description:"HTTP read timeout" default:"15s"`
	ReadHeaderTimeout time.Duration `long:"read-header-timeout" env:"READ_HEADER_TIMEOUT" description:"HTTP read header timeout" default:"5s"`
	WriteTimeout      time.Duration `long:"write-timeout" env:"WRITE_TIMEOUT" description:"HTTP write timeout" default:"20s"`
	IdleTimeout       time.Duration `long:"idle-timeout" env:"IDLE_TIMEOUT" description:"HTTP idle timeout" default:"120s"`
	ShutdownTimeout   time.Duration `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" description:"Graceful shutdown timeout" default:"10s"`
	MaxHeaderSize     int           `long:"max-header-size" env:"MAX_HEADER_SIZE" description:"Maximum HTTP header size" default:"8192"`
}

type UpstreamConfig struct {
	BaseURL string        `long:"base-url" env:"BASE_URL" description:"Quote proxy base URL" default:"https://stock-price-checker-proxy.freecodecamp.rocks"`
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Upstream request timeout" default:"10s"`
	RPS     float64       `long:"rps" env:"RPS" description:"Upstream requests per second (0 disables the limiter)" default:"10"`
	Burst   int           `long:"burst" env:"BURST" description:"Upstream burst capacity" default:"20"`
}

type CacheConfig struct {
	TTL        time.Duration `long:"ttl" env:"TTL" description:"Quote cache TTL (0 disables caching)" default:"30s"`
	MaxEntries uint          `long:"max-entries" env:"MAX_ENTRIES" description:"Maximum number of cached quotes" default:"1024"`
}

type LoggingConfig struct {
	Level         string `short:"v" long:"verbose" env:"VERBOSE" description:"Log level (trace, debug, info, warn, error)" default:"info"`
	Format        string `long:"log-format" env:"FORMAT" description:"Log format (text, json)" default:"text"`
	Output        string `long:"log-output" env:"OUTPUT" description:"Log output (stdout, stderr, file path)" default:"stdout"`
	DisableColors bool   `long:"disable-colors" env:"DISABLE_COLORS" description:"Disable colored output"`

	// File rotation
	MaxSize    int  `long:"log-max-size-mb" env:"MAX_SIZE_MB" description:"Maximum log file size in MB" default:"100"`
	MaxBackups int  `long:"log-max-backups" env:"MAX_BACKUPS" description:"Maximum number of backup files" default:"5"`
	MaxAge     int  `long:"log-max-age-days" env:"MAX_AGE_DAYS" description:"Maximum age of log files in days" default:"30"`
	Compress   bool `long:"log-compress" env:"COMPRESS" description:"Compress backup log files"`
}

type FeatureConfig struct {
	IgnoreForwarded bool `long:"ignore-forwarded" env:"IGNORE_FORWARDED" description:"Identify clients by transport address only, ignoring X-Forwarded-For"`
	DisableStream   bool `long:"disable-stream" env:"DISABLE_STREAM" description:"Disable the websocket like stream"`
	EnablePprof     bool `long:"enable-pprof" env:"ENABLE_PPROF" description:"Expose /debug/pprof endpoints"`
}

// Load parses args (without the program name) and environment variables.
// The returned bool reports that help was requested and printed.
func Load(args []string) (*Config, bool, error) {
	config := &Config{}
	parser := flags.NewParser(config, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, false, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base url must not be empty")
	}

	if c.Upstream.RPS < 0 {
		return fmt.Errorf("invalid upstream rps: %v", c.Upstream.RPS)
	}

	if c.Upstream.RPS > 0 && c.Upstream.Burst <= 0 {
		return fmt.Errorf("upstream burst must be positive when rps is set")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %s", c.Cache.TTL)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
