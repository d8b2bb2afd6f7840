package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/seantiz/anvil/internal/engine"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "anvil.db"

	envMaxThreads    = "ANVIL_MAX_THREADS"
	envSubmitAckWait = "ANVIL_SUBMIT_ACK_WAIT"
	envPollInterval  = "ANVIL_POLL_INTERVAL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr   string `env:"ANVIL_LISTEN_ADDR" envDefault:":8080"`
	DBPath       string `env:"ANVIL_DB_PATH" envDefault:"anvil.db"`
	LogLevelName string `env:"ANVIL_LOG_LEVEL" envDefault:"info"`

	// MaxThreads of zero sizes the pool to the logical core count.
	MaxThreads    int           `env:"ANVIL_MAX_THREADS" envDefault:"0"`
	LogActions    bool          `env:"ANVIL_LOG_ACTIONS" envDefault:"false"`
	SubmitAckWait time.Duration `env:"ANVIL_SUBMIT_ACK_WAIT" envDefault:"2ms"`
	PollInterval  time.Duration `env:"ANVIL_POLL_INTERVAL" envDefault:"100ms"`

	LogLevel slog.Level
}

// Load reads configuration from the process environment with sensible
// defaults.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.MaxThreads < 0 {
		return Config{}, fmt.Errorf("%s must not be negative, got %d", envMaxThreads, cfg.MaxThreads)
	}
	if cfg.SubmitAckWait < 0 {
		return Config{}, fmt.Errorf("%s must not be negative, got %s", envSubmitAckWait, cfg.SubmitAckWait)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %s", envPollInterval, cfg.PollInterval)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

// Engine returns the engine tunables carried by cfg.
func (c Config) Engine() engine.Config {
	return engine.Config{
		MaxThreads:    c.MaxThreads,
		SubmitAckWait: c.SubmitAckWait,
		PollInterval:  c.PollInterval,
		LogActions:    c.LogActions,
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
