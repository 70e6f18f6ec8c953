// Package cli provides common process initialization shared by
// cmd/roomsplit, cmd/roomsplit-worker and cmd/roomsplitctl.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"roomsplit/internal/backend"
	"roomsplit/internal/config"
	"roomsplit/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. An unknown level falls back to info;
// Validate reports it.
func NewLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	if out == nil {
		out = os.Stdout
	}
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// Setup loads .env and the environment, builds the logger and validates the
// configuration. The logger is returned even when validation fails.
func Setup(component string, out io.Writer) (*config.Config, *log.Logger, error) {
	LoadEnvFile()
	cfg := config.Load()
	logger := NewLogger(cfg, component, out)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

// MustSetup is Setup for long-running processes: it exits the process on a
// configuration error.
func MustSetup(component string) (*config.Config, *log.Logger) {
	cfg, logger, err := Setup(component, os.Stdout)
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenSQLite builds the SQLite store, and the event publisher when AMQP is
// configured, through f. DATA_BACKEND is ignored: offline tools always work
// on the database file.
func OpenSQLite(ctx context.Context, cfg *config.Config, f backend.Factory) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcfg.Type = backend.SQLiteBackend
	return f.Create(ctx, bcfg)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// received signal is logged.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
