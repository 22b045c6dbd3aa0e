// Package cli provides common CLI initialization utilities shared by
// cmd/billing and cmd/billing-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"billing/internal/backend"
	"billing/internal/config"
	applog "billing/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(level, format, component string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Format:    format,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", applog.FieldError, err)
	}
	return logger
}

// LoadAndValidateConfig loads configuration and validates it with validate
// (normally Config.Validate or Config.ValidateWorker). It exits the process
// on failure.
func LoadAndValidateConfig(validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		slog.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the repository named in cfg. Failures are logged
// before they are returned.
func OpenBackend(ctx context.Context, cfg *config.Config) (*backend.Handle, error) {
	opts, err := backend.OptionsFrom(cfg)
	if err != nil {
		slog.Error("Invalid backend configuration", applog.FieldError, err)
		return nil, err
	}
	handle, err := backend.Open(ctx, opts, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize backend", applog.FieldError, err, "backend", opts.Kind)
		return nil, err
	}
	return handle, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
