// Package backend opens the repository selected by DATA_BACKEND.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"billing/internal/config"
	"billing/internal/storage"
)

// Kind names a storage engine.
type Kind string

const (
	SQLite   Kind = config.BackendSQLite
	Postgres Kind = config.BackendPostgres
	Memory   Kind = config.BackendMemory
)

// Kinds lists the engines in the order they are documented.
var Kinds = []Kind{SQLite, Postgres, Memory}

func (k Kind) valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Options selects and locates a backend.
type Options struct {
	Kind        Kind
	SQLitePath  string
	PostgresDSN string

	// ConnectTimeout bounds how long Open keeps retrying a Postgres server
	// that is not accepting connections yet. Zero means a single attempt.
	ConnectTimeout time.Duration
}

// OptionsFrom extracts backend options from the application config.
func OptionsFrom(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, fmt.Errorf("nil config")
	}
	opts := Options{
		Kind:           Kind(cfg.DataBackend),
		SQLitePath:     cfg.SQLiteDBPath,
		PostgresDSN:    cfg.DatabaseURL,
		ConnectTimeout: cfg.DBConnectTimeout,
	}
	return opts, opts.check()
}

func (o Options) check() error {
	switch {
	case !o.Kind.valid():
		return fmt.Errorf("unknown backend %q (want one of %v)", o.Kind, Kinds)
	case o.Kind == SQLite && o.SQLitePath == "":
		return fmt.Errorf("sqlite backend needs a database path")
	case o.Kind == Postgres && o.PostgresDSN == "":
		return fmt.Errorf("postgres backend needs a database URL")
	}
	return nil
}

// Handle is an open repository and the function releasing it.
type Handle struct {
	Kind       Kind
	Repository storage.Repository
	close      func() error
}

// Close releases the repository. It is safe on a nil handle.
func (h *Handle) Close() error {
	if h == nil || h.close == nil {
		return nil
	}
	return h.close()
}

// Open connects to the backend described by opts. SQL backends are migrated
// before Open returns.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.check(); err != nil {
		return nil, err
	}

	switch opts.Kind {
	case SQLite:
		repo, err := storage.NewSQLiteRepository(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		logger.Info("Initialized SQLite backend", "db_path", opts.SQLitePath)
		return &Handle{Kind: SQLite, Repository: repo, close: repo.Close}, nil

	case Postgres:
		repo, err := openPostgres(ctx, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		logger.Info("Initialized Postgres backend")
		return &Handle{Kind: Postgres, Repository: repo, close: repo.Close}, nil
	}

	logger.Warn("Initialized memory backend, data is lost on restart")
	return &Handle{Kind: Memory, Repository: storage.NewMemoryRepository()}, nil
}

// openPostgres retries while the server comes up, as it often does under
// compose when the app container wins the race.
func openPostgres(ctx context.Context, opts Options, logger *slog.Logger) (*storage.SQLRepository, error) {
	if opts.ConnectTimeout <= 0 {
		return storage.NewPostgresRepository(ctx, opts.PostgresDSN)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = opts.ConnectTimeout

	var repo *storage.SQLRepository
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := storage.NewPostgresRepository(ctx, opts.PostgresDSN)
		if err != nil {
			logger.Warn("Postgres not ready", "attempt", attempt, "error", err)
			return err
		}
		repo = r
		return nil
	}, backoff.WithContext(policy, ctx))
	return repo, err
}
