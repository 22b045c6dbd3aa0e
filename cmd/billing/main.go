package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"billing/internal/amqp"
	"billing/internal/cache"
	"billing/internal/cli"
	"billing/internal/config"
	apphttp "billing/internal/http"
	applog "billing/internal/log"
	"billing/internal/numbering"
	"billing/internal/services"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run logs its own failures; it returns so deferred cleanup runs before
// main picks the exit code.
func run() error {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	store, err := cli.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close backend", applog.FieldError, err)
		}
	}()

	alloc, err := numbering.New(cfg.InvoiceNumbering)
	if err != nil {
		logger.Error("Invalid numbering strategy", applog.FieldError, err)
		return err
	}

	// Events are best effort: without a broker the worker falls back to its
	// periodic pending scan.
	var events services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, events disabled", applog.FieldError, err)
		} else {
			defer client.Close()
			events = client
		}
	}

	summaries := services.NewSummaryCache()
	caches := cache.NewManager()
	caches.Register("summaries", summaries.LRU())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	invoiceCfg := services.DefaultInvoiceConfig()
	invoiceCfg.MaxAttempts = cfg.InvoiceMaxAttempts
	invoiceCfg.RetryBackoff = cfg.InvoiceRetryBackoff

	repo := store.Repository
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Invoices:  services.NewInvoiceService(repo, alloc, events, summaries, invoiceCfg),
		Ledger:    services.NewLedgerService(repo, events, summaries),
		Admin:     services.NewAdminService(repo, cfg.ResetSecret, summaries),
		Pinger:    repo,
		Summaries: summaries,
		Logger:    logger,
		RateLimit: cfg.RateLimit,

		TrustedProxies: cfg.TrustedProxies,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billing server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"numbering", cfg.InvoiceNumbering,
			"amqp", events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
