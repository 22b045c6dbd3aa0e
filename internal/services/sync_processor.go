package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"billing/internal/sheets"
	"billing/internal/storage"
)

type SyncProcessorConfig struct {
	PollInterval time.Duration // how often pending entries are looked for
	BatchSize    int           // entries mirrored per pass
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{PollInterval: 30 * time.Second, BatchSize: 50}
}

// SyncProcessor copies ledger entries that are not mirrored yet to the
// spreadsheet. Run polls on a timer; event handlers call ProcessPending
// directly. Passes never overlap, so an entry is not appended twice by
// concurrent passes.
type SyncProcessor struct {
	repo   storage.Repository
	sheets sheets.LedgerWriter
	config SyncProcessorConfig

	pass chan struct{} // one-slot semaphore held for a whole pass
}

func NewSyncProcessor(repo storage.Repository, writer sheets.LedgerWriter, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &SyncProcessor{
		repo:   repo,
		sheets: writer,
		config: config,
		pass:   make(chan struct{}, 1),
	}
}

// Run mirrors pending entries immediately and then every PollInterval
// until ctx is done. Failed passes are logged and retried on the next
// tick. It returns ctx.Err().
func (p *SyncProcessor) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := p.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Ledger mirror pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Sync processor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessPending mirrors one batch and returns how many entries were
// written. Entries that fail stay pending; every failure is reported in
// the returned error.
func (p *SyncProcessor) ProcessPending(ctx context.Context) (int, error) {
	select {
	case p.pass <- struct{}{}:
		defer func() { <-p.pass }()
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	entries, err := p.repo.PendingMirror(ctx, p.config.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list pending entries")
	}
	if len(entries) == 0 {
		return 0, nil
	}
	slog.DebugContext(ctx, "Mirroring ledger batch", "count", len(entries))

	var (
		mirrored int
		failures []error
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return mirrored, err
		}
		log := slog.With("transaction_id", entry.ID, "reference", entry.Reference)

		ref, err := p.sheets.AppendEntry(ctx, entry)
		if err != nil {
			log.WarnContext(ctx, "Failed to mirror ledger entry", "error", err)
			failures = append(failures, errors.Wrapf(err, "append entry %d", entry.ID))
			continue
		}
		if err := p.repo.MarkMirrored(ctx, entry.ID); err != nil {
			// The row is in the sheet already; the next pass appends it again.
			log.ErrorContext(ctx, "Failed to mark entry as mirrored", "error", err, "sheets_ref", ref)
			failures = append(failures, errors.Wrapf(err, "mark entry %d", entry.ID))
			continue
		}
		mirrored++
		log.InfoContext(ctx, "Mirrored ledger entry", "sheets_ref", ref)
	}
	return mirrored, errors.Join(failures...)
}
