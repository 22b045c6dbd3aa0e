package sheets

import (
	"context"

	"billing/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends one ledger entry as a spreadsheet row.
	LedgerWriter interface {
		AppendEntry(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// LedgerDeleter clears rows whose reference column equals ref. It
	// returns how many rows were cleared.
	LedgerDeleter interface {
		DeleteByReference(ctx context.Context, ref string) (int, error)
	}

	// LedgerMirror is what the worker needs from a spreadsheet backend.
	LedgerMirror interface {
		LedgerWriter
		LedgerDeleter
	}
)
