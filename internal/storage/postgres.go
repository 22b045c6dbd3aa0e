package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	pgUniqueViolation   = "23505"
	invoiceNoConstraint = "invoices_invoice_no_key"
)

// postgresDialect relies on the row lock taken by the counter upsert to
// serialise allocation per day; the unique index backs it.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) CaseInsensitiveLike() string { return "ILIKE" }

func (postgresDialect) ExactSum() bool { return true }

func (postgresDialect) IsDuplicateInvoiceNo(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == invoiceNoConstraint
	}
	return false
}

// NewPostgresRepository connects through pgx's database/sql driver and
// migrates the schema.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*SQLRepository, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations("postgres", databaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newSQLRepository(db, postgresDialect{}), nil
}
