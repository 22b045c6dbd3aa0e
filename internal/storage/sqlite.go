package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"billing/internal/core"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqliteDialect relies on _txlock=immediate: every transaction takes the
// database write lock at BEGIN, so counter upserts never interleave.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) CaseInsensitiveLike() string { return "LIKE" }

// ExactSum is false: amounts are TEXT and SQLite's SUM converts them to REAL.
func (sqliteDialect) ExactSum() bool { return false }

func (sqliteDialect) IsDuplicateInvoiceNo(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	msg := se.Error()
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
	case sqlite3.SQLITE_CONSTRAINT:
		if !strings.Contains(msg, "UNIQUE") {
			return false
		}
	default:
		return false
	}
	return strings.Contains(msg, "invoices.invoice_no")
}

// SQLiteDSN builds the connection string used by both the repository and
// the migration runner.
func SQLiteDSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// SQLiteRepository is the SQLite flavour of SQLRepository. It can back up
// its database file.
type SQLiteRepository struct {
	*SQLRepository
	path string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", SQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations("sqlite", SQLiteDSN(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		SQLRepository: newSQLRepository(db, sqliteDialect{}),
		path:          dbPath,
	}, nil
}

func (r *SQLiteRepository) Path() string { return r.path }

// Backup writes a consistent copy of the database next to it as
// <path>.bak.<unix millis> and returns the copy's path.
func (r *SQLiteRepository) Backup(ctx context.Context) (string, error) {
	dest := r.path + ".bak." + strconv.FormatInt(time.Now().UnixMilli(), 10)
	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", core.Persistence(err, "backup database")
	}
	r.logger.InfoContext(ctx, "Database backed up", "backup", dest)
	return dest, nil
}
