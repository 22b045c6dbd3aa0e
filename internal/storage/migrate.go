package storage

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrationTarget pairs a database/sql driver with the migrate driver
// that understands it.
type migrationTarget struct {
	sqlDriver string
	wrap      func(*sql.DB) (database.Driver, error)
}

var migrationTargets = map[string]migrationTarget{
	"sqlite": {"sqlite", func(db *sql.DB) (database.Driver, error) {
		return sqlite.WithInstance(db, &sqlite.Config{})
	}},
	"postgres": {"pgx", func(db *sql.DB) (database.Driver, error) {
		return migratepgx.WithInstance(db, &migratepgx.Config{})
	}},
}

// RunMigrations brings the database at dsn up to the newest embedded
// schema for dialect ("sqlite" or "postgres"). It uses its own connection.
func RunMigrations(dialect, dsn string) error {
	target, ok := migrationTargets[dialect]
	if !ok {
		return errors.Newf("unsupported migration dialect %q", dialect)
	}

	db, err := sql.Open(target.sqlDriver, dsn)
	if err != nil {
		return errors.Wrap(err, "open migration database")
	}
	defer db.Close()

	driver, err := target.wrap(db)
	if err != nil {
		return errors.Wrapf(err, "create %s migration driver", dialect)
	}
	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return errors.Wrap(err, "apply migrations")
	default:
		version, _, _ := m.Version()
		slog.Info("Applied schema migrations", "dialect", dialect, "version", version)
	}
	return nil
}
