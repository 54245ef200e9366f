package repos

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers "sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"
)

// OpenDB connects to the store named by dsn and applies pending migrations.
// postgres:// and postgresql:// DSNs use pgx; anything else is a SQLite file.
// lockWait bounds how long a writer waits for a contended lock.
func OpenDB(dsn string, lockWait time.Duration) (*sqlx.DB, error) {
	driver := driverSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = driverPostgres
	} else {
		dsn = sqliteDSN(dsn, lockWait)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(dsn, ":memory:") {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// sqliteDSN turns on foreign keys and the busy handler, and makes every
// transaction take the write lock at BEGIN so read-modify-write sequences in a
// unit of work cannot interleave.
func sqliteDSN(dsn string, lockWait time.Duration) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", lockWait.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	if !strings.HasPrefix(dsn, ":memory:") {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate brings the schema up to date using the embedded goose migrations.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dialect := goose.DialectSQLite3
	if db.DriverName() == driverPostgres {
		dialect = goose.DialectPostgres
	}
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// forUpdate is the row-lock suffix for reads that precede a write in the same transaction.
// SQLite transactions already hold the database write lock.
func forUpdate(driver string) string {
	if driver == driverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
