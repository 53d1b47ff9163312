package database

import (
	"database/sql"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Fenrix23/watchlist_compare/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	dbData *sqlx.DB

	// writeMu serializes writes. Sqlite allows one writer at a time and
	// returns busy errors under concurrent write load otherwise.
	writeMu sync.Mutex
)

// InitDB opens the sqlite database file and configures the connection.
// The parent directory is created when missing. Pass ":memory:" for an
// in-process database (tests).
func InitDB(dbfile string) error {
	dsn := "file:" + dbfile + "?_fk=1&_journal=WAL&_busy_timeout=5000&_cslike=0"
	if dbfile == ":memory:" {
		dsn = "file::memory:?_fk=1&cache=shared"
	} else if dir := filepath.Dir(dbfile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(5)
	dbData = db
	return nil
}

// UpgradeDB applies the embedded schema migrations to the open database.
func UpgradeDB() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(dbData.DB, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// CloseDB closes the database connection.
func CloseDB() error {
	if dbData == nil {
		return nil
	}
	return dbData.Close()
}

// GetDB returns the open database handle.
func GetDB() *sqlx.DB {
	return dbData
}

// Getrows runs a query and scans all result rows into a slice of T.
// Errors are logged and return an empty slice.
func Getrows[T any](querystring string, args ...any) []T {
	var result []T
	if err := dbData.Select(&result, querystring, args...); err != nil {
		logger.Logtype("error", 1).
			Err(err).
			Str("query", querystring).
			Msg("query rows failed")
		return nil
	}
	return result
}

// Getdatarow runs a query expected to return a single row and scans it
// into T. A missing row returns the zero value without logging.
func Getdatarow[T any](querystring string, args ...any) T {
	var result T
	if err := dbData.Get(&result, querystring, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Logtype("error", 1).
				Err(err).
				Str("query", querystring).
				Msg("query row failed")
		}
	}
	return result
}

// Getrowdata runs a single-row query and reports whether a row was found.
func Getrowdata[T any](querystring string, args ...any) (T, bool) {
	var result T
	err := dbData.Get(&result, querystring, args...)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Logtype("error", 1).
				Err(err).
				Str("query", querystring).
				Msg("query row failed")
		}
		return result, false
	}
	return result, true
}

// ExecN executes a statement under the global write lock.
func ExecN(querystring string, args ...any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_, err := dbData.Exec(querystring, args...)
	if err != nil {
		logger.Logtype("error", 1).
			Err(err).
			Str("query", querystring).
			Msg("exec failed")
	}
	return err
}

// ExecNid executes an insert statement and returns the new row id.
func ExecNid(querystring string, args ...any) (int64, error) {
	writeMu.Lock()
	defer writeMu.Unlock()
	result, err := dbData.Exec(querystring, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// WithTx runs fn inside a transaction under the global write lock and
// commits when fn returns nil, rolling back otherwise.
func WithTx(fn func(tx *sqlx.Tx) error) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	tx, err := dbData.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
