// Package sqlite provides the SQLite event store, backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/juju/errors"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/getpup/pupstream/es/adapters/sqlstore"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Dialect is the SQLite flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name:   "sqlite",
	Now:    "datetime('now')",
	Upsert: sqlstore.OnConflictUpsert,
	Time: func(t time.Time) interface{} {
		return t.UTC().Format(sqlstore.TextTimeFormat)
	},
	IsUniqueViolation: IsUniqueViolation,
}

// NewStore creates a SQLite event store.
func NewStore(config sqlstore.Config) *sqlstore.Store {
	return sqlstore.New(Dialect, config)
}

// Open opens a SQLite database at path with settings suited to an event
// store. SQLite allows a single writer, so the pool is limited to one
// connection.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s", path)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// IsUniqueViolation reports whether err is a SQLite unique or primary key
// constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
