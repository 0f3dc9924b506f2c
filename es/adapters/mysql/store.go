// Package mysql provides the MySQL and MariaDB event store, using
// go-sql-driver/mysql. DSNs must set parseTime=true.
package mysql

import (
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"

	"github.com/getpup/pupstream/es/adapters/sqlstore"
)

// erDupEntry is ER_DUP_ENTRY.
const erDupEntry = 1062

// Dialect is the MySQL flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name:   "mysql",
	Now:    "NOW(6)",
	Upsert: sqlstore.DuplicateKeyUpsert,
	Time: func(t time.Time) interface{} {
		return t.UTC()
	},
	IsUniqueViolation: IsUniqueViolation,
}

// NewStore creates a MySQL event store.
func NewStore(config sqlstore.Config) *sqlstore.Store {
	return sqlstore.New(Dialect, config)
}

// DSN returns cfg formatted as a DSN with the options the store relies on.
func DSN(cfg *mysql.Config) string {
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// IsUniqueViolation reports whether err is a duplicate entry error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == erDupEntry
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
