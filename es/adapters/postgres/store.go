// Package postgres provides the PostgreSQL event store, using lib/pq.
package postgres

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/lib/pq"

	"github.com/getpup/pupstream/es/adapters/sqlstore"
)

// Dialect is the PostgreSQL flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name:      "postgres",
	Numbered:  true,
	Returning: true,
	Now:       "NOW()",
	Upsert:    sqlstore.OnConflictUpsert,
	Time: func(t time.Time) interface{} {
		return t.UTC()
	},
	IsUniqueViolation: IsUniqueViolation,
}

// NewStore creates a PostgreSQL event store.
func NewStore(config sqlstore.Config) *sqlstore.Store {
	return sqlstore.New(Dialect, config)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
