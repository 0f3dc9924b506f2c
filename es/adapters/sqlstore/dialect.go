package sqlstore

import (
	"strconv"
	"strings"
	"time"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is used in log and error messages.
	Name string

	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool

	// Returning inserts report the global position with a RETURNING clause
	// instead of LastInsertId.
	Returning bool

	// Now is the SQL expression for the current time.
	Now string

	// Upsert returns the conflict clause that turns an INSERT into an
	// upsert, given the key columns and the columns to overwrite.
	Upsert func(keys, columns []string) string

	// Time converts a timestamp into the value bound for created_at.
	Time func(time.Time) interface{}

	// IsUniqueViolation reports whether err is a unique key violation.
	IsUniqueViolation func(error) bool
}

// rebind rewrites '?' placeholders for dialects with numbered ones.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OnConflictUpsert is the upsert clause of PostgreSQL and SQLite.
func OnConflictUpsert(keys, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = excluded." + c
	}
	return "ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// DuplicateKeyUpsert is the upsert clause of MySQL and MariaDB.
func DuplicateKeyUpsert(_, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = VALUES(" + c + ")"
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}
