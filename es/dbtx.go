package es

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB and *sql.Tx the stores need. Stores never
// open or commit transactions themselves.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxBeginner opens transactions. Long-running readers such as
// subscriptions use it to scope each poll to its own transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var (
	_ DBTX       = (*sql.DB)(nil)
	_ DBTX       = (*sql.Tx)(nil)
	_ TxBeginner = (*sql.DB)(nil)
)
