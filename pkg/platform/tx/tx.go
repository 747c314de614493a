// Package txcontext carries an open *sql.Tx through context.Context so store
// methods join the caller's transaction instead of using the pool.
package txcontext

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// From returns the transaction carried by ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Querier is the subset of *sql.DB and *sql.Tx used by stores.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Pick returns the transaction in ctx, or db when there is none.
func Pick(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
