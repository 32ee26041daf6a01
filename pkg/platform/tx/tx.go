// Package tx carries a SQL transaction through context so the pairing
// store's find-and-mark and insert steps share one transaction without
// threading *sql.Tx through every call site.
package tx

import (
	"context"
	"database/sql"
)

type commitTxKey struct{}

// WithTx returns a context carrying tx for downstream store calls.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, commitTxKey{}, tx)
}

// From returns the transaction carried by ctx, if any. Store methods called
// with such a context join the enclosing commit transaction instead of
// running against the pool.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(commitTxKey{}).(*sql.Tx)
	return tx, ok
}
