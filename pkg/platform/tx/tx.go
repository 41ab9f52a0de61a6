// Package tx carries an open SQL transaction through context so the
// reservation store can participate in the per-item transaction without
// widening its interface.
package tx

import (
	"context"
	"database/sql"
)

type txContextKey struct{}

// WithTx returns a context carrying the transaction. A nil transaction leaves
// the context untouched.
func WithTx(ctx context.Context, sqlTx *sql.Tx) context.Context {
	if sqlTx == nil {
		return ctx
	}
	return context.WithValue(ctx, txContextKey{}, sqlTx)
}

// From reports the transaction stored in ctx, if any. Store methods fall back
// to the shared pool when none is present.
func From(ctx context.Context) (*sql.Tx, bool) {
	sqlTx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return sqlTx, ok
}
