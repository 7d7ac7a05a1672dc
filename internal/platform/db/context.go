package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	dbConnKey contextKey = "db_conn"
	dbTxKey   contextKey = "db_tx"
)

// WithConn returns a context carrying a dedicated pool connection. Repositories
// prefer this connection over the shared pool when present.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, dbConnKey, conn)
}

// ConnFromContext retrieves the request-scoped database connection, or nil.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(dbConnKey).(*pgxpool.Conn)
	return conn
}

// WithTx returns a context carrying an open transaction. Repositories route all
// statements through it so multi-statement operations commit atomically.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, dbTxKey, tx)
}

// TxFromContext retrieves the context transaction, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(dbTxKey).(pgx.Tx)
	return tx
}

// RunInTx begins a transaction, stores it in the context, runs fn, and commits.
// Any error from fn rolls the transaction back.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
