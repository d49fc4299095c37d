package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor runs a function inside a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Transactor = (*DB)(nil)

// InTx begins a read-committed transaction on a fresh pool connection and
// calls fn with a context whose scope is that transaction. The transaction is
// committed when fn returns nil and rolled back otherwise. Nested calls are
// rejected.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if scope, ok := GetScope(ctx); ok && scope.InTx {
		return fmt.Errorf("nested transaction not supported")
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(SetScope(ctx, &Scope{Conn: tx, InTx: true})); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
