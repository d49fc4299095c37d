package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools, pooled connections and
// transactions. Repositories only depend on this.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope carries the connection repositories must use for the current call.
type Scope struct {
	Conn Querier
	// InTx is true when Conn is a transaction opened by DB.InTx.
	InTx bool
}

type contextKey string

// ScopeKey is the context key for storing the database scope.
const ScopeKey contextKey = "dbScope"

// GetScope retrieves the database scope from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// WithPool returns a context whose scope runs statements directly on the pool.
func (db *DB) WithPool(ctx context.Context) context.Context {
	return SetScope(ctx, &Scope{Conn: db.Pool})
}
