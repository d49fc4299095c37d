package database

import (
	"net/http"
)

// WithScopeContext creates middleware that gives handlers a pool-backed
// database scope. Write paths open their own transactions with DB.InTx.
func WithScopeContext(db *DB) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(db.WithPool(r.Context())))
		}
	}
}
