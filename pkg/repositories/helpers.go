package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/database"
)

// PostgreSQL error codes mapped to application errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func querier(ctx context.Context) (database.Querier, error) {
	scope, ok := database.GetScope(ctx)
	if !ok || scope.Conn == nil {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scope.Conn, nil
}

// mapWriteError converts constraint violations into application errors so
// callers can tell a lost race from an infrastructure failure.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s: %s", apperrors.ErrConflict, op, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			// Referenced rows are resolved before the write, so a missing
			// one was removed by a concurrent approval.
			return fmt.Errorf("%w: %s references a row that no longer exists (%s)", apperrors.ErrConflict, op, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s violates %s", apperrors.ErrValidation, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func unmarshalJSONB(raw []byte, dest any, column string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", column, err)
	}
	return nil
}

func nonNilProperties(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
