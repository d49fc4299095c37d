package auth

import (
	"context"
	"fmt"
)

// GetUserIDFromContext extracts the subject from JWT claims in the context.
// Returns empty string if not authenticated.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}

// GetPrincipalFromContext returns the authenticated principal (email, or
// subject when the token has no email). Returns empty string if not
// authenticated.
func GetPrincipalFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Principal()
}

// RequirePrincipalFromContext is GetPrincipalFromContext for callers that
// cannot proceed anonymously.
func RequirePrincipalFromContext(ctx context.Context) (string, error) {
	principal := GetPrincipalFromContext(ctx)
	if principal == "" {
		return "", fmt.Errorf("authentication required: no principal in context")
	}
	return principal, nil
}
