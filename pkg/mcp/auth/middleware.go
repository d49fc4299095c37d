// Package mcpauth provides MCP-specific authentication middleware.
// It wraps the core auth service with RFC 6750 Bearer token error responses.
package mcpauth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
)

// Middleware provides MCP-specific authentication middleware.
// Unlike the general auth middleware, this returns RFC 6750 WWW-Authenticate
// headers for OAuth 2.0 Bearer token authentication errors.
type Middleware struct {
	authService auth.AuthService
	roles       []string
	logger      *zap.Logger
}

// NewMiddleware creates a new MCP auth middleware. When roles is non-empty
// the token must carry at least one of them.
func NewMiddleware(authService auth.AuthService, roles []string, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		roles:       roles,
		logger:      logger,
	}
}

// RequireAuth validates the bearer token and injects its claims so tools can
// record the agent as proposal submitter.
func (m *Middleware) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := m.authService.ValidateRequest(r)
			if err != nil {
				m.logger.Debug("MCP auth failed: invalid or missing token",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				m.writeWWWAuthenticate(w, http.StatusUnauthorized, "invalid_token", "The access token is invalid or expired")
				return
			}

			if len(m.roles) > 0 && !claims.HasAnyRole(m.roles...) {
				m.logger.Warn("MCP auth failed: missing agent role",
					zap.String("principal", claims.Principal()),
					zap.Strings("roles", claims.Roles))
				m.writeWWWAuthenticate(w, http.StatusForbidden, "insufficient_scope", "The access token does not grant agent access")
				return
			}

			ctx := auth.WithClaims(r.Context(), claims, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeWWWAuthenticate writes an RFC 6750 Bearer token error response.
// See: https://datatracker.ietf.org/doc/html/rfc6750#section-3
func (m *Middleware) writeWWWAuthenticate(w http.ResponseWriter, status int, errorCode, description string) {
	headerValue := `Bearer error="` + errorCode + `", error_description="` + description + `"`
	w.Header().Set("WWW-Authenticate", headerValue)
	w.WriteHeader(status)
}
