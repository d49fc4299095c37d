package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockJWKSClient records the token it was asked to validate.
type mockJWKSClient struct {
	claims   *Claims
	err      error
	lastSeen string
}

func (m *mockJWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	m.lastSeen = tokenString
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockJWKSClient) Close() {}

func TestAuthService_ValidateRequest(t *testing.T) {
	okClaims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}}

	tests := []struct {
		name      string
		setup     func(r *http.Request)
		jwks      *mockJWKSClient
		wantErr   error
		wantToken string
	}{
		{
			name:      "bearer header",
			setup:     func(r *http.Request) { r.Header.Set("Authorization", "Bearer header-token") },
			jwks:      &mockJWKSClient{claims: okClaims},
			wantToken: "header-token",
		},
		{
			name: "cookie takes precedence",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
				r.Header.Set("Authorization", "Bearer header-token")
			},
			jwks:      &mockJWKSClient{claims: okClaims},
			wantToken: "cookie-token",
		},
		{
			name:    "missing",
			setup:   func(r *http.Request) {},
			jwks:    &mockJWKSClient{claims: okClaims},
			wantErr: ErrMissingAuthorization,
		},
		{
			name:    "wrong scheme",
			setup:   func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			jwks:    &mockJWKSClient{claims: okClaims},
			wantErr: ErrInvalidAuthFormat,
		},
		{
			name:    "no principal",
			setup:   func(r *http.Request) { r.Header.Set("Authorization", "Bearer t") },
			jwks:    &mockJWKSClient{claims: &Claims{}},
			wantErr: ErrMissingPrincipal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(tt.jwks, zap.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/api/proposals", nil)
			tt.setup(req)

			claims, token, err := svc.ValidateRequest(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u-1", claims.Subject)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantToken, tt.jwks.lastSeen)
		})
	}
}

func TestAuthService_ValidateRequest_PropagatesJWKSError(t *testing.T) {
	jwksErr := errors.New("token validation failed")
	svc := NewAuthService(&mockJWKSClient{err: jwksErr}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/proposals", nil)
	req.Header.Set("Authorization", "Bearer bad")

	_, _, err := svc.ValidateRequest(req)
	assert.ErrorIs(t, err, jwksErr)
}
