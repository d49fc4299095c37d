package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims      *Claims
	token       string
	validateErr error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func decodeAuthError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}}
	mw := NewMiddleware(&mockAuthService{claims: claims, token: "test-token"}, zap.NewNop())

	var principal, token string
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipalFromContext(r.Context())
		token, _ = GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/proposals", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", principal)
	assert.Equal(t, "test-token", token)
}

func TestMiddleware_RequireAuth_Unauthorized(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{validateErr: ErrMissingAuthorization}, zap.NewNop())

	called := false
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/proposals", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeAuthError(t, rec)["error"])
}

func TestMiddleware_RequireRole(t *testing.T) {
	tests := []struct {
		name       string
		roles      []string
		wantStatus int
	}{
		{name: "reviewer allowed", roles: []string{"reviewer"}, wantStatus: http.StatusOK},
		{name: "admin allowed", roles: []string{"viewer", "admin"}, wantStatus: http.StatusOK},
		{name: "viewer forbidden", roles: []string{"viewer"}, wantStatus: http.StatusForbidden},
		{name: "no roles forbidden", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{Email: "r@example.com", Roles: tt.roles}
			mw := NewMiddleware(&mockAuthService{claims: claims}, zap.NewNop())

			handler := mw.RequireRole("reviewer", "admin")(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodPost, "/api/proposals/x/approve", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestMiddleware_RequireRole_Unauthenticated(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{validateErr: ErrInvalidAuthFormat}, zap.NewNop())

	handler := mw.RequireRole("reviewer")(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/proposals/x/approve", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
