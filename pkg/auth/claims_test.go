package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_Principal(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{
			name:   "email wins",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}, Email: "a@example.com"},
			want:   "a@example.com",
		},
		{
			name:   "falls back to subject",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}},
			want:   "u-1",
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.Principal())
		})
	}
}

func TestClaims_HasAnyRole(t *testing.T) {
	claims := &Claims{Roles: []string{"viewer", "reviewer"}}

	assert.True(t, claims.HasAnyRole("reviewer", "admin"))
	assert.False(t, claims.HasAnyRole("admin"))
	assert.False(t, claims.HasAnyRole())
	assert.False(t, (&Claims{}).HasAnyRole("reviewer"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserIDFromContext(ctx))
	assert.Empty(t, GetPrincipalFromContext(ctx))
	_, err := RequirePrincipalFromContext(ctx)
	assert.Error(t, err)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}, Email: "a@example.com"}
	ctx = WithClaims(ctx, claims, "raw-token")

	got, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	token, ok := GetToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "raw-token", token)

	assert.Equal(t, "u-1", GetUserIDFromContext(ctx))
	principal, err := RequirePrincipalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", principal)
}
