package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func callHealth(t *testing.T, version string, db Pinger) healthResult {
	t.Helper()
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(s, version, db)
	assert.Equal(t, []string{"health"}, listTools(t, s))

	resp := callTool(t, context.Background(), s, "health", nil)
	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &health))
	return health
}

func TestHealthTool(t *testing.T) {
	health := callHealth(t, `1.2.3-beta"rc`, nil)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, `1.2.3-beta"rc`, health.Version, "version must survive JSON escaping")
	assert.Empty(t, health.Database)
}

func TestHealthTool_Database(t *testing.T) {
	health := callHealth(t, "1.0.0", fakePinger{})
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Database)

	health = callHealth(t, "1.0.0", fakePinger{err: errors.New("connection refused")})
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unreachable", health.Database)
}
