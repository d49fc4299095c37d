package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	s := NewServer("kudwa-engine", "1.0.0", zap.NewNop())

	require.NotNil(t, s.MCP())
	assert.Same(t, s.mcp, s.MCP())
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestServer_Initialize(t *testing.T) {
	s := NewServer("kudwa-engine", "1.0.0", zap.NewNop())

	msg := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(msg)))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			ServerInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
			Instructions string `json:"instructions"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "kudwa-engine", resp.Result.ServerInfo.Name)
	assert.Contains(t, resp.Result.Instructions, "submit_ontology_proposal")
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("kudwa-engine", "1.0.0", zap.NewNop())

	called := false
	s.RegisterTool(mcp.NewTool("echo", mcp.WithDescription("echo")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})
	assert.False(t, called, "handler must not run at registration")

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo"}}`)))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, string(raw), `"ok"`)
}

func TestServer_RecoversToolPanics(t *testing.T) {
	s := NewServer("kudwa-engine", "1.0.0", zap.NewNop())
	s.RegisterTool(mcp.NewTool("boom"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("nil payload")
	})

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"boom"}}`)))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"error"`)
}
