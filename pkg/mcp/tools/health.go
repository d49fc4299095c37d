package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the backing database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server. Agents call
// it before a batch of submissions; status is "degraded" while the database
// is unreachable. db may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, db Pinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if db != nil {
			pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
			defer cancel()
			result.Database = "ok"
			if err := db.Ping(pingCtx); err != nil {
				result.Status = "degraded"
				result.Database = "unreachable"
			}
		}
		return jsonResult(result)
	})
}
