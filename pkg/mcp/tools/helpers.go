package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
)

// defaultAgentName is recorded as created_by when the token carries no principal.
const defaultAgentName = "mcp-agent"

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// requireUUID reads a required UUID argument. A non-nil result is the error
// to hand back to the agent.
func requireUUID(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", err.Error())
	}
	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

// optionalUUID reads an optional UUID argument.
func optionalUUID(req mcp.CallToolRequest, name string) (*uuid.UUID, *mcp.CallToolResult) {
	raw := trimString(req.GetString(name, ""))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must be a UUID", name))
	}
	return &id, nil
}

// stringSliceArgument reads an optional array of strings, skipping blank and
// non-string items.
func stringSliceArgument(req mcp.CallToolRequest, name string) []string {
	items, ok := req.GetArguments()[name].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && trimString(s) != "" {
			out = append(out, trimString(s))
		}
	}
	return out
}

// rawArgument re-encodes an object argument so services can decode it strictly.
func rawArgument(req mcp.CallToolRequest, name string) (json.RawMessage, *mcp.CallToolResult) {
	v, ok := req.GetArguments()[name]
	if !ok || v == nil {
		return nil, NewErrorResult("invalid_parameters", fmt.Sprintf("required argument %q not found", name))
	}
	if _, isObject := v.(map[string]any); !isObject {
		return nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must be an object", name))
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s is not valid JSON", name))
	}
	return raw, nil
}

// callerName is the principal recorded as proposal submitter.
func callerName(ctx context.Context) string {
	if principal := auth.GetPrincipalFromContext(ctx); principal != "" {
		return principal
	}
	return defaultAgentName
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
