package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the message visible to the agent
// instead of being swallowed by the MCP client as a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the agent can act on (invalid parameters, unknown
// ids). System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// isAgentError reports whether err is something the caller caused and can fix.
func isAgentError(err error) bool {
	return errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrInvalidState) ||
		errors.Is(err, apperrors.ErrConflict)
}

// serviceResult turns a service error into a tool error result when the agent
// can act on it, and passes other errors through as protocol errors.
func serviceResult(err error) (*mcp.CallToolResult, error) {
	if isAgentError(err) {
		return NewErrorResult(apperrors.Code(err), err.Error()), nil
	}
	return nil, err
}
