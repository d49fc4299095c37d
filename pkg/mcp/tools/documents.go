package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// registerDocumentTool adds register_document so agents can cite a source
// document in the proposals they submit.
func registerDocumentTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"register_document",
		mcp.WithDescription(
			"Register a source document by its SHA-256 content hash and get its id. "+
				"Registering the same content again returns the existing document. "+
				"Use the id as source_document_id in entity, relation and instance proposals.",
		),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Original file name")),
		mcp.WithString("content_hash", mcp.Required(), mcp.Description("Hex SHA-256 of the file content")),
		mcp.WithString("status",
			mcp.Enum(
				string(models.DocumentStatusUploaded),
				string(models.DocumentStatusProcessing),
				string(models.DocumentStatusCompleted),
				string(models.DocumentStatusError),
			),
			mcp.Description("Processing status (default uploaded)"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		filename, err := req.RequireString("filename")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		hash, err := req.RequireString("content_hash")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		doc, err := deps.Documents.Register(ctx, &models.RegisterDocumentRequest{
			Filename:    filename,
			ContentHash: hash,
			Status:      models.DocumentStatus(req.GetString("status", "")),
		})
		if err != nil {
			return serviceResult(err)
		}
		return jsonResult(doc)
	})
}
