package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestRegisterDocumentTool(t *testing.T) {
	doc := &models.Document{ID: uuid.New(), Filename: "q3-report.pdf", ContentHash: testHash}
	documents := &mockDocuments{doc: doc}
	s := newTestServer(&testDeps{documents: documents})

	resp := callTool(t, context.Background(), s, "register_document", map[string]any{
		"filename":     "q3-report.pdf",
		"content_hash": testHash,
		"status":       "completed",
	})

	var got models.Document
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &got))
	assert.Equal(t, doc.ID, got.ID)

	require.NotNil(t, documents.registered)
	assert.Equal(t, "q3-report.pdf", documents.registered.Filename)
	assert.Equal(t, models.DocumentStatusCompleted, documents.registered.Status)
}

func TestRegisterDocumentTool_Errors(t *testing.T) {
	s := newTestServer(&testDeps{})
	resp := callTool(t, context.Background(), s, "register_document", map[string]any{"filename": "a.pdf"})
	assert.Equal(t, "invalid_parameters", decodeToolError(t, resp).Code)

	s = newTestServer(&testDeps{documents: &mockDocuments{err: apperrors.Validationf("content_hash must be a hex SHA-256")}})
	resp = callTool(t, context.Background(), s, "register_document", map[string]any{"filename": "a.pdf", "content_hash": "zz"})
	assert.Equal(t, "validation_error", decodeToolError(t, resp).Code)
}
