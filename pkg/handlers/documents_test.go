package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

func newDocumentMux(docs *mockDocuments) *http.ServeMux {
	mux := http.NewServeMux()
	NewDocumentHandler(docs, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), noScope)
	return mux
}

func TestDocumentHandler_Register(t *testing.T) {
	doc := &models.Document{ID: uuid.New(), Filename: "q1.pdf", Status: models.DocumentStatusUploaded}
	docs := &mockDocuments{doc: doc}
	mux := newDocumentMux(docs)

	rec := serve(mux, http.MethodPost, "/api/documents", models.RegisterDocumentRequest{
		Filename:    "q1.pdf",
		ContentHash: "ab",
	}, "pipeline")

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Document
	decodeData(t, rec, &got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "q1.pdf", docs.registered.Filename)
}

func TestDocumentHandler_RegisterValidation(t *testing.T) {
	mux := newDocumentMux(&mockDocuments{err: apperrors.Validationf("content_hash must be a sha256 hex digest")})

	rec := serve(mux, http.MethodPost, "/api/documents", models.RegisterDocumentRequest{Filename: "q1.pdf"}, "pipeline")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec))
}

func TestDocumentHandler_Get(t *testing.T) {
	mux := newDocumentMux(&mockDocuments{err: apperrors.NotFoundf("document")})

	rec := serve(mux, http.MethodGet, "/api/documents/"+uuid.NewString(), nil, "analyst")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, http.MethodGet, "/api/documents/xyz", nil, "analyst")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_document_id", decodeError(t, rec))
}
