package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

// DocumentHandler registers source documents for provenance.
type DocumentHandler struct {
	documents services.DocumentService
	logger    *zap.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(documents services.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// RegisterRoutes registers the document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/documents", authMiddleware.RequireAuth(scope(h.Register)))
	mux.HandleFunc("GET /api/documents/{id}", authMiddleware.RequireAuth(scope(h.Get)))
}

// Register handles POST /api/documents
func (h *DocumentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	doc, err := h.documents.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to register document", err, zap.String("filename", req.Filename))
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, doc)
}

// Get handles GET /api/documents/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get document", err, zap.String("document_id", id.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, doc)
}
