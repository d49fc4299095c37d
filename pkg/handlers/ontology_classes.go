package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

// OntologyClassListResponse for GET /api/ontology/classes
type OntologyClassListResponse struct {
	Classes []*models.ClassView `json:"classes"`
	Total   int                 `json:"total"`
}

// OntologyClassHandler lists ontology classes for reviewers.
type OntologyClassHandler struct {
	catalog services.OntologyCatalog
	logger  *zap.Logger
}

// NewOntologyClassHandler creates a new ontology class handler.
func NewOntologyClassHandler(catalog services.OntologyCatalog, logger *zap.Logger) *OntologyClassHandler {
	return &OntologyClassHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the ontology class routes on the given mux.
func (h *OntologyClassHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/ontology/classes", authMiddleware.RequireAuth(scope(h.List)))
}

// List handles GET /api/ontology/classes?status=
func (h *OntologyClassHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *models.ClassStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.ClassStatus(raw)
		status = &s
	}

	classes, err := h.catalog.ListClasses(r.Context(), status)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list ontology classes", err)
		return
	}
	if classes == nil {
		classes = []*models.ClassView{}
	}

	writeSuccess(w, h.logger, http.StatusOK, OntologyClassListResponse{
		Classes: classes,
		Total:   len(classes),
	})
}
