package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

const defaultNeighborhoodDepth = 1

// GraphHandler serves graph projections of the approved store.
type GraphHandler struct {
	graph  services.GraphProjectionService
	logger *zap.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(graph services.GraphProjectionService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{graph: graph, logger: logger}
}

// RegisterRoutes registers the graph handler's routes on the given mux.
func (h *GraphHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/graph", authMiddleware.RequireAuth(scope(h.Project)))
	mux.HandleFunc("GET /api/graph/stats", authMiddleware.RequireAuth(scope(h.Stats)))
	mux.HandleFunc("GET /api/graph/entities/{id}/neighborhood", authMiddleware.RequireAuth(scope(h.Neighborhood)))
}

// Project handles GET /api/graph?class_id=&document_id=&node_type=&include_documents=
// class_id and node_type may repeat.
func (h *GraphHandler) Project(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	projection, err := h.graph.Project(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to project graph", err)
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, projection)
}

// Stats handles GET /api/graph/stats with the same filters as Project.
func (h *GraphHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	stats, err := h.graph.Stats(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to compute graph stats", err)
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, stats)
}

// Neighborhood handles GET /api/graph/entities/{id}/neighborhood?depth=
func (h *GraphHandler) Neighborhood(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEntityID(w, r, h.logger)
	if !ok {
		return
	}
	depth, ok := parseOptionalIntQuery(w, r, "depth", h.logger)
	if !ok {
		return
	}
	if depth == 0 {
		depth = defaultNeighborhoodDepth
	}

	projection, err := h.graph.Neighborhood(r.Context(), id, depth)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load neighborhood", err, zap.String("entity_id", id.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, projection)
}

func (h *GraphHandler) parseFilter(w http.ResponseWriter, r *http.Request) (models.GraphFilter, bool) {
	query := r.URL.Query()
	filter := models.GraphFilter{ClassIDs: query["class_id"]}

	for _, raw := range query["node_type"] {
		filter.NodeTypes = append(filter.NodeTypes, models.NodeType(raw))
	}

	documentID, ok := parseOptionalUUIDQuery(w, r, "document_id", h.logger)
	if !ok {
		return filter, false
	}
	filter.DocumentID = documentID

	includeDocuments, ok := parseOptionalBoolQuery(w, r, "include_documents", h.logger)
	if !ok {
		return filter, false
	}
	filter.IncludeDocuments = includeDocuments

	return filter, true
}
