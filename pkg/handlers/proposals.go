package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ProposalListResponse for GET /api/proposals
type ProposalListResponse struct {
	Proposals []*models.Proposal `json:"proposals"`
	// NextAfter is the cursor for the following page, set when the page is full.
	NextAfter *uuid.UUID `json:"next_after,omitempty"`
}

// BulkApproveRequest for POST /api/proposals/bulk-approve
type BulkApproveRequest struct {
	ProposalIDs []uuid.UUID `json:"proposal_ids"`
}

// ============================================================================
// Handler
// ============================================================================

// ProposalHandler serves the proposal ledger and the review workflow.
type ProposalHandler struct {
	ledger        services.ProposalLedger
	review        services.ReviewService
	reviewerRoles []string
	logger        *zap.Logger
}

// NewProposalHandler creates a new proposal handler. reviewerRoles are the
// roles allowed to approve or reject.
func NewProposalHandler(
	ledger services.ProposalLedger,
	review services.ReviewService,
	reviewerRoles []string,
	logger *zap.Logger,
) *ProposalHandler {
	return &ProposalHandler{
		ledger:        ledger,
		review:        review,
		reviewerRoles: reviewerRoles,
		logger:        logger,
	}
}

// RegisterRoutes registers the proposal handler's routes on the given mux.
func (h *ProposalHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/proposals"
	requireReviewer := authMiddleware.RequireRole(h.reviewerRoles...)

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Submit)))
	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(scope(h.ListPending)))
	mux.HandleFunc("GET "+base+"/counts", authMiddleware.RequireAuth(scope(h.Counts)))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("GET "+base+"/{id}/preview", authMiddleware.RequireAuth(scope(h.Preview)))
	mux.HandleFunc("POST "+base+"/{id}/approve", requireReviewer(scope(h.Approve)))
	mux.HandleFunc("POST "+base+"/{id}/reject", requireReviewer(scope(h.Reject)))
	mux.HandleFunc("POST "+base+"/bulk-approve", requireReviewer(scope(h.BulkApprove)))
}

// Submit handles POST /api/proposals
func (h *ProposalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}
	// The submitter is always the authenticated principal. Only reviewers
	// may record a proposal as manual; everyone else submits inference output.
	req.CreatedBy = auth.GetPrincipalFromContext(r.Context())
	if claims, ok := auth.GetClaims(r.Context()); !ok || !claims.HasAnyRole(h.reviewerRoles...) || req.Source != models.SourceManual {
		req.Source = models.SourceInference
	}

	proposal, err := h.ledger.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to submit proposal", err,
			zap.String("type", string(req.Type)))
		return
	}

	writeSuccess(w, h.logger, http.StatusCreated, proposal)
}

// ListPending handles GET /api/proposals?type=&after=&limit=
func (h *ProposalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	var filter models.ProposalFilter

	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.ProposalType(raw)
		if !t.IsValid() {
			writeBadRequest(w, h.logger, "invalid_type", "Unknown proposal type")
			return
		}
		filter.Type = &t
	}
	after, ok := parseOptionalUUIDQuery(w, r, "after", h.logger)
	if !ok {
		return
	}
	filter.After = after
	limit, ok := parseOptionalIntQuery(w, r, "limit", h.logger)
	if !ok {
		return
	}
	filter.Limit = limit

	proposals, err := h.ledger.ListPending(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list pending proposals", err)
		return
	}
	if proposals == nil {
		proposals = []*models.Proposal{}
	}

	response := ProposalListResponse{Proposals: proposals}
	if limit > 0 && len(proposals) == limit {
		last := proposals[len(proposals)-1].ID
		response.NextAfter = &last
	}
	writeSuccess(w, h.logger, http.StatusOK, response)
}

// Counts handles GET /api/proposals/counts
func (h *ProposalHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.ledger.Counts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to count proposals", err)
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, counts)
}

// Get handles GET /api/proposals/{id}
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProposalID(w, r, h.logger)
	if !ok {
		return
	}

	proposal, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get proposal", err, zap.String("proposal_id", id.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, proposal)
}

// Preview handles GET /api/proposals/{id}/preview
func (h *ProposalHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProposalID(w, r, h.logger)
	if !ok {
		return
	}

	decision, err := h.review.Preview(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to preview proposal", err, zap.String("proposal_id", id.String()))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, decision)
}

// Approve handles POST /api/proposals/{id}/approve
func (h *ProposalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProposalID(w, r, h.logger)
	if !ok {
		return
	}
	reviewer := auth.GetPrincipalFromContext(r.Context())

	result, err := h.review.Approve(r.Context(), id, reviewer)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to approve proposal", err,
			zap.String("proposal_id", id.String()),
			zap.String("reviewer", reviewer))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, result)
}

// Reject handles POST /api/proposals/{id}/reject
func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseProposalID(w, r, h.logger)
	if !ok {
		return
	}
	reviewer := auth.GetPrincipalFromContext(r.Context())

	proposal, err := h.review.Reject(r.Context(), id, reviewer)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to reject proposal", err,
			zap.String("proposal_id", id.String()),
			zap.String("reviewer", reviewer))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, proposal)
}

// BulkApprove handles POST /api/proposals/bulk-approve
func (h *ProposalHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}
	reviewer := auth.GetPrincipalFromContext(r.Context())

	result, err := h.review.BulkApprove(r.Context(), req.ProposalIDs, reviewer)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to bulk approve proposals", err,
			zap.Int("count", len(req.ProposalIDs)),
			zap.String("reviewer", reviewer))
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, result)
}
