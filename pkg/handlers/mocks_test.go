package handlers

import (
	"context"
	"iter"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// ============================================================================
// Auth
// ============================================================================

// mockAuthService accepts any request carrying an X-Test-Roles header and
// authenticates it as testReviewer with those roles.
type mockAuthService struct{}

const testReviewer = "reviewer@kudwa.test"

func (mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	roles, ok := r.Header["X-Test-Roles"]
	if !ok {
		return nil, "", auth.ErrMissingAuthorization
	}
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Email:            testReviewer,
		Roles:            roles,
	}, "token", nil
}

func newTestAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(mockAuthService{}, zap.NewNop())
}

func noScope(next http.HandlerFunc) http.HandlerFunc { return next }

// ============================================================================
// Services
// ============================================================================

type mockLedger struct {
	submitted  *models.SubmitProposalRequest
	proposal   *models.Proposal
	proposals  []*models.Proposal
	lastFilter models.ProposalFilter
	counts     *models.ProposalCounts
	err        error
}

func (m *mockLedger) Submit(_ context.Context, req *models.SubmitProposalRequest) (*models.Proposal, error) {
	m.submitted = req
	if m.err != nil {
		return nil, m.err
	}
	return m.proposal, nil
}

func (m *mockLedger) Get(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.proposal == nil || m.proposal.ID != id {
		return nil, apperrors.NotFoundf("proposal %s", id)
	}
	return m.proposal, nil
}

func (m *mockLedger) ListPending(_ context.Context, filter models.ProposalFilter) ([]*models.Proposal, error) {
	m.lastFilter = filter
	return m.proposals, m.err
}

func (m *mockLedger) Iterate(context.Context, models.ProposalStatus, models.ProposalFilter) iter.Seq2[*models.Proposal, error] {
	return func(yield func(*models.Proposal, error) bool) {}
}

func (m *mockLedger) Counts(context.Context) (*models.ProposalCounts, error) {
	return m.counts, m.err
}

type mockReview struct {
	reviewer string
	ids      []uuid.UUID
	result   *models.ApplyResult
	rejected *models.Proposal
	bulk     *models.BulkResult
	decision *models.MergeDecision
	err      error
}

func (m *mockReview) Approve(_ context.Context, id uuid.UUID, reviewer string) (*models.ApplyResult, error) {
	m.ids, m.reviewer = []uuid.UUID{id}, reviewer
	return m.result, m.err
}

func (m *mockReview) Reject(_ context.Context, id uuid.UUID, reviewer string) (*models.Proposal, error) {
	m.ids, m.reviewer = []uuid.UUID{id}, reviewer
	return m.rejected, m.err
}

func (m *mockReview) BulkApprove(_ context.Context, ids []uuid.UUID, reviewer string) (*models.BulkResult, error) {
	m.ids, m.reviewer = ids, reviewer
	return m.bulk, m.err
}

func (m *mockReview) Preview(_ context.Context, id uuid.UUID) (*models.MergeDecision, error) {
	m.ids = []uuid.UUID{id}
	return m.decision, m.err
}

type mockGraph struct {
	filter     models.GraphFilter
	entityID   uuid.UUID
	depth      int
	projection *models.GraphProjection
	stats      *models.GraphStats
	err        error
}

func (m *mockGraph) Project(_ context.Context, filter models.GraphFilter) (*models.GraphProjection, error) {
	m.filter = filter
	return m.projection, m.err
}

func (m *mockGraph) Stats(_ context.Context, filter models.GraphFilter) (*models.GraphStats, error) {
	m.filter = filter
	return m.stats, m.err
}

func (m *mockGraph) Neighborhood(_ context.Context, entityID uuid.UUID, depth int) (*models.GraphProjection, error) {
	m.entityID, m.depth = entityID, depth
	return m.projection, m.err
}

type mockCatalog struct {
	status  *models.ClassStatus
	classes []*models.ClassView
	err     error
}

func (m *mockCatalog) ListClasses(_ context.Context, status *models.ClassStatus) ([]*models.ClassView, error) {
	m.status = status
	return m.classes, m.err
}

type mockDocuments struct {
	registered *models.RegisterDocumentRequest
	doc        *models.Document
	err        error
}

func (m *mockDocuments) Register(_ context.Context, req *models.RegisterDocumentRequest) (*models.Document, error) {
	m.registered = req
	return m.doc, m.err
}

func (m *mockDocuments) Get(context.Context, uuid.UUID) (*models.Document, error) {
	return m.doc, m.err
}
