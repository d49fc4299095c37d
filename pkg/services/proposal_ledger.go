package services

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/audit"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/screening"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ProposalLedger is the append-only record of proposed graph changes.
type ProposalLedger interface {
	// Submit validates and stores a new pending proposal.
	Submit(ctx context.Context, req *models.SubmitProposalRequest) (*models.Proposal, error)

	// Get returns a proposal or a NotFound error.
	Get(ctx context.Context, id uuid.UUID) (*models.Proposal, error)

	// ListPending returns one page of pending proposals, oldest first.
	ListPending(ctx context.Context, filter models.ProposalFilter) ([]*models.Proposal, error)

	// Iterate walks every proposal in status lazily, page by page.
	Iterate(ctx context.Context, status models.ProposalStatus, filter models.ProposalFilter) iter.Seq2[*models.Proposal, error]

	// Counts returns the number of proposals per status.
	Counts(ctx context.Context) (*models.ProposalCounts, error)
}

type proposalLedger struct {
	store    *Store
	auditor  *audit.SecurityAuditor
	pageSize int
	logger   *zap.Logger
}

// ProposalLedgerDeps contains dependencies for ProposalLedger.
type ProposalLedgerDeps struct {
	Store    *Store
	Auditor  *audit.SecurityAuditor // Optional: defaults to one on Logger
	PageSize int                    // Optional: page size when the caller sets no limit
	Logger   *zap.Logger
}

// NewProposalLedger creates a new ProposalLedger.
func NewProposalLedger(deps *ProposalLedgerDeps) ProposalLedger {
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(deps.Logger)
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &proposalLedger{
		store:    deps.Store,
		auditor:  auditor,
		pageSize: min(pageSize, maxPageSize),
		logger:   deps.Logger.Named("proposal_ledger"),
	}
}

var _ ProposalLedger = (*proposalLedger)(nil)

func (l *proposalLedger) Submit(ctx context.Context, req *models.SubmitProposalRequest) (*models.Proposal, error) {
	if req == nil {
		return nil, apperrors.Validationf("request is required")
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		return nil, apperrors.Validationf("created_by is required")
	}

	action := req.Action
	if action == "" {
		action = models.ProposalActionUpsert
	}
	source := req.Source
	if source == "" {
		source = models.SourceInference
	}
	if !source.IsValid() {
		return nil, apperrors.Validationf("unknown source %q", source)
	}
	if !req.Type.IsValid() {
		return nil, apperrors.Validationf("unknown proposal type %q", req.Type)
	}
	if !action.Allows(req.Type) {
		return nil, apperrors.Validationf("action %q is not allowed for %s proposals", action, req.Type)
	}

	payload, err := models.DecodePayload(req.Type, action, req.Payload)
	if err != nil {
		l.auditor.LogPayloadValidation(ctx, createdBy, string(req.Type), err.Error())
		return nil, err
	}

	if err := l.screen(ctx, createdBy, req); err != nil {
		return nil, err
	}

	if docID := payload.DocumentID(); docID != nil {
		doc, err := l.store.Documents.GetByID(ctx, *docID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up source document: %w", err)
		}
		if doc == nil {
			return nil, apperrors.Validationf("source document %s does not exist", docID)
		}
	}

	baseVersion, err := l.baseVersion(ctx, payload)
	if err != nil {
		return nil, err
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	proposal := &models.Proposal{
		Type:             req.Type,
		Action:           action,
		Payload:          normalized,
		Source:           source,
		CreatedBy:        createdBy,
		BaseVersion:      baseVersion,
		SourceDocumentID: payload.DocumentID(),
	}
	if err := l.store.Proposals.Create(ctx, proposal); err != nil {
		return nil, fmt.Errorf("failed to store proposal: %w", err)
	}

	l.logger.Info("Proposal submitted",
		zap.String("proposal_id", proposal.ID.String()),
		zap.String("type", string(proposal.Type)),
		zap.String("action", string(proposal.Action)),
		zap.String("source", proposal.Source.String()),
		zap.String("created_by", proposal.CreatedBy),
		zap.Int64("base_version", proposal.BaseVersion))

	return proposal, nil
}

// screen rejects payloads carrying SQL injection patterns and audits each hit.
func (l *proposalLedger) screen(ctx context.Context, actor string, req *models.SubmitProposalRequest) error {
	findings, err := screening.ScanJSON(req.Payload)
	if err != nil {
		return apperrors.Validationf("invalid payload: %v", err)
	}
	if len(findings) == 0 {
		return nil
	}

	for _, f := range findings {
		l.auditor.LogInjectionAttempt(ctx, actor, audit.InjectionDetails{
			ProposalType: string(req.Type),
			Path:         f.Path,
			Value:        f.Value,
			Fingerprint:  f.Fingerprint,
		})
	}
	return apperrors.Validationf("payload value at %s was rejected by content screening", findings[0].Path)
}

// baseVersion records the active class version a class-targeting proposal was
// written against. Zero means the class did not exist yet.
func (l *proposalLedger) baseVersion(ctx context.Context, payload models.ProposalPayload) (int64, error) {
	var classID string
	switch p := payload.(type) {
	case *models.ClassPayload:
		classID = p.ClassID
	case *models.PropertyPayload:
		classID = p.ClassID
	default:
		return 0, nil
	}

	class, err := l.store.Classes.GetActiveByClassID(ctx, classID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up class %s: %w", classID, err)
	}
	if class == nil {
		return 0, nil
	}
	return class.Version, nil
}

func (l *proposalLedger) Get(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	proposal, err := l.store.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil {
		return nil, apperrors.NotFoundf("proposal %s", id)
	}
	return proposal, nil
}

func (l *proposalLedger) ListPending(ctx context.Context, filter models.ProposalFilter) ([]*models.Proposal, error) {
	filter.Limit = l.clampLimit(filter.Limit)
	proposals, err := l.store.Proposals.ListByStatus(ctx, models.ProposalStatusPending, filter)
	if err != nil {
		return nil, err
	}
	if proposals == nil {
		proposals = []*models.Proposal{}
	}
	return proposals, nil
}

func (l *proposalLedger) Iterate(ctx context.Context, status models.ProposalStatus, filter models.ProposalFilter) iter.Seq2[*models.Proposal, error] {
	return func(yield func(*models.Proposal, error) bool) {
		filter.Limit = l.clampLimit(filter.Limit)
		for {
			page, err := l.store.Proposals.ListByStatus(ctx, status, filter)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}
			if len(page) < filter.Limit {
				return
			}
			last := page[len(page)-1].ID
			filter.After = &last
		}
	}
}

func (l *proposalLedger) Counts(ctx context.Context) (*models.ProposalCounts, error) {
	return l.store.Proposals.CountByStatus(ctx)
}

func (l *proposalLedger) clampLimit(limit int) int {
	if limit <= 0 {
		return l.pageSize
	}
	return min(limit, maxPageSize)
}
