package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/audit"
	"github.com/kudwa-ai/kudwa-engine/pkg/database"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const (
	defaultBulkConcurrency = 4
	defaultBulkMaxItems    = 500
	listenerTimeout        = 10 * time.Second
)

// ReviewService is the approval state machine. Every decision runs in its own
// transaction; approvals re-run reconciliation inside it.
type ReviewService interface {
	// Approve applies a pending proposal to the store and marks it approved.
	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.ApplyResult, error)

	// Reject marks a pending proposal rejected without touching the store.
	Reject(ctx context.Context, id uuid.UUID, reviewer string) (*models.Proposal, error)

	// BulkApprove approves each proposal independently and reports per-item
	// outcomes. Item failures never fail the call.
	BulkApprove(ctx context.Context, ids []uuid.UUID, reviewer string) (*models.BulkResult, error)

	// Preview returns what approving the proposal right now would do.
	Preview(ctx context.Context, id uuid.UUID) (*models.MergeDecision, error)
}

// ReviewListener is told about every committed decision. Errors are logged
// and never affect the decision.
type ReviewListener interface {
	Name() string
	ProposalDecided(ctx context.Context, event *models.ReviewEvent) error
}

type reviewService struct {
	db              database.Transactor
	store           *Store
	reconciler      *reconciler
	auditor         *audit.SecurityAuditor
	listeners       []ReviewListener
	bulkConcurrency int
	bulkMaxItems    int
	logger          *zap.Logger
}

// ReviewServiceDeps contains dependencies for ReviewService.
type ReviewServiceDeps struct {
	DB              database.Transactor
	Store           *Store
	MatchPolicy     MatchPolicy            // Optional: defaults to ExactMatchPolicy
	Auditor         *audit.SecurityAuditor // Optional: defaults to one on Logger
	Listeners       []ReviewListener
	BulkConcurrency int
	BulkMaxItems    int
	Logger          *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(deps *ReviewServiceDeps) ReviewService {
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(deps.Logger)
	}
	concurrency := deps.BulkConcurrency
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	maxItems := deps.BulkMaxItems
	if maxItems <= 0 {
		maxItems = defaultBulkMaxItems
	}
	return &reviewService{
		db:              deps.DB,
		store:           deps.Store,
		reconciler:      newReconciler(deps.Store, deps.MatchPolicy),
		auditor:         auditor,
		listeners:       deps.Listeners,
		bulkConcurrency: concurrency,
		bulkMaxItems:    maxItems,
		logger:          deps.Logger.Named("review"),
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.ApplyResult, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, apperrors.Validationf("reviewer is required")
	}

	var result *models.ApplyResult
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		proposal, err := s.lockPending(ctx, id, models.ProposalStatusApproved)
		if err != nil {
			return err
		}

		plan, err := s.reconciler.plan(ctx, proposal)
		if err != nil {
			return err
		}

		result, err = s.apply(ctx, proposal, plan)
		if err != nil {
			return err
		}

		result.Proposal, err = s.markDecided(ctx, proposal, models.ProposalStatusApproved, reviewer, plan.decision)
		return err
	})
	if err != nil {
		s.logger.Info("Approval failed",
			zap.String("proposal_id", id.String()),
			zap.String("reviewer", reviewer),
			zap.String("code", apperrors.Code(err)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Proposal approved",
		zap.String("proposal_id", id.String()),
		zap.String("type", string(result.Proposal.Type)),
		zap.String("action", string(result.Decision.Action)),
		zap.String("reviewer", reviewer))
	s.auditor.LogProposalDecision(ctx, id, reviewer, string(models.ProposalStatusApproved))
	s.notify(ctx, &models.ReviewEvent{Proposal: result.Proposal, Result: result})

	return result, nil
}

func (s *reviewService) Reject(ctx context.Context, id uuid.UUID, reviewer string) (*models.Proposal, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, apperrors.Validationf("reviewer is required")
	}

	var rejected *models.Proposal
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		proposal, err := s.lockPending(ctx, id, models.ProposalStatusRejected)
		if err != nil {
			return err
		}
		rejected, err = s.markDecided(ctx, proposal, models.ProposalStatusRejected, reviewer, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proposal rejected",
		zap.String("proposal_id", id.String()),
		zap.String("reviewer", reviewer))
	s.auditor.LogProposalDecision(ctx, id, reviewer, string(models.ProposalStatusRejected))
	s.notify(ctx, &models.ReviewEvent{Proposal: rejected})

	return rejected, nil
}

func (s *reviewService) BulkApprove(ctx context.Context, ids []uuid.UUID, reviewer string) (*models.BulkResult, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, apperrors.Validationf("reviewer is required")
	}

	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil, apperrors.Validationf("proposal_ids must not be empty")
	}
	if len(unique) > s.bulkMaxItems {
		return nil, apperrors.Validationf("at most %d proposals can be approved at once, got %d", s.bulkMaxItems, len(unique))
	}

	items := make([]models.BulkItemResult, len(unique))

	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, id := range unique {
		g.Go(func() error {
			item := models.BulkItemResult{ProposalID: id}
			result, err := s.Approve(ctx, id, reviewer)
			if err != nil {
				item.Status = models.BulkItemFailed
				item.ErrorCode = apperrors.Code(err)
				item.Error = err.Error()
			} else {
				item.Status = models.BulkItemApproved
				item.Decision = result.Decision
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	out := &models.BulkResult{Items: items, Errors: []string{}}
	for _, item := range items {
		if item.Status == models.BulkItemApproved {
			out.ApprovedCount++
			continue
		}
		out.FailedCount++
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", item.ProposalID, item.Error))
	}

	s.logger.Info("Bulk approval finished",
		zap.Int("requested", len(unique)),
		zap.Int("approved", out.ApprovedCount),
		zap.Int("failed", out.FailedCount),
		zap.String("reviewer", reviewer))

	return out, nil
}

func (s *reviewService) Preview(ctx context.Context, id uuid.UUID) (*models.MergeDecision, error) {
	proposal, err := s.store.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil {
		return nil, apperrors.NotFoundf("proposal %s", id)
	}
	if proposal.Status != models.ProposalStatusPending {
		return nil, apperrors.InvalidStatef("proposal already %s", proposal.Status)
	}
	return s.reconciler.Decide(ctx, proposal)
}

// lockPending loads the proposal FOR UPDATE and checks it may move to next.
func (s *reviewService) lockPending(ctx context.Context, id uuid.UUID, next models.ProposalStatus) (*models.Proposal, error) {
	proposal, err := s.store.Proposals.GetForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock proposal: %w", err)
	}
	if proposal == nil {
		return nil, apperrors.NotFoundf("proposal %s", id)
	}
	if err := models.Transition(proposal.Status, next); err != nil {
		return nil, err
	}
	return proposal, nil
}

func (s *reviewService) markDecided(ctx context.Context, proposal *models.Proposal, status models.ProposalStatus, reviewer string, decision *models.MergeDecision) (*models.Proposal, error) {
	ok, err := s.store.Proposals.MarkDecided(ctx, proposal.ID, status, reviewer, decision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.InvalidStatef("proposal %s was decided concurrently", proposal.ID)
	}

	decided, err := s.store.Proposals.GetByID(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload proposal: %w", err)
	}
	if decided == nil {
		return nil, apperrors.NotFoundf("proposal %s", proposal.ID)
	}
	return decided, nil
}

func (s *reviewService) apply(ctx context.Context, proposal *models.Proposal, plan *mergePlan) (*models.ApplyResult, error) {
	result := &models.ApplyResult{Decision: plan.decision}
	var err error

	switch p := plan.payload.(type) {
	case *models.ClassPayload:
		result.Class, err = s.applyClass(ctx, proposal, plan, p)
	case *models.PropertyPayload:
		result.Class, err = s.applyProperty(ctx, proposal, plan, p)
	case *models.EntityPayload:
		result.Entity, err = s.applyEntity(ctx, proposal, plan, p)
	case *models.RelationPayload:
		result.Relation, err = s.applyRelation(ctx, proposal, plan, p)
	case *models.InstancePayload:
		result.Instance, err = s.applyInstance(ctx, proposal, plan, p)
	default:
		err = apperrors.Validationf("unsupported payload %T", plan.payload)
	}
	if err != nil {
		return nil, err
	}

	if plan.decision.TargetID == nil {
		plan.decision.TargetID = insertedID(result)
	}
	return result, nil
}

// insertedID returns the id of the row an insert created.
func insertedID(result *models.ApplyResult) *uuid.UUID {
	switch {
	case result.Class != nil:
		return &result.Class.ID
	case result.Entity != nil:
		return &result.Entity.ID
	case result.Relation != nil:
		return &result.Relation.ID
	case result.Instance != nil:
		return &result.Instance.ID
	}
	return nil
}

func (s *reviewService) applyClass(ctx context.Context, proposal *models.Proposal, plan *mergePlan, p *models.ClassPayload) (*models.OntologyClass, error) {
	if plan.decision.Action == models.MergeActionInsert {
		class := &models.OntologyClass{
			ClassID:           p.ClassID,
			Label:             p.Label,
			ClassType:         p.ClassType,
			Domain:            p.Domain,
			Properties:        p.Properties,
			CreatedByProposal: &proposal.ID,
		}
		if class.Domain == "" {
			class.Domain = models.DefaultClassDomain
		}
		if err := s.store.Classes.Insert(ctx, class); err != nil {
			return nil, err
		}
		return class, nil
	}

	updated := *plan.class
	updated.Label = p.Label
	updated.ClassType = p.ClassType
	if p.Domain != "" {
		updated.Domain = p.Domain
	}
	updated.Properties = plan.class.Properties.Merge(p.Properties)
	updated.UpdatedByProposal = &proposal.ID
	if err := s.store.Classes.Update(ctx, &updated, plan.class.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *reviewService) applyProperty(ctx context.Context, proposal *models.Proposal, plan *mergePlan, p *models.PropertyPayload) (*models.OntologyClass, error) {
	updated := *plan.class
	updated.Properties = plan.class.Properties.Merge(p.Properties)
	updated.UpdatedByProposal = &proposal.ID
	if err := s.store.Classes.Update(ctx, &updated, plan.class.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *reviewService) applyEntity(ctx context.Context, proposal *models.Proposal, plan *mergePlan, p *models.EntityPayload) (*models.Entity, error) {
	switch plan.decision.Action {
	case models.MergeActionInsert:
		entity := &models.Entity{
			Name:              p.Name,
			NameKey:           plan.nameKey,
			ClassRef:          classRef(plan.class),
			ClassID:           p.ClassID,
			Properties:        p.Properties,
			SourceDocumentID:  p.SourceDocumentID,
			CreatedByProposal: &proposal.ID,
		}
		if err := s.store.Entities.Insert(ctx, entity); err != nil {
			return nil, err
		}
		return entity, nil
	case models.MergeActionNoop:
		if len(p.Properties) == 0 {
			return plan.entity, nil
		}
		return s.store.Entities.MergeProperties(ctx, plan.entity.ID, p.Properties)
	case models.MergeActionDelete:
		if err := s.store.Entities.Delete(ctx, plan.entity.ID); err != nil {
			return nil, deletedConcurrently(err)
		}
		return plan.entity, nil
	}
	return nil, fmt.Errorf("unexpected merge action %q for entity", plan.decision.Action)
}

func (s *reviewService) applyRelation(ctx context.Context, proposal *models.Proposal, plan *mergePlan, p *models.RelationPayload) (*models.Relation, error) {
	switch plan.decision.Action {
	case models.MergeActionInsert:
		relation := &models.Relation{
			SourceEntityID:    plan.source.ID,
			TargetEntityID:    plan.target.ID,
			RelType:           p.RelType,
			Properties:        p.Properties,
			SourceDocumentID:  p.SourceDocumentID,
			CreatedByProposal: &proposal.ID,
		}
		if err := s.store.Relations.Insert(ctx, relation); err != nil {
			return nil, err
		}
		return relation, nil
	case models.MergeActionNoop:
		if len(p.Properties) == 0 {
			return plan.relation, nil
		}
		return s.store.Relations.MergeProperties(ctx, plan.relation.ID, p.Properties)
	case models.MergeActionDelete:
		if err := s.store.Relations.Delete(ctx, plan.relation.ID); err != nil {
			return nil, deletedConcurrently(err)
		}
		return plan.relation, nil
	}
	return nil, fmt.Errorf("unexpected merge action %q for relation", plan.decision.Action)
}

func (s *reviewService) applyInstance(ctx context.Context, proposal *models.Proposal, plan *mergePlan, p *models.InstancePayload) (*models.Instance, error) {
	switch plan.decision.Action {
	case models.MergeActionInsert:
		instance := &models.Instance{
			EntityID:          plan.entity.ID,
			Key:               string(p.Key),
			Properties:        p.Properties,
			SourceDocumentID:  p.SourceDocumentID,
			CreatedByProposal: &proposal.ID,
		}
		if err := s.store.Instances.Insert(ctx, instance); err != nil {
			return nil, err
		}
		return instance, nil
	case models.MergeActionNoop:
		if len(p.Properties) == 0 {
			return plan.instance, nil
		}
		return s.store.Instances.MergeProperties(ctx, plan.instance.ID, p.Properties)
	case models.MergeActionDelete:
		if err := s.store.Instances.Delete(ctx, plan.instance.ID); err != nil {
			return nil, deletedConcurrently(err)
		}
		return plan.instance, nil
	}
	return nil, fmt.Errorf("unexpected merge action %q for instance", plan.decision.Action)
}

// deletedConcurrently turns a missing delete target into a conflict: the row
// existed when the plan was made inside this transaction.
func deletedConcurrently(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("%w: target was removed by a concurrent approval", apperrors.ErrConflict)
	}
	return err
}

func (s *reviewService) notify(ctx context.Context, event *models.ReviewEvent) {
	if len(s.listeners) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerTimeout)
	defer cancel()

	for _, l := range s.listeners {
		if err := l.ProposalDecided(ctx, event); err != nil {
			s.logger.Warn("Review listener failed",
				zap.String("listener", l.Name()),
				zap.String("proposal_id", event.Proposal.ID.String()),
				zap.Error(err))
		}
	}
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
