package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// OntologyCatalog lists ontology classes for reviewers.
type OntologyCatalog interface {
	// ListClasses returns classes in the given status, or in every status when
	// status is nil. Active classes come first, then pending and rejected.
	ListClasses(ctx context.Context, status *models.ClassStatus) ([]*models.ClassView, error)
}

type ontologyCatalog struct {
	store  *Store
	ledger ProposalLedger
	logger *zap.Logger
}

// NewOntologyCatalog creates a new OntologyCatalog.
func NewOntologyCatalog(store *Store, ledger ProposalLedger, logger *zap.Logger) OntologyCatalog {
	return &ontologyCatalog{
		store:  store,
		ledger: ledger,
		logger: logger.Named("ontology_catalog"),
	}
}

var _ OntologyCatalog = (*ontologyCatalog)(nil)

func (c *ontologyCatalog) ListClasses(ctx context.Context, status *models.ClassStatus) ([]*models.ClassView, error) {
	if status != nil && !status.IsValid() {
		return nil, apperrors.Validationf("unknown class status %q", *status)
	}

	active, err := c.store.Classes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active classes: %w", err)
	}

	activeIDs := make(map[string]struct{}, len(active))
	views := make([]*models.ClassView, 0, len(active))
	for _, class := range active {
		activeIDs[class.ClassID] = struct{}{}
		if status == nil || *status == models.ClassStatusActive {
			views = append(views, activeView(class))
		}
	}

	// Pending and rejected classes only exist as proposals. Once a class_id
	// is active its other proposals are merge candidates, not separate classes.
	for _, derived := range []struct {
		proposal models.ProposalStatus
		class    models.ClassStatus
	}{
		{models.ProposalStatusPending, models.ClassStatusPendingReview},
		{models.ProposalStatusRejected, models.ClassStatusRejected},
	} {
		if status != nil && *status != derived.class {
			continue
		}
		proposed, err := c.proposedClasses(ctx, derived.proposal, derived.class, activeIDs)
		if err != nil {
			return nil, err
		}
		views = append(views, proposed...)
	}

	return views, nil
}

func (c *ontologyCatalog) proposedClasses(ctx context.Context, status models.ProposalStatus, classStatus models.ClassStatus, active map[string]struct{}) ([]*models.ClassView, error) {
	classType := models.ProposalTypeOntologyClass
	filter := models.ProposalFilter{Type: &classType}

	var views []*models.ClassView
	for proposal, err := range c.ledger.Iterate(ctx, status, filter) {
		if err != nil {
			return nil, fmt.Errorf("failed to list %s class proposals: %w", status, err)
		}

		payload, err := proposal.DecodedPayload()
		if err != nil {
			c.logger.Warn("Skipping undecodable class proposal",
				zap.String("proposal_id", proposal.ID.String()),
				zap.Error(err))
			continue
		}
		class, ok := payload.(*models.ClassPayload)
		if !ok {
			continue
		}
		if _, isActive := active[class.ClassID]; isActive {
			continue
		}

		id := proposal.ID
		updatedAt := proposal.CreatedAt
		if proposal.ReviewedAt != nil {
			updatedAt = *proposal.ReviewedAt
		}
		views = append(views, &models.ClassView{
			ClassID:    class.ClassID,
			Label:      class.Label,
			ClassType:  class.ClassType,
			Domain:     class.Domain,
			Properties: class.Properties,
			Status:     classStatus,
			ProposalID: &id,
			UpdatedAt:  updatedAt,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].ClassID < views[j].ClassID
	})
	return views, nil
}

func activeView(class *models.OntologyClass) *models.ClassView {
	id := class.ID
	return &models.ClassView{
		ClassID:    class.ClassID,
		Label:      class.Label,
		ClassType:  class.ClassType,
		Domain:     class.Domain,
		Properties: class.Properties,
		Status:     models.ClassStatusActive,
		Version:    class.Version,
		ID:         &id,
		UpdatedAt:  class.UpdatedAt,
	}
}
