package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// Reconciler decides how a proposal maps onto the current store: a new row,
// a merge into an existing one, a no-op or a delete. It only reads.
type Reconciler interface {
	Decide(ctx context.Context, proposal *models.Proposal) (*models.MergeDecision, error)
}

// mergePlan is a decision plus the rows it was derived from, so the approval
// step does not look them up a second time.
type mergePlan struct {
	decision *models.MergeDecision
	payload  models.ProposalPayload

	// class is the active class the payload targets or is typed by.
	class *models.OntologyClass
	// nameKey is the match key of an entity payload.
	nameKey string

	entity   *models.Entity
	source   *models.Entity
	target   *models.Entity
	relation *models.Relation
	instance *models.Instance
}

type reconciler struct {
	store  *Store
	policy MatchPolicy
}

// NewReconciler creates a Reconciler using policy for entity name matching.
func NewReconciler(store *Store, policy MatchPolicy) Reconciler {
	return newReconciler(store, policy)
}

func newReconciler(store *Store, policy MatchPolicy) *reconciler {
	if policy == nil {
		policy = ExactMatchPolicy{}
	}
	return &reconciler{store: store, policy: policy}
}

var _ Reconciler = (*reconciler)(nil)

func (r *reconciler) Decide(ctx context.Context, proposal *models.Proposal) (*models.MergeDecision, error) {
	plan, err := r.plan(ctx, proposal)
	if err != nil {
		return nil, err
	}
	return plan.decision, nil
}

func (r *reconciler) plan(ctx context.Context, proposal *models.Proposal) (*mergePlan, error) {
	payload, err := proposal.DecodedPayload()
	if err != nil {
		return nil, err
	}

	var plan *mergePlan
	switch p := payload.(type) {
	case *models.ClassPayload:
		plan, err = r.planClass(ctx, proposal, p)
	case *models.PropertyPayload:
		plan, err = r.planProperty(ctx, proposal, p)
	case *models.EntityPayload:
		plan, err = r.planEntity(ctx, proposal.Action, p)
	case *models.RelationPayload:
		plan, err = r.planRelation(ctx, proposal.Action, p)
	case *models.InstancePayload:
		plan, err = r.planInstance(ctx, proposal.Action, p)
	default:
		return nil, apperrors.Validationf("unsupported payload %T", payload)
	}
	if err != nil {
		return nil, err
	}

	plan.payload = payload
	return plan, nil
}

func (r *reconciler) planClass(ctx context.Context, proposal *models.Proposal, p *models.ClassPayload) (*mergePlan, error) {
	existing, err := r.activeClass(ctx, p.ClassID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return &mergePlan{decision: &models.MergeDecision{
			Action:     models.MergeActionInsert,
			TargetKind: models.TargetKindClass,
			Reason:     fmt.Sprintf("no active class %s", p.ClassID),
		}}, nil
	}

	if existing.Version != proposal.BaseVersion {
		if fields := classConflicts(existing, p.Label, p.ClassType, p.Domain, p.Properties); len(fields) > 0 {
			return nil, apperrors.Conflictf(
				"class %s is at version %d but the proposal was written against version %d and changes %s",
				p.ClassID, existing.Version, proposal.BaseVersion, strings.Join(fields, ", "))
		}
	}

	return &mergePlan{
		class: existing,
		decision: &models.MergeDecision{
			Action:     models.MergeActionUpdate,
			TargetKind: models.TargetKindClass,
			TargetID:   &existing.ID,
			Reason:     fmt.Sprintf("merge into %s version %d", p.ClassID, existing.Version),
		},
	}, nil
}

func (r *reconciler) planProperty(ctx context.Context, proposal *models.Proposal, p *models.PropertyPayload) (*mergePlan, error) {
	existing, err := r.activeClass(ctx, p.ClassID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.Validationf("ontology class %s is not active", p.ClassID)
	}

	if existing.Version != proposal.BaseVersion {
		if fields := classConflicts(existing, "", "", "", p.Properties); len(fields) > 0 {
			return nil, apperrors.Conflictf(
				"class %s is at version %d but the proposal was written against version %d and changes %s",
				p.ClassID, existing.Version, proposal.BaseVersion, strings.Join(fields, ", "))
		}
	}

	return &mergePlan{
		class: existing,
		decision: &models.MergeDecision{
			Action:     models.MergeActionUpdate,
			TargetKind: models.TargetKindClass,
			TargetID:   &existing.ID,
			Reason:     fmt.Sprintf("add %d properties to %s", len(p.Properties), p.ClassID),
		},
	}, nil
}

// classConflicts lists what a stale proposal would change on the active
// class. Empty label, type or domain means the proposal does not set them.
func classConflicts(existing *models.OntologyClass, label string, classType models.ClassType, domain string, props models.PropertySchema) []string {
	var fields []string
	if label != "" && label != existing.Label {
		fields = append(fields, "label")
	}
	if classType != "" && classType != existing.ClassType {
		fields = append(fields, "class_type")
	}
	if domain != "" && domain != existing.Domain {
		fields = append(fields, "domain")
	}

	var changed []string
	for name, desc := range props {
		if current, ok := existing.Properties[name]; ok && current != desc {
			changed = append(changed, "properties."+name)
		}
	}
	sort.Strings(changed)
	return append(fields, changed...)
}

func (r *reconciler) planEntity(ctx context.Context, action models.ProposalAction, p *models.EntityPayload) (*mergePlan, error) {
	var class *models.OntologyClass
	if p.ClassID != "" {
		var err error
		class, err = r.activeClass(ctx, p.ClassID)
		if err != nil {
			return nil, err
		}
		if class == nil {
			return nil, apperrors.Validationf("ontology class %s is not active", p.ClassID)
		}
	}
	if err := r.checkDocument(ctx, p.SourceDocumentID); err != nil {
		return nil, err
	}

	nameKey := r.policy.Key(p.Name)
	existing, err := r.store.Entities.FindByKey(ctx, classRef(class), nameKey)
	if err != nil {
		return nil, fmt.Errorf("failed to match entity: %w", err)
	}

	plan := &mergePlan{class: class, nameKey: nameKey, entity: existing}
	label := entityLabel(p.Name, p.ClassID)

	switch action {
	case models.ProposalActionDelete:
		if existing == nil {
			return nil, apperrors.Validationf("entity %s does not exist", label)
		}
		plan.decision = &models.MergeDecision{
			Action:     models.MergeActionDelete,
			TargetKind: models.TargetKindEntity,
			TargetID:   &existing.ID,
			Reason:     fmt.Sprintf("delete entity %s", label),
		}
	default:
		if existing != nil {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionNoop,
				TargetKind: models.TargetKindEntity,
				TargetID:   &existing.ID,
				Reason:     fmt.Sprintf("matches existing entity %q", existing.Name),
			}
		} else {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionInsert,
				TargetKind: models.TargetKindEntity,
				Reason:     fmt.Sprintf("no entity matches %s", label),
			}
		}
	}
	return plan, nil
}

func (r *reconciler) planRelation(ctx context.Context, action models.ProposalAction, p *models.RelationPayload) (*mergePlan, error) {
	source, err := r.resolveRef(ctx, "source", p.Source)
	if err != nil {
		return nil, err
	}
	target, err := r.resolveRef(ctx, "target", p.Target)
	if err != nil {
		return nil, err
	}
	if source.ID == target.ID {
		return nil, apperrors.Validationf("relation source and target resolve to the same entity %q", source.Name)
	}
	if err := r.checkDocument(ctx, p.SourceDocumentID); err != nil {
		return nil, err
	}

	existing, err := r.store.Relations.FindByTuple(ctx, source.ID, target.ID, p.RelType)
	if err != nil {
		return nil, fmt.Errorf("failed to match relation: %w", err)
	}

	plan := &mergePlan{source: source, target: target, relation: existing}
	label := fmt.Sprintf("%s -[%s]-> %s", source.Name, p.RelType, target.Name)

	switch action {
	case models.ProposalActionDelete:
		if existing == nil {
			return nil, apperrors.Validationf("relation %s does not exist", label)
		}
		plan.decision = &models.MergeDecision{
			Action:     models.MergeActionDelete,
			TargetKind: models.TargetKindRelation,
			TargetID:   &existing.ID,
			Reason:     "delete relation " + label,
		}
	default:
		if existing != nil {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionNoop,
				TargetKind: models.TargetKindRelation,
				TargetID:   &existing.ID,
				Reason:     "relation already exists: " + label,
			}
		} else {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionInsert,
				TargetKind: models.TargetKindRelation,
				Reason:     "new relation " + label,
			}
		}
	}
	return plan, nil
}

func (r *reconciler) planInstance(ctx context.Context, action models.ProposalAction, p *models.InstancePayload) (*mergePlan, error) {
	owner, err := r.resolveRef(ctx, "entity", p.Entity)
	if err != nil {
		return nil, err
	}
	if err := r.checkDocument(ctx, p.SourceDocumentID); err != nil {
		return nil, err
	}

	key := string(p.Key)
	existing, err := r.store.Instances.FindByKey(ctx, owner.ID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to match instance: %w", err)
	}

	plan := &mergePlan{entity: owner, instance: existing}

	switch action {
	case models.ProposalActionDelete:
		if existing == nil {
			return nil, apperrors.Validationf("instance %s of %q does not exist", key, owner.Name)
		}
		plan.decision = &models.MergeDecision{
			Action:     models.MergeActionDelete,
			TargetKind: models.TargetKindInstance,
			TargetID:   &existing.ID,
			Reason:     fmt.Sprintf("delete instance %s of %q", key, owner.Name),
		}
	default:
		if existing != nil {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionNoop,
				TargetKind: models.TargetKindInstance,
				TargetID:   &existing.ID,
				Reason:     fmt.Sprintf("instance %s of %q already exists", key, owner.Name),
			}
		} else {
			plan.decision = &models.MergeDecision{
				Action:     models.MergeActionInsert,
				TargetKind: models.TargetKindInstance,
				Reason:     fmt.Sprintf("new instance %s of %q", key, owner.Name),
			}
		}
	}
	return plan, nil
}

// resolveRef finds the entity a reference points at. A bare name must be
// unambiguous across classes.
func (r *reconciler) resolveRef(ctx context.Context, field string, ref models.EntityRef) (*models.Entity, error) {
	if ref.ID != nil {
		entity, err := r.store.Entities.GetByID(ctx, *ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", field, err)
		}
		if entity == nil {
			return nil, apperrors.Validationf("%s entity %s does not exist", field, ref.ID)
		}
		return entity, nil
	}

	nameKey := r.policy.Key(ref.Name)

	if ref.ClassID != "" {
		class, err := r.activeClass(ctx, ref.ClassID)
		if err != nil {
			return nil, err
		}
		if class == nil {
			return nil, apperrors.Validationf("%s class %s is not active", field, ref.ClassID)
		}
		entity, err := r.store.Entities.FindByKey(ctx, &class.ID, nameKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", field, err)
		}
		if entity == nil {
			return nil, apperrors.Validationf("%s entity %s does not exist", field, ref)
		}
		return entity, nil
	}

	candidates, err := r.store.Entities.FindByNameKey(ctx, nameKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", field, err)
	}
	switch len(candidates) {
	case 0:
		return nil, apperrors.Validationf("%s entity %s does not exist", field, ref)
	case 1:
		return candidates[0], nil
	}
	return nil, apperrors.Validationf("%s entity %s is ambiguous across %d classes; set class_id", field, ref, len(candidates))
}

func (r *reconciler) activeClass(ctx context.Context, classID string) (*models.OntologyClass, error) {
	class, err := r.store.Classes.GetActiveByClassID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up class %s: %w", classID, err)
	}
	return class, nil
}

func (r *reconciler) checkDocument(ctx context.Context, docID *uuid.UUID) error {
	if docID == nil {
		return nil
	}
	doc, err := r.store.Documents.GetByID(ctx, *docID)
	if err != nil {
		return fmt.Errorf("failed to look up source document: %w", err)
	}
	if doc == nil {
		return apperrors.Validationf("source document %s does not exist", docID)
	}
	return nil
}

func classRef(class *models.OntologyClass) *uuid.UUID {
	if class == nil {
		return nil
	}
	return &class.ID
}

func entityLabel(name, classID string) string {
	if classID == "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%q (%s)", name, classID)
}
