package services

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// memState is the full contents of the fake store.
type memState struct {
	classes   map[uuid.UUID]models.OntologyClass
	entities  map[uuid.UUID]models.Entity
	relations map[uuid.UUID]models.Relation
	instances map[uuid.UUID]models.Instance
	documents map[uuid.UUID]models.Document
	proposals map[uuid.UUID]models.Proposal
}

func (s *memState) clone() *memState {
	return &memState{
		classes:   maps.Clone(s.classes),
		entities:  maps.Clone(s.entities),
		relations: maps.Clone(s.relations),
		instances: maps.Clone(s.instances),
		documents: maps.Clone(s.documents),
		proposals: maps.Clone(s.proposals),
	}
}

// memStore is an in-memory stand-in for Postgres. Transactions are
// serialized and roll back by restoring a snapshot, which is enough to
// observe atomicity from the service layer.
type memStore struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state *memState
	clock time.Time

	// markDecidedErr, when set, is returned by the next MarkDecided call.
	markDecidedErr error

	// beforeRelationInsert, when set, runs once at the start of the next
	// relation insert, after the merge has been planned.
	beforeRelationInsert func()
}

// removeEntity deletes an entity behind the service's back.
func (m *memStore) removeEntity(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.entities, id)
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			classes:   map[uuid.UUID]models.OntologyClass{},
			entities:  map[uuid.UUID]models.Entity{},
			relations: map[uuid.UUID]models.Relation{},
			instances: map[uuid.UUID]models.Instance{},
			documents: map[uuid.UUID]models.Document{},
			proposals: map[uuid.UUID]models.Proposal{},
		},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// now returns strictly increasing timestamps. Caller holds mu.
func (m *memStore) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Store() *Store {
	return &Store{
		Classes:   &memClassRepo{m},
		Entities:  &memEntityRepo{m},
		Relations: &memRelationRepo{m},
		Instances: &memInstanceRepo{m},
		Documents: &memDocumentRepo{m},
		Proposals: &memProposalRepo{m},
	}
}

// Inspection helpers for assertions.

func (m *memStore) activeClasses(classID string) []models.OntologyClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OntologyClass
	for _, c := range m.state.classes {
		if c.ClassID == classID && c.Status == models.ClassStatusActive {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) entityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.entities)
}

func (m *memStore) relationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.relations)
}

func (m *memStore) instanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.instances)
}

func (m *memStore) proposal(id uuid.UUID) models.Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.proposals[id]
}

func nilIfEmpty(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// --- classes ---

type memClassRepo struct{ m *memStore }

func (r *memClassRepo) GetActiveByClassID(_ context.Context, classID string) (*models.OntologyClass, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.state.classes {
		if c.ClassID == classID && c.Status == models.ClassStatusActive {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memClassRepo) GetByID(_ context.Context, id uuid.UUID) (*models.OntologyClass, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.classes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memClassRepo) ListActive(_ context.Context) ([]*models.OntologyClass, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.OntologyClass
	for _, c := range r.m.state.classes {
		if c.Status == models.ClassStatusActive {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out, nil
}

func (r *memClassRepo) Insert(_ context.Context, class *models.OntologyClass) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.state.classes {
		if c.ClassID == class.ClassID && c.Status == models.ClassStatusActive {
			return apperrors.Conflictf("insert ontology class %s: ontology_classes_active_class_id_key", class.ClassID)
		}
	}
	if class.ID == uuid.Nil {
		class.ID = uuid.New()
	}
	now := r.m.now()
	class.Status = models.ClassStatusActive
	class.Version = 1
	class.CreatedAt = now
	class.UpdatedAt = now
	class.UpdatedByProposal = class.CreatedByProposal
	r.m.state.classes[class.ID] = *class
	return nil
}

func (r *memClassRepo) Update(_ context.Context, class *models.OntologyClass, expectedVersion int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.state.classes[class.ID]
	if !ok || stored.Version != expectedVersion || stored.Status != models.ClassStatusActive {
		return apperrors.Conflictf("ontology class %s changed since version %d", class.ClassID, expectedVersion)
	}
	stored.Label = class.Label
	stored.ClassType = class.ClassType
	stored.Domain = class.Domain
	stored.Properties = class.Properties
	stored.UpdatedByProposal = class.UpdatedByProposal
	stored.Version++
	stored.UpdatedAt = r.m.now()
	r.m.state.classes[class.ID] = stored

	class.Version = stored.Version
	class.UpdatedAt = stored.UpdatedAt
	return nil
}

// --- entities ---

type memEntityRepo struct{ m *memStore }

func (r *memEntityRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.state.entities[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEntityRepo) FindByKey(_ context.Context, classRef *uuid.UUID, nameKey string) (*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.state.entities {
		if nilIfEmpty(e.ClassRef) == nilIfEmpty(classRef) && e.NameKey == nameKey {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memEntityRepo) FindByNameKey(_ context.Context, nameKey string) ([]*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Entity
	for _, e := range r.m.state.entities {
		if e.NameKey == nameKey {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memEntityRepo) Insert(_ context.Context, entity *models.Entity) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.state.entities {
		if nilIfEmpty(e.ClassRef) == nilIfEmpty(entity.ClassRef) && e.NameKey == entity.NameKey {
			return apperrors.Conflictf("insert entity %s: entities_class_name_key", entity.Name)
		}
	}
	if entity.ClassRef != nil {
		if c, ok := r.m.state.classes[*entity.ClassRef]; !ok || c.Status != models.ClassStatusActive {
			return apperrors.Conflictf("insert entity %s references a row that no longer exists", entity.Name)
		}
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Properties == nil {
		entity.Properties = map[string]any{}
	}
	now := r.m.now()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	r.m.state.entities[entity.ID] = *entity
	return nil
}

func (r *memEntityRepo) MergeProperties(_ context.Context, id uuid.UUID, props map[string]any) (*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.state.entities[id]
	if !ok {
		return nil, apperrors.NotFoundf("entity %s", id)
	}
	e.Properties = models.UnionProperties(e.Properties, props)
	e.UpdatedAt = r.m.now()
	r.m.state.entities[id] = e
	return &e, nil
}

func (r *memEntityRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.entities[id]; !ok {
		return apperrors.NotFoundf("entity %s", id)
	}
	delete(r.m.state.entities, id)
	maps.DeleteFunc(r.m.state.relations, func(_ uuid.UUID, rel models.Relation) bool {
		return rel.SourceEntityID == id || rel.TargetEntityID == id
	})
	maps.DeleteFunc(r.m.state.instances, func(_ uuid.UUID, inst models.Instance) bool {
		return inst.EntityID == id
	})
	return nil
}

func (r *memEntityRepo) List(_ context.Context, filter models.EntityFilter) ([]*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Entity
	for _, e := range r.m.state.entities {
		if len(filter.ClassIDs) > 0 && !slices.Contains(filter.ClassIDs, e.ClassID) {
			continue
		}
		if filter.DocumentID != nil && nilIfEmpty(e.SourceDocumentID) != *filter.DocumentID {
			continue
		}
		out = append(out, &e)
	}
	sortEntities(out)
	return out, nil
}

func (r *memEntityRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Entity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Entity
	for _, id := range ids {
		if e, ok := r.m.state.entities[id]; ok {
			out = append(out, &e)
		}
	}
	sortEntities(out)
	return out, nil
}

func sortEntities(entities []*models.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID.String() < entities[j].ID.String()
	})
}

// --- relations ---

type memRelationRepo struct{ m *memStore }

func (r *memRelationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Relation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rel, ok := r.m.state.relations[id]
	if !ok {
		return nil, nil
	}
	return &rel, nil
}

func (r *memRelationRepo) FindByTuple(_ context.Context, sourceID, targetID uuid.UUID, relType string) (*models.Relation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, rel := range r.m.state.relations {
		if rel.SourceEntityID == sourceID && rel.TargetEntityID == targetID && rel.RelType == relType {
			return &rel, nil
		}
	}
	return nil, nil
}

func (r *memRelationRepo) Insert(_ context.Context, relation *models.Relation) error {
	if hook := r.m.beforeRelationInsert; hook != nil {
		r.m.beforeRelationInsert = nil
		hook()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if relation.SourceEntityID == relation.TargetEntityID {
		return apperrors.Validationf("insert relation violates relations_no_self_loop")
	}
	_, srcOK := r.m.state.entities[relation.SourceEntityID]
	_, tgtOK := r.m.state.entities[relation.TargetEntityID]
	if !srcOK || !tgtOK {
		return apperrors.Conflictf("insert relation references a row that no longer exists")
	}
	for _, rel := range r.m.state.relations {
		if rel.SourceEntityID == relation.SourceEntityID && rel.TargetEntityID == relation.TargetEntityID && rel.RelType == relation.RelType {
			return apperrors.Conflictf("insert relation: relations_tuple_key")
		}
	}
	if relation.ID == uuid.Nil {
		relation.ID = uuid.New()
	}
	if relation.Properties == nil {
		relation.Properties = map[string]any{}
	}
	now := r.m.now()
	relation.CreatedAt = now
	relation.UpdatedAt = now
	r.m.state.relations[relation.ID] = *relation
	return nil
}

func (r *memRelationRepo) MergeProperties(_ context.Context, id uuid.UUID, props map[string]any) (*models.Relation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rel, ok := r.m.state.relations[id]
	if !ok {
		return nil, apperrors.NotFoundf("relation %s", id)
	}
	rel.Properties = models.UnionProperties(rel.Properties, props)
	rel.UpdatedAt = r.m.now()
	r.m.state.relations[id] = rel
	return &rel, nil
}

func (r *memRelationRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.relations[id]; !ok {
		return apperrors.NotFoundf("relation %s", id)
	}
	delete(r.m.state.relations, id)
	return nil
}

func (r *memRelationRepo) List(_ context.Context) ([]*models.Relation, error) {
	return r.filter(func(models.Relation) bool { return true }), nil
}

func (r *memRelationRepo) ListTouching(_ context.Context, entityIDs []uuid.UUID) ([]*models.Relation, error) {
	return r.filter(func(rel models.Relation) bool {
		return slices.Contains(entityIDs, rel.SourceEntityID) || slices.Contains(entityIDs, rel.TargetEntityID)
	}), nil
}

func (r *memRelationRepo) filter(keep func(models.Relation) bool) []*models.Relation {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Relation
	for _, rel := range r.m.state.relations {
		if keep(rel) {
			out = append(out, &rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- instances ---

type memInstanceRepo struct{ m *memStore }

func (r *memInstanceRepo) FindByKey(_ context.Context, entityID uuid.UUID, key string) (*models.Instance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, inst := range r.m.state.instances {
		if inst.EntityID == entityID && inst.Key == key {
			return &inst, nil
		}
	}
	return nil, nil
}

func (r *memInstanceRepo) Insert(_ context.Context, instance *models.Instance) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.entities[instance.EntityID]; !ok {
		return apperrors.Conflictf("insert instance references a row that no longer exists")
	}
	for _, inst := range r.m.state.instances {
		if inst.EntityID == instance.EntityID && inst.Key == instance.Key {
			return apperrors.Conflictf("insert instance %s: instances_entity_key", instance.Key)
		}
	}
	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	if instance.Properties == nil {
		instance.Properties = map[string]any{}
	}
	now := r.m.now()
	instance.CreatedAt = now
	instance.UpdatedAt = now
	r.m.state.instances[instance.ID] = *instance
	return nil
}

func (r *memInstanceRepo) MergeProperties(_ context.Context, id uuid.UUID, props map[string]any) (*models.Instance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	inst, ok := r.m.state.instances[id]
	if !ok {
		return nil, apperrors.NotFoundf("instance %s", id)
	}
	inst.Properties = models.UnionProperties(inst.Properties, props)
	inst.UpdatedAt = r.m.now()
	r.m.state.instances[id] = inst
	return &inst, nil
}

func (r *memInstanceRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.instances[id]; !ok {
		return apperrors.NotFoundf("instance %s", id)
	}
	delete(r.m.state.instances, id)
	return nil
}

func (r *memInstanceRepo) ListByEntity(_ context.Context, entityID uuid.UUID) ([]*models.Instance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Instance
	for _, inst := range r.m.state.instances {
		if inst.EntityID == entityID {
			out = append(out, &inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *memInstanceRepo) CountByEntity(_ context.Context) (map[uuid.UUID]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, inst := range r.m.state.instances {
		counts[inst.EntityID]++
	}
	return counts, nil
}

// --- documents ---

type memDocumentRepo struct{ m *memStore }

func (r *memDocumentRepo) Upsert(_ context.Context, doc *models.Document) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, d := range r.m.state.documents {
		if d.ContentHash == doc.ContentHash {
			d.Filename = doc.Filename
			d.Status = doc.Status
			d.UpdatedAt = r.m.now()
			r.m.state.documents[id] = d
			*doc = d
			return nil
		}
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := r.m.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	r.m.state.documents[doc.ID] = *doc
	return nil
}

func (r *memDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.state.documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *memDocumentRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Document
	for _, id := range ids {
		if d, ok := r.m.state.documents[id]; ok {
			out = append(out, &d)
		}
	}
	return out, nil
}

// --- proposals ---

type memProposalRepo struct{ m *memStore }

func (r *memProposalRepo) Create(_ context.Context, p *models.Proposal) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.ProposalStatusPending
	p.CreatedAt = r.m.now()
	r.m.state.proposals[p.ID] = *p
	return nil
}

func (r *memProposalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.state.proposals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memProposalRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r *memProposalRepo) ListByStatus(_ context.Context, status models.ProposalStatus, filter models.ProposalFilter) ([]*models.Proposal, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var all []*models.Proposal
	for _, p := range r.m.state.proposals {
		if p.Status != status {
			continue
		}
		if filter.Type != nil && p.Type != *filter.Type {
			continue
		}
		all = append(all, &p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	if filter.After != nil {
		cursor, ok := r.m.state.proposals[*filter.After]
		if ok {
			all = slices.DeleteFunc(all, func(p *models.Proposal) bool {
				return !p.CreatedAt.After(cursor.CreatedAt) &&
					!(p.CreatedAt.Equal(cursor.CreatedAt) && p.ID.String() > cursor.ID.String())
			})
		}
	}

	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r *memProposalRepo) MarkDecided(_ context.Context, id uuid.UUID, status models.ProposalStatus, reviewer string, decision *models.MergeDecision) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.markDecidedErr; err != nil {
		r.m.markDecidedErr = nil
		return false, err
	}
	p, ok := r.m.state.proposals[id]
	if !ok || p.Status != models.ProposalStatusPending {
		return false, nil
	}
	now := r.m.now()
	p.Status = status
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &now
	if decision != nil {
		// Round-trip like the JSONB column so later edits to decision do not leak in.
		raw, err := json.Marshal(decision)
		if err != nil {
			return false, err
		}
		var stored models.MergeDecision
		if err := json.Unmarshal(raw, &stored); err != nil {
			return false, err
		}
		p.MergeResult = &stored
	}
	r.m.state.proposals[id] = p
	return true, nil
}

func (r *memProposalRepo) CountByStatus(_ context.Context) (*models.ProposalCounts, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := &models.ProposalCounts{}
	for _, p := range r.m.state.proposals {
		switch p.Status {
		case models.ProposalStatusPending:
			counts.Pending++
		case models.ProposalStatusApproved:
			counts.Approved++
		case models.ProposalStatusRejected:
			counts.Rejected++
		}
		counts.Total++
	}
	return counts, nil
}
