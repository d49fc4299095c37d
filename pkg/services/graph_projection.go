package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const (
	minNeighborhoodDepth = 1
	maxNeighborhoodDepth = 3
)

// GraphProjectionService renders the active store as nodes and edges. Every
// call reads current rows; nothing is cached.
type GraphProjectionService interface {
	Project(ctx context.Context, filter models.GraphFilter) (*models.GraphProjection, error)

	// Stats summarizes the projection for the given filter.
	Stats(ctx context.Context, filter models.GraphFilter) (*models.GraphStats, error)

	// Neighborhood returns the entities within depth relation hops of
	// entityID, their relations and their classes.
	Neighborhood(ctx context.Context, entityID uuid.UUID, depth int) (*models.GraphProjection, error)
}

type graphProjectionService struct {
	store  *Store
	logger *zap.Logger
}

// NewGraphProjectionService creates a new GraphProjectionService.
func NewGraphProjectionService(store *Store, logger *zap.Logger) GraphProjectionService {
	return &graphProjectionService{
		store:  store,
		logger: logger.Named("graph_projection"),
	}
}

var _ GraphProjectionService = (*graphProjectionService)(nil)

func (s *graphProjectionService) Project(ctx context.Context, filter models.GraphFilter) (*models.GraphProjection, error) {
	for _, t := range filter.NodeTypes {
		if !t.IsValid() {
			return nil, apperrors.Validationf("unknown node type %q", t)
		}
	}

	classes, err := s.store.Classes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	if len(filter.ClassIDs) > 0 {
		classes = slices.DeleteFunc(classes, func(c *models.OntologyClass) bool {
			return !slices.Contains(filter.ClassIDs, c.ClassID)
		})
	}

	entities, err := s.store.Entities.List(ctx, models.EntityFilter{
		ClassIDs:   filter.ClassIDs,
		DocumentID: filter.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	// A document filter scopes classes to the ones its entities instantiate.
	if filter.DocumentID != nil {
		used := make(map[uuid.UUID]bool, len(entities))
		for _, e := range entities {
			if e.ClassRef != nil {
				used[*e.ClassRef] = true
			}
		}
		classes = slices.DeleteFunc(classes, func(c *models.OntologyClass) bool {
			return !used[c.ID]
		})
	}

	b := newProjectionBuilder(filter)
	b.addClasses(classes)

	if filter.WantsNodeType(models.NodeTypeFinancialEntity) && len(entities) > 0 {
		counts, err := s.store.Instances.CountByEntity(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count observations: %w", err)
		}
		b.addEntities(entities, counts)

		relations, err := s.store.Relations.ListTouching(ctx, entityIDs(entities))
		if err != nil {
			return nil, fmt.Errorf("failed to list relations: %w", err)
		}
		b.addRelations(relations)

		if filter.WantsNodeType(models.NodeTypeDocument) {
			docs, err := s.store.Documents.ListByIDs(ctx, documentIDs(entities))
			if err != nil {
				return nil, fmt.Errorf("failed to list documents: %w", err)
			}
			b.addDocuments(docs)
		}
	}

	projection := b.build()
	s.logger.Debug("Graph projected",
		zap.Int("nodes", len(projection.Nodes)),
		zap.Int("edges", len(projection.Edges)))
	return projection, nil
}

func (s *graphProjectionService) Stats(ctx context.Context, filter models.GraphFilter) (*models.GraphStats, error) {
	projection, err := s.Project(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &models.GraphStats{
		NodeCounts: make(map[models.NodeType]int),
		EdgeCounts: make(map[string]int),
		TotalNodes: len(projection.Nodes),
		TotalEdges: len(projection.Edges),
		Density:    Density(len(projection.Nodes), len(projection.Edges)),
	}
	for _, n := range projection.Nodes {
		stats.NodeCounts[n.Type]++
	}
	for _, e := range projection.Edges {
		stats.EdgeCounts[e.Relationship]++
	}

	components, islands := NewNodeGraphFromProjection(projection).FindConnectedComponents()
	stats.ComponentCount = len(components) + len(islands)
	stats.IslandCount = len(islands)
	switch {
	case len(components) > 0:
		stats.LargestComponent = components[0].Size
	case len(islands) > 0:
		stats.LargestComponent = 1
	}

	LogConnectivity(stats, components, s.logger)
	return stats, nil
}

func (s *graphProjectionService) Neighborhood(ctx context.Context, entityID uuid.UUID, depth int) (*models.GraphProjection, error) {
	depth = max(minNeighborhoodDepth, min(depth, maxNeighborhoodDepth))

	root, err := s.store.Entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if root == nil {
		return nil, apperrors.NotFoundf("entity %s", entityID)
	}

	visited := map[uuid.UUID]bool{root.ID: true}
	frontier := []uuid.UUID{root.ID}
	relationsByID := make(map[uuid.UUID]*models.Relation)

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		relations, err := s.store.Relations.ListTouching(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to list relations: %w", err)
		}
		var next []uuid.UUID
		for _, r := range relations {
			relationsByID[r.ID] = r
			for _, id := range []uuid.UUID{r.SourceEntityID, r.TargetEntityID} {
				if !visited[id] {
					visited[id] = true
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	ids := make([]uuid.UUID, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	entities, err := s.store.Entities.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	classes, err := s.store.Classes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	used := make(map[uuid.UUID]bool)
	for _, e := range entities {
		if e.ClassRef != nil {
			used[*e.ClassRef] = true
		}
	}
	classes = slices.DeleteFunc(classes, func(c *models.OntologyClass) bool {
		return !used[c.ID]
	})

	counts, err := s.store.Instances.CountByEntity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}

	relations := make([]*models.Relation, 0, len(relationsByID))
	for _, r := range relationsByID {
		relations = append(relations, r)
	}
	slices.SortFunc(relations, func(a, b *models.Relation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	b := newProjectionBuilder(models.GraphFilter{})
	b.addClasses(classes)
	b.addEntities(entities, counts)
	b.addRelations(relations)
	return b.build(), nil
}

// projectionBuilder accumulates nodes and only emits edges whose endpoints
// are both present.
type projectionBuilder struct {
	filter   models.GraphFilter
	nodes    []models.GraphNode
	edges    []models.GraphEdge
	nodeIDs  map[string]bool
	entities []*models.Entity
}

func newProjectionBuilder(filter models.GraphFilter) *projectionBuilder {
	return &projectionBuilder{
		filter:  filter,
		nodes:   []models.GraphNode{},
		edges:   []models.GraphEdge{},
		nodeIDs: make(map[string]bool),
	}
}

func (b *projectionBuilder) addNode(n models.GraphNode) {
	if b.nodeIDs[n.ID] {
		return
	}
	b.nodeIDs[n.ID] = true
	b.nodes = append(b.nodes, n)
}

func (b *projectionBuilder) addEdge(e models.GraphEdge) {
	if !b.nodeIDs[e.Source] || !b.nodeIDs[e.Target] {
		return
	}
	b.edges = append(b.edges, e)
}

func (b *projectionBuilder) addClasses(classes []*models.OntologyClass) {
	if !b.filter.WantsNodeType(models.NodeTypeOntologyClass) {
		return
	}
	for _, c := range classes {
		b.addNode(models.GraphNode{
			ID:      c.ID.String(),
			Type:    models.NodeTypeOntologyClass,
			Label:   c.Label,
			ClassID: c.ClassID,
			Properties: map[string]any{
				"class_type": c.ClassType,
				"domain":     c.Domain,
				"version":    c.Version,
				"properties": c.Properties,
			},
			Provenance: &models.Provenance{CreatedByProposal: c.CreatedByProposal},
		})
	}
}

func (b *projectionBuilder) addEntities(entities []*models.Entity, observations map[uuid.UUID]int) {
	for _, e := range entities {
		b.addNode(models.GraphNode{
			ID:         e.ID.String(),
			Type:       models.NodeTypeFinancialEntity,
			Label:      e.Name,
			ClassID:    e.ClassID,
			Properties: e.Properties,
			Provenance: &models.Provenance{
				SourceDocumentID:  e.SourceDocumentID,
				CreatedByProposal: e.CreatedByProposal,
			},
			Observations: observations[e.ID],
		})
		if e.ClassRef != nil {
			b.addEdge(models.GraphEdge{
				ID:           models.EdgeInstanceOf + ":" + e.ID.String(),
				Source:       e.ID.String(),
				Target:       e.ClassRef.String(),
				Relationship: models.EdgeInstanceOf,
			})
		}
	}
	b.entities = append(b.entities, entities...)
}

func (b *projectionBuilder) addRelations(relations []*models.Relation) {
	for _, r := range relations {
		b.addEdge(models.GraphEdge{
			ID:           r.ID.String(),
			Source:       r.SourceEntityID.String(),
			Target:       r.TargetEntityID.String(),
			Relationship: r.RelType,
			Properties:   r.Properties,
			Provenance: &models.Provenance{
				SourceDocumentID:  r.SourceDocumentID,
				CreatedByProposal: r.CreatedByProposal,
			},
		})
	}
}

// addDocuments adds document nodes and links every entity already added to
// the document it was extracted from.
func (b *projectionBuilder) addDocuments(docs []*models.Document) {
	for _, d := range docs {
		b.addNode(models.GraphNode{
			ID:    d.ID.String(),
			Type:  models.NodeTypeDocument,
			Label: d.Filename,
			Properties: map[string]any{
				"content_hash": d.ContentHash,
				"status":       d.Status,
			},
		})
	}
	for _, e := range b.entities {
		if e.SourceDocumentID == nil {
			continue
		}
		b.addEdge(models.GraphEdge{
			ID:           models.EdgeExtractedFrom + ":" + e.ID.String(),
			Source:       e.ID.String(),
			Target:       e.SourceDocumentID.String(),
			Relationship: models.EdgeExtractedFrom,
		})
	}
}

func (b *projectionBuilder) build() *models.GraphProjection {
	return &models.GraphProjection{Nodes: b.nodes, Edges: b.edges}
}

func entityIDs(entities []*models.Entity) []uuid.UUID {
	ids := make([]uuid.UUID, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

func documentIDs(entities []*models.Entity) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, e := range entities {
		if e.SourceDocumentID != nil && !seen[*e.SourceDocumentID] {
			seen[*e.SourceDocumentID] = true
			ids = append(ids, *e.SourceDocumentID)
		}
	}
	return ids
}
