package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// RelationRepository provides data access for relations between entities.
type RelationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Relation, error)

	// FindByTuple returns the relation with the given natural key, or nil.
	FindByTuple(ctx context.Context, sourceID, targetID uuid.UUID, relType string) (*models.Relation, error)

	// Insert creates a relation. A duplicate tuple fails with apperrors.ErrConflict;
	// a missing endpoint fails with apperrors.ErrConflict.
	Insert(ctx context.Context, relation *models.Relation) error

	// MergeProperties adds keys the relation does not have yet.
	MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Relation, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// List returns every relation ordered by creation.
	List(ctx context.Context) ([]*models.Relation, error)

	// ListTouching returns relations with either endpoint in entityIDs.
	ListTouching(ctx context.Context, entityIDs []uuid.UUID) ([]*models.Relation, error)
}

type relationRepository struct{}

// NewRelationRepository creates a new RelationRepository.
func NewRelationRepository() RelationRepository {
	return &relationRepository{}
}

var _ RelationRepository = (*relationRepository)(nil)

const relationColumns = `id, source_entity_id, target_entity_id, rel_type, properties,
		       source_document_id, created_by_proposal, created_at, updated_at`

func (r *relationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Relation, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + relationColumns + ` FROM relations WHERE id = $1`
	return scanRelation(q.QueryRow(ctx, query, id))
}

func (r *relationRepository) FindByTuple(ctx context.Context, sourceID, targetID uuid.UUID, relType string) (*models.Relation, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + relationColumns + `
		FROM relations
		WHERE source_entity_id = $1 AND target_entity_id = $2 AND rel_type = $3`

	return scanRelation(q.QueryRow(ctx, query, sourceID, targetID, relType))
}

func (r *relationRepository) Insert(ctx context.Context, relation *models.Relation) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if relation.ID == uuid.Nil {
		relation.ID = uuid.New()
	}
	relation.Properties = nonNilProperties(relation.Properties)

	query := `
		INSERT INTO relations (
			id, source_entity_id, target_entity_id, rel_type, properties,
			source_document_id, created_by_proposal
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		relation.ID,
		relation.SourceEntityID,
		relation.TargetEntityID,
		relation.RelType,
		relation.Properties,
		relation.SourceDocumentID,
		relation.CreatedByProposal,
	).Scan(&relation.CreatedAt, &relation.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert relation "+relation.RelType)
	}

	return nil
}

func (r *relationRepository) MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Relation, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE relations
		SET properties = $2::jsonb || properties, updated_at = now()
		WHERE id = $1
		RETURNING ` + relationColumns

	relation, err := scanRelation(q.QueryRow(ctx, query, id, nonNilProperties(props)))
	if err != nil {
		return nil, mapWriteError(err, "merge relation properties")
	}
	if relation == nil {
		return nil, apperrors.NotFoundf("relation %s", id)
	}
	return relation, nil
}

func (r *relationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM relations WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "delete relation")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("relation %s", id)
	}
	return nil
}

func (r *relationRepository) List(ctx context.Context) ([]*models.Relation, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+relationColumns+` FROM relations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	defer rows.Close()

	return scanRelations(rows)
}

func (r *relationRepository) ListTouching(ctx context.Context, entityIDs []uuid.UUID) ([]*models.Relation, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + relationColumns + `
		FROM relations
		WHERE source_entity_id = ANY($1) OR target_entity_id = ANY($1)
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations for entities: %w", err)
	}
	defer rows.Close()

	return scanRelations(rows)
}

func scanRelations(rows pgx.Rows) ([]*models.Relation, error) {
	var relations []*models.Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return relations, nil
}

func scanRelation(row pgx.Row) (*models.Relation, error) {
	var rel models.Relation
	var properties []byte

	err := row.Scan(
		&rel.ID,
		&rel.SourceEntityID,
		&rel.TargetEntityID,
		&rel.RelType,
		&properties,
		&rel.SourceDocumentID,
		&rel.CreatedByProposal,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan relation: %w", err)
	}

	rel.Properties = map[string]any{}
	if err := unmarshalJSONB(properties, &rel.Properties, "properties"); err != nil {
		return nil, err
	}
	return &rel, nil
}
