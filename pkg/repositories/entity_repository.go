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

// EntityRepository provides data access for knowledge graph entities.
type EntityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Entity, error)

	// FindByKey returns the entity with the given class reference (nil for
	// untyped entities) and normalised name key, or nil.
	FindByKey(ctx context.Context, classRef *uuid.UUID, nameKey string) (*models.Entity, error)

	// FindByNameKey returns every entity with the given name key, across classes.
	FindByNameKey(ctx context.Context, nameKey string) ([]*models.Entity, error)

	// Insert creates an entity. A duplicate (class_ref, name_key) fails with
	// apperrors.ErrConflict.
	Insert(ctx context.Context, entity *models.Entity) error

	// MergeProperties adds keys from props the entity does not have yet.
	// Existing values are kept.
	MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Entity, error)

	// Delete removes an entity; relations and instances cascade.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns entities matching the filter ordered by name.
	List(ctx context.Context, filter models.EntityFilter) ([]*models.Entity, error)

	// ListByIDs returns the entities with the given ids.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Entity, error)
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

const entityColumns = `id, name, name_key, class_ref, class_id, properties,
		       source_document_id, created_by_proposal, created_at, updated_at`

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`
	return scanEntity(q.QueryRow(ctx, query, id))
}

func (r *entityRepository) FindByKey(ctx context.Context, classRef *uuid.UUID, nameKey string) (*models.Entity, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE class_ref IS NOT DISTINCT FROM $1 AND name_key = $2`

	return scanEntity(q.QueryRow(ctx, query, classRef, nameKey))
}

func (r *entityRepository) FindByNameKey(ctx context.Context, nameKey string) ([]*models.Entity, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE name_key = $1
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, nameKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities by name: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

func (r *entityRepository) Insert(ctx context.Context, entity *models.Entity) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.Properties = nonNilProperties(entity.Properties)

	query := `
		INSERT INTO entities (
			id, name, name_key, class_ref, class_id, properties,
			source_document_id, created_by_proposal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		entity.ID,
		entity.Name,
		entity.NameKey,
		entity.ClassRef,
		nullableString(entity.ClassID),
		entity.Properties,
		entity.SourceDocumentID,
		entity.CreatedByProposal,
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert entity "+entity.Name)
	}

	return nil
}

func (r *entityRepository) MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Entity, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	// jsonb || keeps the right-hand value on key collisions, so existing
	// properties go on the right.
	query := `
		UPDATE entities
		SET properties = $2::jsonb || properties, updated_at = now()
		WHERE id = $1
		RETURNING ` + entityColumns

	entity, err := scanEntity(q.QueryRow(ctx, query, id, nonNilProperties(props)))
	if err != nil {
		return nil, mapWriteError(err, "merge entity properties")
	}
	if entity == nil {
		return nil, apperrors.NotFoundf("entity %s", id)
	}
	return entity, nil
}

func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "delete entity")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("entity %s", id)
	}
	return nil
}

func (r *entityRepository) List(ctx context.Context, filter models.EntityFilter) ([]*models.Entity, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE (cardinality($1::text[]) = 0 OR class_id = ANY($1))
		  AND ($2::uuid IS NULL OR source_document_id = $2)
		ORDER BY name, id`

	classIDs := filter.ClassIDs
	if classIDs == nil {
		classIDs = []string{}
	}

	rows, err := q.Query(ctx, query, classIDs, filter.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

func (r *entityRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ANY($1) ORDER BY name, id`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by id: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

func scanEntities(rows pgx.Rows) ([]*models.Entity, error) {
	var entities []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity
	var classID *string
	var properties []byte

	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.NameKey,
		&e.ClassRef,
		&classID,
		&properties,
		&e.SourceDocumentID,
		&e.CreatedByProposal,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	if classID != nil {
		e.ClassID = *classID
	}
	e.Properties = map[string]any{}
	if err := unmarshalJSONB(properties, &e.Properties, "properties"); err != nil {
		return nil, err
	}

	return &e, nil
}
