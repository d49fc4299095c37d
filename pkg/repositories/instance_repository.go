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

// InstanceRepository provides data access for keyed entity observations.
type InstanceRepository interface {
	// FindByKey returns the observation for (entityID, key), or nil.
	FindByKey(ctx context.Context, entityID uuid.UUID, key string) (*models.Instance, error)

	// Insert creates an observation. A duplicate key fails with apperrors.ErrConflict.
	Insert(ctx context.Context, instance *models.Instance) error

	// MergeProperties adds keys the observation does not have yet.
	MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Instance, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// ListByEntity returns an entity's observations ordered by key.
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Instance, error)

	// CountByEntity returns the number of observations per entity.
	CountByEntity(ctx context.Context) (map[uuid.UUID]int, error)
}

type instanceRepository struct{}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository() InstanceRepository {
	return &instanceRepository{}
}

var _ InstanceRepository = (*instanceRepository)(nil)

const instanceColumns = `id, entity_id, key, properties, source_document_id,
		       created_by_proposal, created_at, updated_at`

func (r *instanceRepository) FindByKey(ctx context.Context, entityID uuid.UUID, key string) (*models.Instance, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + instanceColumns + ` FROM instances WHERE entity_id = $1 AND key = $2`
	return scanInstance(q.QueryRow(ctx, query, entityID, key))
}

func (r *instanceRepository) Insert(ctx context.Context, instance *models.Instance) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	instance.Properties = nonNilProperties(instance.Properties)

	query := `
		INSERT INTO instances (
			id, entity_id, key, properties, source_document_id, created_by_proposal
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		instance.ID,
		instance.EntityID,
		instance.Key,
		instance.Properties,
		instance.SourceDocumentID,
		instance.CreatedByProposal,
	).Scan(&instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert instance "+instance.Key)
	}
	return nil
}

func (r *instanceRepository) MergeProperties(ctx context.Context, id uuid.UUID, props map[string]any) (*models.Instance, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE instances
		SET properties = $2::jsonb || properties, updated_at = now()
		WHERE id = $1
		RETURNING ` + instanceColumns

	instance, err := scanInstance(q.QueryRow(ctx, query, id, nonNilProperties(props)))
	if err != nil {
		return nil, mapWriteError(err, "merge instance properties")
	}
	if instance == nil {
		return nil, apperrors.NotFoundf("instance %s", id)
	}
	return instance, nil
}

func (r *instanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "delete instance")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFoundf("instance %s", id)
	}
	return nil
}

func (r *instanceRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.Instance, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+instanceColumns+` FROM instances WHERE entity_id = $1 ORDER BY key`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

func (r *instanceRepository) CountByEntity(ctx context.Context) (map[uuid.UUID]int, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT entity_id, COUNT(*) FROM instances GROUP BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var entityID uuid.UUID
		var count int
		if err := rows.Scan(&entityID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[entityID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

func scanInstance(row pgx.Row) (*models.Instance, error) {
	var inst models.Instance
	var properties []byte

	err := row.Scan(
		&inst.ID,
		&inst.EntityID,
		&inst.Key,
		&properties,
		&inst.SourceDocumentID,
		&inst.CreatedByProposal,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	inst.Properties = map[string]any{}
	if err := unmarshalJSONB(properties, &inst.Properties, "properties"); err != nil {
		return nil, err
	}
	return &inst, nil
}
