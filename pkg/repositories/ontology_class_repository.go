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

// OntologyClassRepository provides data access for active ontology classes.
type OntologyClassRepository interface {
	// GetActiveByClassID returns the active class with the given slug, or nil.
	GetActiveByClassID(ctx context.Context, classID string) (*models.OntologyClass, error)

	// GetByID returns a class by surrogate id, or nil.
	GetByID(ctx context.Context, id uuid.UUID) (*models.OntologyClass, error)

	// ListActive returns every active class ordered by class_id.
	ListActive(ctx context.Context) ([]*models.OntologyClass, error)

	// Insert creates an active class at version 1. A second active row for
	// the same class_id fails with apperrors.ErrConflict.
	Insert(ctx context.Context, class *models.OntologyClass) error

	// Update writes label, type, domain and properties and bumps the version,
	// provided the stored version still equals expectedVersion. Otherwise it
	// fails with apperrors.ErrConflict.
	Update(ctx context.Context, class *models.OntologyClass, expectedVersion int64) error
}

type ontologyClassRepository struct{}

// NewOntologyClassRepository creates a new OntologyClassRepository.
func NewOntologyClassRepository() OntologyClassRepository {
	return &ontologyClassRepository{}
}

var _ OntologyClassRepository = (*ontologyClassRepository)(nil)

const classColumns = `id, class_id, label, class_type, domain, properties, status, version,
		       created_by_proposal, updated_by_proposal, created_at, updated_at`

func (r *ontologyClassRepository) GetActiveByClassID(ctx context.Context, classID string) (*models.OntologyClass, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + classColumns + `
		FROM ontology_classes
		WHERE class_id = $1 AND status = 'active'`

	return scanClass(q.QueryRow(ctx, query, classID))
}

func (r *ontologyClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OntologyClass, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + classColumns + `
		FROM ontology_classes
		WHERE id = $1`

	return scanClass(q.QueryRow(ctx, query, id))
}

func (r *ontologyClassRepository) ListActive(ctx context.Context) ([]*models.OntologyClass, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + classColumns + `
		FROM ontology_classes
		WHERE status = 'active'
		ORDER BY class_id`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ontology classes: %w", err)
	}
	defer rows.Close()

	var classes []*models.OntologyClass
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ontology classes: %w", err)
	}

	return classes, nil
}

func (r *ontologyClassRepository) Insert(ctx context.Context, class *models.OntologyClass) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if class.ID == uuid.Nil {
		class.ID = uuid.New()
	}
	if class.Properties == nil {
		class.Properties = models.PropertySchema{}
	}

	query := `
		INSERT INTO ontology_classes (
			id, class_id, label, class_type, domain, properties, status, version,
			created_by_proposal, updated_by_proposal
		) VALUES ($1, $2, $3, $4, $5, $6, 'active', 1, $7, $7)
		RETURNING status, version, created_at, updated_at`

	err = q.QueryRow(ctx, query,
		class.ID,
		class.ClassID,
		class.Label,
		class.ClassType,
		class.Domain,
		class.Properties,
		class.CreatedByProposal,
	).Scan(&class.Status, &class.Version, &class.CreatedAt, &class.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert ontology class "+class.ClassID)
	}
	class.UpdatedByProposal = class.CreatedByProposal

	return nil
}

func (r *ontologyClassRepository) Update(ctx context.Context, class *models.OntologyClass, expectedVersion int64) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE ontology_classes
		SET label = $3, class_type = $4, domain = $5, properties = $6,
		    updated_by_proposal = $7, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND status = 'active'
		RETURNING version, updated_at`

	err = q.QueryRow(ctx, query,
		class.ID,
		expectedVersion,
		class.Label,
		class.ClassType,
		class.Domain,
		class.Properties,
		class.UpdatedByProposal,
	).Scan(&class.Version, &class.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.Conflictf("ontology class %s changed since version %d", class.ClassID, expectedVersion)
	}
	if err != nil {
		return mapWriteError(err, "update ontology class "+class.ClassID)
	}

	return nil
}

func scanClass(row pgx.Row) (*models.OntologyClass, error) {
	var c models.OntologyClass
	var properties []byte

	err := row.Scan(
		&c.ID,
		&c.ClassID,
		&c.Label,
		&c.ClassType,
		&c.Domain,
		&properties,
		&c.Status,
		&c.Version,
		&c.CreatedByProposal,
		&c.UpdatedByProposal,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan ontology class: %w", err)
	}

	c.Properties = models.PropertySchema{}
	if err := unmarshalJSONB(properties, &c.Properties, "properties"); err != nil {
		return nil, err
	}

	return &c, nil
}
