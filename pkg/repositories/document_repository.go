package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// DocumentRepository provides data access for uploaded source documents.
type DocumentRepository interface {
	// Upsert registers a document by content hash. Registering the same
	// hash again updates filename and status and keeps the original id.
	Upsert(ctx context.Context, doc *models.Document) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	// ListByIDs returns the documents with the given ids.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error)
}

type documentRepository struct{}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

var _ DocumentRepository = (*documentRepository)(nil)

const documentColumns = `id, filename, content_hash, status, created_at, updated_at`

func (r *documentRepository) Upsert(ctx context.Context, doc *models.Document) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	query := `
		INSERT INTO documents (id, filename, content_hash, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO UPDATE
		SET filename = EXCLUDED.filename, status = EXCLUDED.status, updated_at = now()
		RETURNING ` + documentColumns

	stored, err := scanDocument(q.QueryRow(ctx, query, doc.ID, doc.Filename, doc.ContentHash, doc.Status))
	if err != nil {
		return mapWriteError(err, "register document "+doc.Filename)
	}
	*doc = *stored
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	return scanDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (r *documentRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}
