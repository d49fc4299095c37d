package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// DocumentService registers source documents so proposals can cite them.
// Parsing and storage of the file itself belong to the ingestion pipeline.
type DocumentService interface {
	// Register records a document by content hash. Registering the same
	// content twice returns the original document with updated status.
	Register(ctx context.Context, req *models.RegisterDocumentRequest) (*models.Document, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

type documentService struct {
	store  *Store
	logger *zap.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(store *Store, logger *zap.Logger) DocumentService {
	return &documentService{
		store:  store,
		logger: logger.Named("documents"),
	}
}

var _ DocumentService = (*documentService)(nil)

func (s *documentService) Register(ctx context.Context, req *models.RegisterDocumentRequest) (*models.Document, error) {
	if req == nil {
		return nil, apperrors.Validationf("request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc := &models.Document{
		Filename:    req.Filename,
		ContentHash: req.ContentHash,
		Status:      req.Status,
	}
	if err := s.store.Documents.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	s.logger.Info("Document registered",
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", doc.Filename),
		zap.String("status", string(doc.Status)))

	return doc, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.store.Documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, apperrors.NotFoundf("document %s", id)
	}
	return doc, nil
}
