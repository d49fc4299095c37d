package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
)

var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// DocumentStatus is the ingestion pipeline's processing state for a document.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

// IsValid returns true if s is a known document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusError:
		return true
	default:
		return false
	}
}

// Document is an uploaded source file. Entities link to it for provenance.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	Filename    string         `json:"filename"`
	ContentHash string         `json:"content_hash"`
	Status      DocumentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RegisterDocumentRequest is what the ingestion pipeline sends when a file
// has been stored.
type RegisterDocumentRequest struct {
	Filename    string         `json:"filename"`
	ContentHash string         `json:"content_hash"`
	Status      DocumentStatus `json:"status,omitempty"`
}

// Normalize lowercases the hash and defaults the status.
func (r *RegisterDocumentRequest) Normalize() {
	r.Filename = strings.TrimSpace(r.Filename)
	r.ContentHash = strings.ToLower(strings.TrimSpace(r.ContentHash))
	if r.Status == "" {
		r.Status = DocumentStatusUploaded
	}
}

// Validate checks a normalized request.
func (r *RegisterDocumentRequest) Validate() error {
	if r.Filename == "" {
		return apperrors.Validationf("filename is required")
	}
	if !contentHashPattern.MatchString(r.ContentHash) {
		return apperrors.Validationf("content_hash must be a hex-encoded sha256 digest")
	}
	if !r.Status.IsValid() {
		return apperrors.Validationf("unknown document status %q", r.Status)
	}
	return nil
}
