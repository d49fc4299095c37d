package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScopeMiddleware attaches a database scope to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ParseProposalID extracts and validates the proposal ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseProposalID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_proposal_id", "Invalid proposal ID format", logger)
}

// ParseEntityID extracts and validates the entity ID from the request path.
// Expects path parameter: id
func ParseEntityID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_entity_id", "Invalid entity ID format", logger)
}

// ParseDocumentID extracts and validates the document ID from the request path.
// Expects path parameter: id
func ParseDocumentID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_document_id", "Invalid document ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeBadRequest(w, logger, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUIDQuery reads an optional UUID query parameter.
func parseOptionalUUIDQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, logger, "invalid_"+name, "Invalid "+name+" format")
		return nil, false
	}
	return &id, true
}

// parseOptionalIntQuery reads an optional non-negative integer query parameter.
func parseOptionalIntQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, logger, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// parseOptionalBoolQuery reads an optional boolean query parameter.
func parseOptionalBoolQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeBadRequest(w, logger, "invalid_"+name, name+" must be true or false")
		return false, false
	}
	return v, true
}
