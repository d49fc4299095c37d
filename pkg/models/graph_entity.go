package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a node of the knowledge graph, optionally instantiating an
// active ontology class.
type Entity struct {
	ID                uuid.UUID      `json:"id"`
	Name              string         `json:"name"`
	NameKey           string         `json:"name_key"`
	ClassRef          *uuid.UUID     `json:"class_ref,omitempty"`
	ClassID           string         `json:"class_id,omitempty"`
	Properties        map[string]any `json:"properties"`
	SourceDocumentID  *uuid.UUID     `json:"source_document_id,omitempty"`
	CreatedByProposal *uuid.UUID     `json:"created_by_proposal,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Relation is a directed, typed edge between two entities.
type Relation struct {
	ID                uuid.UUID      `json:"id"`
	SourceEntityID    uuid.UUID      `json:"source_entity_id"`
	TargetEntityID    uuid.UUID      `json:"target_entity_id"`
	RelType           string         `json:"rel_type"`
	Properties        map[string]any `json:"properties"`
	SourceDocumentID  *uuid.UUID     `json:"source_document_id,omitempty"`
	CreatedByProposal *uuid.UUID     `json:"created_by_proposal,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Instance is a keyed observation attached to an entity, such as the
// value of an account for a given period.
type Instance struct {
	ID                uuid.UUID      `json:"id"`
	EntityID          uuid.UUID      `json:"entity_id"`
	Key               string         `json:"key"`
	Properties        map[string]any `json:"properties"`
	SourceDocumentID  *uuid.UUID     `json:"source_document_id,omitempty"`
	CreatedByProposal *uuid.UUID     `json:"created_by_proposal,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// EntityFilter narrows entity listings.
type EntityFilter struct {
	ClassIDs   []string
	DocumentID *uuid.UUID
}

// UnionProperties returns base with every key of extra that base does not
// already define. Existing values win.
func UnionProperties(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
