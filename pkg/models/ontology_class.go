package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
)

// DefaultClassDomain is used when a class proposal does not name a domain.
const DefaultClassDomain = "default"

var (
	slugPattern         = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)
	propertyNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// ClassType distinguishes what kind of thing an ontology class describes.
type ClassType string

const (
	ClassTypeEntity          ClassType = "entity"
	ClassTypeRelation        ClassType = "relation"
	ClassTypeObservationType ClassType = "observation_type"
)

// IsValid returns true if t is a known class type.
func (t ClassType) IsValid() bool {
	switch t {
	case ClassTypeEntity, ClassTypeRelation, ClassTypeObservationType:
		return true
	default:
		return false
	}
}

// ClassStatus is the lifecycle state shown for an ontology class.
// Only active classes are persisted in ontology_classes; the other two
// states are derived from pending or rejected proposals.
type ClassStatus string

const (
	ClassStatusPendingReview ClassStatus = "pending_review"
	ClassStatusActive        ClassStatus = "active"
	ClassStatusRejected      ClassStatus = "rejected"
)

// IsValid returns true if s is a known class status.
func (s ClassStatus) IsValid() bool {
	switch s {
	case ClassStatusPendingReview, ClassStatusActive, ClassStatusRejected:
		return true
	default:
		return false
	}
}

// PropertyType is the value type declared for a class property.
type PropertyType string

const (
	PropertyTypeString   PropertyType = "string"
	PropertyTypeNumber   PropertyType = "number"
	PropertyTypeInteger  PropertyType = "integer"
	PropertyTypeBoolean  PropertyType = "boolean"
	PropertyTypeDate     PropertyType = "date"
	PropertyTypeCurrency PropertyType = "currency"
	PropertyTypeObject   PropertyType = "object"
	PropertyTypeArray    PropertyType = "array"
)

// IsValid returns true if t is a known property type.
func (t PropertyType) IsValid() bool {
	switch t {
	case PropertyTypeString, PropertyTypeNumber, PropertyTypeInteger, PropertyTypeBoolean,
		PropertyTypeDate, PropertyTypeCurrency, PropertyTypeObject, PropertyTypeArray:
		return true
	default:
		return false
	}
}

// PropertyDescriptor declares the shape of a single class property.
type PropertyDescriptor struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required,omitempty"`
}

// PropertySchema maps property names to their descriptors.
type PropertySchema map[string]PropertyDescriptor

// Validate checks every property name and descriptor in the schema.
func (s PropertySchema) Validate() error {
	for name, desc := range s {
		if !propertyNamePattern.MatchString(name) {
			return apperrors.Validationf("invalid property name %q", name)
		}
		if !desc.Type.IsValid() {
			return apperrors.Validationf("property %q has unknown type %q", name, desc.Type)
		}
	}
	return nil
}

// Merge returns a copy of s with every key in other added or overwritten.
func (s PropertySchema) Merge(other PropertySchema) PropertySchema {
	merged := make(PropertySchema, len(s)+len(other))
	for k, v := range s {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// OntologyClass is a class of the shared ontology. Rows in ontology_classes
// are always active; class_id is unique among them.
type OntologyClass struct {
	ID                uuid.UUID      `json:"id"`
	ClassID           string         `json:"class_id"`
	Label             string         `json:"label"`
	ClassType         ClassType      `json:"class_type"`
	Domain            string         `json:"domain"`
	Properties        PropertySchema `json:"properties"`
	Status            ClassStatus    `json:"status"`
	Version           int64          `json:"version"`
	CreatedByProposal *uuid.UUID     `json:"created_by_proposal,omitempty"`
	UpdatedByProposal *uuid.UUID     `json:"updated_by_proposal,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ClassView is a class as listed for reviewers. Pending and rejected
// entries come from the ledger and carry the originating proposal.
type ClassView struct {
	ClassID    string         `json:"class_id"`
	Label      string         `json:"label"`
	ClassType  ClassType      `json:"class_type"`
	Domain     string         `json:"domain"`
	Properties PropertySchema `json:"properties"`
	Status     ClassStatus    `json:"status"`
	Version    int64          `json:"version,omitempty"`
	ID         *uuid.UUID     `json:"id,omitempty"`
	ProposalID *uuid.UUID     `json:"proposal_id,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ValidateSlug checks that v is a lowercase slug usable as a class_id or rel_type.
func ValidateSlug(field, v string) error {
	if !slugPattern.MatchString(v) {
		return apperrors.Validationf("%s %q must match %s", field, v, slugPattern.String())
	}
	return nil
}
