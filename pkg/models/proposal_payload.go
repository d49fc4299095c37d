package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/jsonutil"
)

const (
	maxNameLength = 500
	maxKeyLength  = 200
)

// ProposalPayload is the typed content of a proposal. There is one
// implementation per ProposalType.
type ProposalPayload interface {
	ProposalType() ProposalType
	// Normalize trims names and fills defaults before validation.
	Normalize()
	// Validate checks the payload for the given action.
	Validate(action ProposalAction) error
	// DocumentID returns the source document the payload was extracted from.
	DocumentID() *uuid.UUID
}

// ClassPayload proposes a new ontology class or an update to an active one.
type ClassPayload struct {
	ClassID    string         `json:"class_id"`
	Label      string         `json:"label"`
	ClassType  ClassType      `json:"class_type"`
	Domain     string         `json:"domain,omitempty"`
	Properties PropertySchema `json:"properties,omitempty"`
}

func (p *ClassPayload) ProposalType() ProposalType { return ProposalTypeOntologyClass }
func (p *ClassPayload) DocumentID() *uuid.UUID     { return nil }

func (p *ClassPayload) Normalize() {
	p.ClassID = strings.TrimSpace(p.ClassID)
	p.Label = strings.TrimSpace(p.Label)
	p.Domain = strings.TrimSpace(p.Domain)
	if p.Properties == nil {
		p.Properties = PropertySchema{}
	}
}

func (p *ClassPayload) Validate(action ProposalAction) error {
	if action != ProposalActionUpsert {
		return apperrors.Validationf("ontology_class proposals only support upsert")
	}
	if err := ValidateSlug("class_id", p.ClassID); err != nil {
		return err
	}
	if p.Label == "" {
		return apperrors.Validationf("label is required")
	}
	if !p.ClassType.IsValid() {
		return apperrors.Validationf("unknown class_type %q", p.ClassType)
	}
	return p.Properties.Validate()
}

// PropertyPayload extends the property schema of an existing active class.
type PropertyPayload struct {
	ClassID    string         `json:"class_id"`
	Properties PropertySchema `json:"properties"`
}

func (p *PropertyPayload) ProposalType() ProposalType { return ProposalTypeProperty }
func (p *PropertyPayload) DocumentID() *uuid.UUID     { return nil }

func (p *PropertyPayload) Normalize() {
	p.ClassID = strings.TrimSpace(p.ClassID)
}

func (p *PropertyPayload) Validate(action ProposalAction) error {
	if action != ProposalActionUpsert {
		return apperrors.Validationf("property proposals only support upsert")
	}
	if err := ValidateSlug("class_id", p.ClassID); err != nil {
		return err
	}
	if len(p.Properties) == 0 {
		return apperrors.Validationf("properties must not be empty")
	}
	return p.Properties.Validate()
}

// EntityRef points at an entity either by id or by (name, class_id).
type EntityRef struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Name    string     `json:"name,omitempty"`
	ClassID string     `json:"class_id,omitempty"`
}

func (r *EntityRef) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.ClassID = strings.TrimSpace(r.ClassID)
}

func (r *EntityRef) validate(field string) error {
	if r.ID != nil {
		if r.Name != "" || r.ClassID != "" {
			return apperrors.Validationf("%s must set either id or name, not both", field)
		}
		return nil
	}
	if r.Name == "" {
		return apperrors.Validationf("%s requires id or name", field)
	}
	if len(r.Name) > maxNameLength {
		return apperrors.Validationf("%s name exceeds %d characters", field, maxNameLength)
	}
	if r.ClassID != "" {
		return ValidateSlug(field+".class_id", r.ClassID)
	}
	return nil
}

// SameAs reports whether r and other are literally the same reference.
func (r EntityRef) SameAs(other EntityRef) bool {
	if r.ID != nil || other.ID != nil {
		return r.ID != nil && other.ID != nil && *r.ID == *other.ID
	}
	return r.ClassID == other.ClassID && strings.EqualFold(r.Name, other.Name)
}

// String renders the reference for error messages.
func (r EntityRef) String() string {
	if r.ID != nil {
		return r.ID.String()
	}
	if r.ClassID != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.ClassID)
	}
	return r.Name
}

// EntityPayload proposes an entity, optionally typed by an active class.
type EntityPayload struct {
	Name             string         `json:"name"`
	ClassID          string         `json:"class_id,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
	SourceDocumentID *uuid.UUID     `json:"source_document_id,omitempty"`
}

func (p *EntityPayload) ProposalType() ProposalType { return ProposalTypeEntity }
func (p *EntityPayload) DocumentID() *uuid.UUID     { return p.SourceDocumentID }

func (p *EntityPayload) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.ClassID = strings.TrimSpace(p.ClassID)
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
}

func (p *EntityPayload) Validate(action ProposalAction) error {
	if !action.Allows(ProposalTypeEntity) {
		return apperrors.Validationf("unsupported action %q for entity proposals", action)
	}
	if p.Name == "" {
		return apperrors.Validationf("name is required")
	}
	if len(p.Name) > maxNameLength {
		return apperrors.Validationf("name exceeds %d characters", maxNameLength)
	}
	if p.ClassID != "" {
		return ValidateSlug("class_id", p.ClassID)
	}
	return nil
}

// RelationPayload proposes a typed edge between two entities.
type RelationPayload struct {
	Source           EntityRef      `json:"source"`
	Target           EntityRef      `json:"target"`
	RelType          string         `json:"rel_type"`
	Properties       map[string]any `json:"properties,omitempty"`
	SourceDocumentID *uuid.UUID     `json:"source_document_id,omitempty"`
}

func (p *RelationPayload) ProposalType() ProposalType { return ProposalTypeRelation }
func (p *RelationPayload) DocumentID() *uuid.UUID     { return p.SourceDocumentID }

func (p *RelationPayload) Normalize() {
	p.Source.normalize()
	p.Target.normalize()
	p.RelType = strings.TrimSpace(p.RelType)
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
}

func (p *RelationPayload) Validate(action ProposalAction) error {
	if !action.Allows(ProposalTypeRelation) {
		return apperrors.Validationf("unsupported action %q for relation proposals", action)
	}
	if err := p.Source.validate("source"); err != nil {
		return err
	}
	if err := p.Target.validate("target"); err != nil {
		return err
	}
	if err := ValidateSlug("rel_type", p.RelType); err != nil {
		return err
	}
	if p.Source.SameAs(p.Target) {
		return apperrors.Validationf("relation source and target must differ")
	}
	return nil
}

// ObservationKey is an instance key. Extraction output often carries
// periods such as 2024 as bare numbers, so any JSON scalar is accepted.
type ObservationKey string

func (k *ObservationKey) UnmarshalJSON(data []byte) error {
	s, err := jsonutil.ScalarString(data)
	if err != nil {
		return fmt.Errorf("instance key: %w", err)
	}
	*k = ObservationKey(s)
	return nil
}

// InstancePayload proposes an observation attached to an entity.
type InstancePayload struct {
	Entity           EntityRef      `json:"entity"`
	Key              ObservationKey `json:"key"`
	Properties       map[string]any `json:"properties,omitempty"`
	SourceDocumentID *uuid.UUID     `json:"source_document_id,omitempty"`
}

func (p *InstancePayload) ProposalType() ProposalType { return ProposalTypeInstance }
func (p *InstancePayload) DocumentID() *uuid.UUID     { return p.SourceDocumentID }

func (p *InstancePayload) Normalize() {
	p.Entity.normalize()
	p.Key = ObservationKey(strings.TrimSpace(string(p.Key)))
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
}

func (p *InstancePayload) Validate(action ProposalAction) error {
	if !action.Allows(ProposalTypeInstance) {
		return apperrors.Validationf("unsupported action %q for instance proposals", action)
	}
	if err := p.Entity.validate("entity"); err != nil {
		return err
	}
	if p.Key == "" {
		return apperrors.Validationf("key is required")
	}
	if len(p.Key) > maxKeyLength {
		return apperrors.Validationf("key exceeds %d characters", maxKeyLength)
	}
	return nil
}

// newPayload returns an empty payload for the given type.
func newPayload(t ProposalType) (ProposalPayload, error) {
	switch t {
	case ProposalTypeOntologyClass:
		return &ClassPayload{}, nil
	case ProposalTypeEntity:
		return &EntityPayload{}, nil
	case ProposalTypeRelation:
		return &RelationPayload{}, nil
	case ProposalTypeInstance:
		return &InstancePayload{}, nil
	case ProposalTypeProperty:
		return &PropertyPayload{}, nil
	}
	return nil, apperrors.Validationf("unknown proposal type %q", t)
}

// DecodePayload strictly decodes raw into the payload variant for t,
// normalizes it and validates it for action. Unknown fields are rejected.
func DecodePayload(t ProposalType, action ProposalAction, raw json.RawMessage) (ProposalPayload, error) {
	payload, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperrors.Validationf("payload is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, apperrors.Validationf("invalid %s payload: %v", t, err)
	}
	if dec.More() {
		return nil, apperrors.Validationf("invalid %s payload: trailing data", t)
	}

	payload.Normalize()
	if err := payload.Validate(action); err != nil {
		return nil, err
	}
	return payload, nil
}
