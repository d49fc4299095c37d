package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
)

// ProposalType identifies which payload variant a proposal carries.
type ProposalType string

const (
	ProposalTypeOntologyClass ProposalType = "ontology_class"
	ProposalTypeEntity        ProposalType = "entity"
	ProposalTypeRelation      ProposalType = "relation"
	ProposalTypeInstance      ProposalType = "instance"
	ProposalTypeProperty      ProposalType = "property"
)

// ProposalTypes lists every proposal type in a stable order.
var ProposalTypes = []ProposalType{
	ProposalTypeOntologyClass,
	ProposalTypeEntity,
	ProposalTypeRelation,
	ProposalTypeInstance,
	ProposalTypeProperty,
}

// IsValid returns true if t is a known proposal type.
func (t ProposalType) IsValid() bool {
	switch t {
	case ProposalTypeOntologyClass, ProposalTypeEntity, ProposalTypeRelation,
		ProposalTypeInstance, ProposalTypeProperty:
		return true
	default:
		return false
	}
}

// ProposalAction is what the proposal asks the store to do with its payload.
type ProposalAction string

const (
	ProposalActionUpsert ProposalAction = "upsert"
	ProposalActionDelete ProposalAction = "delete"
)

// Allows reports whether action a is meaningful for proposal type t.
// Classes and class properties are never deleted through the ledger.
func (a ProposalAction) Allows(t ProposalType) bool {
	switch a {
	case ProposalActionUpsert:
		return true
	case ProposalActionDelete:
		return t == ProposalTypeEntity || t == ProposalTypeRelation || t == ProposalTypeInstance
	default:
		return false
	}
}

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// IsValid returns true if s is a known proposal status.
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusApproved, ProposalStatusRejected:
		return true
	default:
		return false
	}
}

// Transition checks that a proposal in state from may move to state to.
// Only pending proposals can be decided, and only once.
func Transition(from, to ProposalStatus) error {
	switch from {
	case ProposalStatusPending:
		switch to {
		case ProposalStatusApproved, ProposalStatusRejected:
			return nil
		case ProposalStatusPending:
			return apperrors.InvalidStatef("proposal is already pending")
		}
		return apperrors.InvalidStatef("unknown target status %q", to)
	case ProposalStatusApproved, ProposalStatusRejected:
		return apperrors.InvalidStatef("proposal already %s", from)
	}
	return apperrors.InvalidStatef("unknown proposal status %q", from)
}

// Proposal is an entry of the proposal ledger. Once approved or rejected it
// is immutable.
type Proposal struct {
	ID               uuid.UUID        `json:"id"`
	Type             ProposalType     `json:"type"`
	Action           ProposalAction   `json:"action"`
	Payload          json.RawMessage  `json:"payload"`
	Status           ProposalStatus   `json:"status"`
	Source           ProvenanceSource `json:"source"`
	CreatedBy        string           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	ReviewedBy       *string          `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time       `json:"reviewed_at,omitempty"`
	MergeResult      *MergeDecision   `json:"merge_result,omitempty"`
	BaseVersion      int64            `json:"base_version"`
	SourceDocumentID *uuid.UUID       `json:"source_document_id,omitempty"`
}

// DecodedPayload decodes and validates the stored payload.
func (p *Proposal) DecodedPayload() (ProposalPayload, error) {
	return DecodePayload(p.Type, p.Action, p.Payload)
}

// ProposalFilter narrows ledger listings. After is a keyset cursor: the id of
// the last proposal of the previous page.
type ProposalFilter struct {
	Type  *ProposalType
	After *uuid.UUID
	Limit int
}

// ProposalCounts holds the number of proposals per status.
type ProposalCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// SubmitProposalRequest is what a producer sends to the ledger. Action
// defaults to upsert and Source to inference.
type SubmitProposalRequest struct {
	Type      ProposalType     `json:"type"`
	Action    ProposalAction   `json:"action,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedBy string           `json:"created_by"`
	Source    ProvenanceSource `json:"source,omitempty"`
}

// ReviewEvent is emitted after a proposal decision has been committed.
// Result is nil for rejections.
type ReviewEvent struct {
	Proposal *Proposal    `json:"proposal"`
	Result   *ApplyResult `json:"result,omitempty"`
}
