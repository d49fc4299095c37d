package models

import "github.com/google/uuid"

// MergeAction is what approving a proposal does to the store.
type MergeAction string

const (
	MergeActionInsert MergeAction = "insert"
	MergeActionUpdate MergeAction = "update"
	MergeActionNoop   MergeAction = "noop"
	MergeActionDelete MergeAction = "delete"
)

// TargetKind names the store table a merge decision touches.
type TargetKind string

const (
	TargetKindClass    TargetKind = "ontology_class"
	TargetKindEntity   TargetKind = "entity"
	TargetKindRelation TargetKind = "relation"
	TargetKindInstance TargetKind = "instance"
)

// MergeDecision is the reconciliation outcome recorded on an approved proposal.
type MergeDecision struct {
	Action     MergeAction `json:"action"`
	TargetKind TargetKind  `json:"target_kind"`
	TargetID   *uuid.UUID  `json:"target_id,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// ApplyResult is returned by a successful approval.
type ApplyResult struct {
	Proposal *Proposal      `json:"proposal"`
	Decision *MergeDecision `json:"decision"`
	Class    *OntologyClass `json:"class,omitempty"`
	Entity   *Entity        `json:"entity,omitempty"`
	Relation *Relation      `json:"relation,omitempty"`
	Instance *Instance      `json:"instance,omitempty"`
}

// BulkItemStatus is the per-proposal outcome of a bulk approval.
type BulkItemStatus string

const (
	BulkItemApproved BulkItemStatus = "approved"
	BulkItemFailed   BulkItemStatus = "failed"
)

// BulkItemResult reports one proposal of a bulk approval.
type BulkItemResult struct {
	ProposalID uuid.UUID      `json:"proposal_id"`
	Status     BulkItemStatus `json:"status"`
	Decision   *MergeDecision `json:"decision,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// BulkResult summarizes a bulk approval. Items keep the request order.
type BulkResult struct {
	ApprovedCount int              `json:"approved_count"`
	FailedCount   int              `json:"failed_count"`
	Items         []BulkItemResult `json:"items"`
	Errors        []string         `json:"errors"`
}
