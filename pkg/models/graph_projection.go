package models

import "github.com/google/uuid"

// NodeType is the kind of node in a graph projection.
type NodeType string

const (
	NodeTypeOntologyClass   NodeType = "ontology_class"
	NodeTypeFinancialEntity NodeType = "financial_entity"
	NodeTypeDocument        NodeType = "document"
)

// IsValid returns true if t is a known node type.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeOntologyClass, NodeTypeFinancialEntity, NodeTypeDocument:
		return true
	default:
		return false
	}
}

// Edge labels that do not come from relation rows.
const (
	EdgeInstanceOf    = "instance_of"
	EdgeExtractedFrom = "extracted_from"
)

// Provenance points back at where a graph element came from.
type Provenance struct {
	SourceDocumentID  *uuid.UUID `json:"source_document_id,omitempty"`
	CreatedByProposal *uuid.UUID `json:"created_by_proposal,omitempty"`
}

// GraphNode is a renderable node.
type GraphNode struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Label      string         `json:"label"`
	ClassID    string         `json:"class_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Provenance *Provenance    `json:"provenance,omitempty"`
	// Observations is the number of instances attached to an entity node.
	Observations int `json:"observations,omitempty"`
}

// GraphEdge is a renderable directed edge.
type GraphEdge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties,omitempty"`
	Provenance   *Provenance    `json:"provenance,omitempty"`
}

// GraphProjection is a node/edge snapshot of the active store.
type GraphProjection struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphFilter narrows a projection. Empty fields mean no restriction.
type GraphFilter struct {
	ClassIDs         []string   `json:"class_ids,omitempty"`
	DocumentID       *uuid.UUID `json:"document_id,omitempty"`
	NodeTypes        []NodeType `json:"node_types,omitempty"`
	IncludeDocuments bool       `json:"include_documents,omitempty"`
}

// WantsNodeType reports whether nodes of type t belong in the projection.
func (f GraphFilter) WantsNodeType(t NodeType) bool {
	if t == NodeTypeDocument && !f.IncludeDocuments {
		return false
	}
	if len(f.NodeTypes) == 0 {
		return true
	}
	for _, nt := range f.NodeTypes {
		if nt == t {
			return true
		}
	}
	return false
}

// GraphStats summarizes a projection.
type GraphStats struct {
	NodeCounts       map[NodeType]int `json:"node_counts"`
	EdgeCounts       map[string]int   `json:"edge_counts"`
	TotalNodes       int              `json:"total_nodes"`
	TotalEdges       int              `json:"total_edges"`
	Density          float64          `json:"density"`
	ComponentCount   int              `json:"component_count"`
	LargestComponent int              `json:"largest_component"`
	IslandCount      int              `json:"island_count"`
}
