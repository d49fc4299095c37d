// Package models contains domain types for kudwa-engine.
package models

// ProvenanceSource represents how a proposal entered the ledger.
type ProvenanceSource string

// Provenance source constants. These represent HOW a proposal was produced.
const (
	SourceInference ProvenanceSource = "inference" // Document extraction pipeline
	SourceMCP       ProvenanceSource = "mcp"       // Chat agent via MCP tools
	SourceManual    ProvenanceSource = "manual"    // Direct submission via UI or CLI
)

// String returns the string representation of a ProvenanceSource.
func (s ProvenanceSource) String() string {
	return string(s)
}

// IsValid returns true if the source is a valid provenance source.
func (s ProvenanceSource) IsValid() bool {
	switch s {
	case SourceInference, SourceMCP, SourceManual:
		return true
	default:
		return false
	}
}
