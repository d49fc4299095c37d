package graphsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const (
	cypherUpsertDocument = `
MERGE (d:Document {id: $id})
SET d += $props`

	cypherLinkDocumentByID = `
MATCH (e:Entity {id: $id})
MATCH (d:Document {id: $document_id})
MERGE (e)-[:EXTRACTED_FROM]->(d)`
)

// projectionStatements loads a projection node by node. Class nodes are
// keyed by class_id and entity nodes link to them through their ClassID, so
// the mirror matches what incremental approvals write. Observations are
// carried only as a count on the entity.
func projectionStatements(p *models.GraphProjection, now time.Time) []statement {
	if p == nil {
		return nil
	}
	syncedAt := now.UTC().Format(time.RFC3339Nano)

	var nodes, links []statement
	for _, n := range p.Nodes {
		switch n.Type {
		case models.NodeTypeOntologyClass:
			props := map[string]any{
				"uuid":      n.ID,
				"label":     n.Label,
				"synced_at": syncedAt,
			}
			for _, key := range []string{"class_type", "domain"} {
				if v, ok := n.Properties[key]; ok {
					props[key] = fmt.Sprint(v)
				}
			}
			if v, ok := n.Properties["version"].(int64); ok {
				props["version"] = v
			}
			if schema, ok := n.Properties["properties"]; ok {
				if raw, err := json.Marshal(schema); err == nil {
					props["properties_json"] = string(raw)
				}
			}
			nodes = append(nodes, statement{cypher: cypherUpsertClass, params: map[string]any{"class_id": n.ClassID, "props": props}})

		case models.NodeTypeFinancialEntity:
			props := map[string]any{
				"name":            n.Label,
				"class_id":        n.ClassID,
				"properties_json": propertiesJSON(n.Properties),
				"observations":    int64(n.Observations),
				"synced_at":       syncedAt,
			}
			if n.Provenance != nil {
				props["source_document_id"] = optionalID(n.Provenance.SourceDocumentID)
			}
			nodes = append(nodes, statement{cypher: cypherUpsertEntity, params: map[string]any{"id": n.ID, "props": props}})
			if n.ClassID != "" {
				links = append(links, statement{cypher: cypherLinkClass, params: map[string]any{"id": n.ID, "class_id": n.ClassID}})
			}

		case models.NodeTypeDocument:
			props := map[string]any{"filename": n.Label, "synced_at": syncedAt}
			for _, key := range []string{"content_hash", "status"} {
				if v, ok := n.Properties[key]; ok {
					props[key] = fmt.Sprint(v)
				}
			}
			nodes = append(nodes, statement{cypher: cypherUpsertDocument, params: map[string]any{"id": n.ID, "props": props}})
		}
	}

	for _, e := range p.Edges {
		switch e.Relationship {
		case models.EdgeInstanceOf:
			// Already linked by class_id above.
		case models.EdgeExtractedFrom:
			links = append(links, statement{cypher: cypherLinkDocumentByID, params: map[string]any{"id": e.Source, "document_id": e.Target}})
		default:
			params := map[string]any{
				"id":        e.ID,
				"source_id": e.Source,
				"target_id": e.Target,
				"props": map[string]any{
					"rel_type":        e.Relationship,
					"properties_json": propertiesJSON(e.Properties),
					"synced_at":       syncedAt,
				},
			}
			links = append(links, statement{cypher: cypherUpsertRelation, params: params})
		}
	}

	return append(nodes, links...)
}
