package graphsync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// statement is one Cypher query with its parameters.
type statement struct {
	cypher string
	params map[string]any
}

const (
	cypherUpsertClass = `
MERGE (c:OntologyClass {id: $class_id})
SET c += $props`

	cypherUpsertEntity = `
MERGE (e:Entity {id: $id})
SET e += $props`

	cypherLinkClass = `
MATCH (e:Entity {id: $id})
MATCH (c:OntologyClass {id: $class_id})
MERGE (e)-[:INSTANCE_OF]->(c)`

	cypherLinkDocument = `
MATCH (e:Entity {id: $id})
MERGE (d:Document {id: $document_id})
MERGE (e)-[:EXTRACTED_FROM]->(d)`

	cypherDeleteEntity = `
MATCH (e:Entity {id: $id})
OPTIONAL MATCH (e)-[:OBSERVED]->(o:Observation)
DETACH DELETE e, o`

	cypherUpsertRelation = `
MATCH (a:Entity {id: $source_id})
MATCH (b:Entity {id: $target_id})
MERGE (a)-[r:RELATES {id: $id}]->(b)
SET r += $props`

	cypherDeleteRelation = `
MATCH ()-[r:RELATES {id: $id}]->()
DELETE r`

	cypherUpsertObservation = `
MATCH (e:Entity {id: $entity_id})
MERGE (o:Observation {id: $id})
SET o += $props
MERGE (e)-[:OBSERVED]->(o)`

	cypherDeleteObservation = `
MATCH (o:Observation {id: $id})
DETACH DELETE o`
)

var schemaStatements = []string{
	`CREATE CONSTRAINT ontology_class_id_unique IF NOT EXISTS FOR (c:OntologyClass) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	`CREATE CONSTRAINT observation_id_unique IF NOT EXISTS FOR (o:Observation) REQUIRE o.id IS UNIQUE`,
	`CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	`CREATE INDEX entity_name_key_idx IF NOT EXISTS FOR (e:Entity) ON (e.name_key)`,
}

// statements translates an applied merge into the Cypher that mirrors it.
// A nil or empty result yields no statements.
func statements(result *models.ApplyResult, now time.Time) []statement {
	if result == nil || result.Decision == nil {
		return nil
	}
	syncedAt := now.UTC().Format(time.RFC3339Nano)
	deleting := result.Decision.Action == models.MergeActionDelete

	switch result.Decision.TargetKind {
	case models.TargetKindClass:
		if result.Class == nil {
			return nil
		}
		return []statement{classStatement(result.Class, syncedAt)}

	case models.TargetKindEntity:
		e := result.Entity
		if e == nil {
			return nil
		}
		if deleting {
			return []statement{{cypher: cypherDeleteEntity, params: map[string]any{"id": e.ID.String()}}}
		}
		return entityStatements(e, syncedAt)

	case models.TargetKindRelation:
		r := result.Relation
		if r == nil {
			return nil
		}
		if deleting {
			return []statement{{cypher: cypherDeleteRelation, params: map[string]any{"id": r.ID.String()}}}
		}
		return []statement{relationStatement(r, syncedAt)}

	case models.TargetKindInstance:
		i := result.Instance
		if i == nil {
			return nil
		}
		if deleting {
			return []statement{{cypher: cypherDeleteObservation, params: map[string]any{"id": i.ID.String()}}}
		}
		return []statement{{
			cypher: cypherUpsertObservation,
			params: map[string]any{
				"id":        i.ID.String(),
				"entity_id": i.EntityID.String(),
				"props": map[string]any{
					"key":                i.Key,
					"properties_json":    propertiesJSON(i.Properties),
					"source_document_id": optionalID(i.SourceDocumentID),
					"synced_at":          syncedAt,
				},
			},
		}}
	}
	return nil
}

func classStatement(c *models.OntologyClass, syncedAt string) statement {
	props := map[string]any{
		"uuid":       c.ID.String(),
		"label":      c.Label,
		"class_type": string(c.ClassType),
		"domain":     c.Domain,
		"version":    c.Version,
		"synced_at":  syncedAt,
	}
	if raw, err := json.Marshal(c.Properties); err == nil {
		props["properties_json"] = string(raw)
	}
	return statement{cypher: cypherUpsertClass, params: map[string]any{"class_id": c.ClassID, "props": props}}
}

func entityStatements(e *models.Entity, syncedAt string) []statement {
	id := e.ID.String()
	out := []statement{{
		cypher: cypherUpsertEntity,
		params: map[string]any{
			"id": id,
			"props": map[string]any{
				"name":               e.Name,
				"name_key":           e.NameKey,
				"class_id":           e.ClassID,
				"properties_json":    propertiesJSON(e.Properties),
				"source_document_id": optionalID(e.SourceDocumentID),
				"synced_at":          syncedAt,
			},
		},
	}}
	if e.ClassID != "" {
		out = append(out, statement{cypher: cypherLinkClass, params: map[string]any{"id": id, "class_id": e.ClassID}})
	}
	if e.SourceDocumentID != nil {
		out = append(out, statement{cypher: cypherLinkDocument, params: map[string]any{"id": id, "document_id": e.SourceDocumentID.String()}})
	}
	return out
}

func relationStatement(r *models.Relation, syncedAt string) statement {
	return statement{
		cypher: cypherUpsertRelation,
		params: map[string]any{
			"id":        r.ID.String(),
			"source_id": r.SourceEntityID.String(),
			"target_id": r.TargetEntityID.String(),
			"props": map[string]any{
				"rel_type":           r.RelType,
				"properties_json":    propertiesJSON(r.Properties),
				"source_document_id": optionalID(r.SourceDocumentID),
				"synced_at":          syncedAt,
			},
		},
	}
}

// propertiesJSON stores free-form properties as a JSON string since Neo4j
// properties cannot hold nested maps.
func propertiesJSON(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
