package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// registerGraphProjectionTool adds get_graph_projection. With entity_id it
// returns the neighborhood of that entity instead of the whole graph.
func registerGraphProjectionTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_graph_projection",
		mcp.WithDescription(
			"Read the approved knowledge graph as nodes and edges. "+
				"Node types are ontology_class, financial_entity and document; "+
				"edges are instance_of, extracted_from or a relation type. "+
				"Pass entity_id (and optionally depth 1-3) to get only the neighborhood of one entity.",
		),
		mcp.WithArray("class_ids",
			mcp.Description("Only include entities of these classes"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("node_types",
			mcp.Description("Only include these node types"),
			mcp.Items(map[string]any{
				"type": "string",
				"enum": []string{
					string(models.NodeTypeOntologyClass),
					string(models.NodeTypeFinancialEntity),
					string(models.NodeTypeDocument),
				},
			}),
		),
		mcp.WithString("document_id", mcp.Description("Only include entities extracted from this document")),
		mcp.WithBoolean("include_documents", mcp.Description("Include document nodes and extracted_from edges")),
		mcp.WithString("entity_id", mcp.Description("Return the neighborhood of this entity")),
		mcp.WithNumber("depth", mcp.Description("Neighborhood depth, 1 to 3 (default 1)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		entityID, errResult := optionalUUID(req, "entity_id")
		if errResult != nil {
			return errResult, nil
		}
		if entityID != nil {
			projection, err := deps.Graph.Neighborhood(ctx, *entityID, req.GetInt("depth", 1))
			if err != nil {
				return serviceResult(err)
			}
			return jsonResult(projection)
		}

		filter := models.GraphFilter{
			ClassIDs:         stringSliceArgument(req, "class_ids"),
			IncludeDocuments: req.GetBool("include_documents", false),
		}
		for _, nt := range stringSliceArgument(req, "node_types") {
			filter.NodeTypes = append(filter.NodeTypes, models.NodeType(nt))
		}
		documentID, errResult := optionalUUID(req, "document_id")
		if errResult != nil {
			return errResult, nil
		}
		filter.DocumentID = documentID

		projection, err := deps.Graph.Project(ctx, filter)
		if err != nil {
			return serviceResult(err)
		}
		return jsonResult(projection)
	})
}
