// Package tools provides the MCP tools chat agents use to propose changes to
// the knowledge graph and to read it back. Approval is not exposed here.
package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

// Scoper attaches a pool-backed database scope to a context.
type Scoper interface {
	WithPool(ctx context.Context) context.Context
}

// Deps contains dependencies for the MCP tools.
type Deps struct {
	DB        Scoper
	Ledger    services.ProposalLedger
	Review    services.ReviewService
	Graph     services.GraphProjectionService
	Documents services.DocumentService
	Logger    *zap.Logger
}

// RegisterTools registers every agent-facing tool.
func RegisterTools(s *server.MCPServer, deps *Deps) {
	registerSubmitProposalTool(s, deps)
	registerGetProposalTool(s, deps)
	registerListPendingProposalsTool(s, deps)
	registerPreviewProposalTool(s, deps)
	registerGraphProjectionTool(s, deps)
	registerDocumentTool(s, deps)
}

type proposalSummary struct {
	ID        string                `json:"id"`
	Type      models.ProposalType   `json:"type"`
	Action    models.ProposalAction `json:"action"`
	Status    models.ProposalStatus `json:"status"`
	CreatedBy string                `json:"created_by"`
	CreatedAt time.Time             `json:"created_at"`
}

func toProposalSummary(p *models.Proposal) proposalSummary {
	return proposalSummary{
		ID:        p.ID.String(),
		Type:      p.Type,
		Action:    p.Action,
		Status:    p.Status,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

// registerSubmitProposalTool adds submit_ontology_proposal. Proposals land
// pending; a human reviewer decides them.
func registerSubmitProposalTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"submit_ontology_proposal",
		mcp.WithDescription(
			"Propose a change to the shared ontology or knowledge graph. "+
				"The proposal is stored as pending and only takes effect after a human reviewer approves it. "+
				"Types: ontology_class (class_id, label, class_type, domain, properties), "+
				"property (class_id, properties), entity (name, class_id, properties, source_document_id), "+
				"relation (source, target, rel_type, properties) and instance (entity, key, properties). "+
				"Entities are referenced by {\"id\"} or by {\"name\", \"class_id\"}.",
		),
		mcp.WithString(
			"type",
			mcp.Required(),
			mcp.Enum(
				string(models.ProposalTypeOntologyClass),
				string(models.ProposalTypeProperty),
				string(models.ProposalTypeEntity),
				string(models.ProposalTypeRelation),
				string(models.ProposalTypeInstance),
			),
			mcp.Description("Proposal type"),
		),
		mcp.WithString(
			"action",
			mcp.Enum(string(models.ProposalActionUpsert), string(models.ProposalActionDelete)),
			mcp.Description("upsert (default) or delete; delete applies to entity, relation and instance"),
		),
		mcp.WithObject(
			"payload",
			mcp.Required(),
			mcp.Description("Type-specific payload"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		proposalType, err := req.RequireString("type")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		payload, errResult := rawArgument(req, "payload")
		if errResult != nil {
			return errResult, nil
		}

		proposal, err := deps.Ledger.Submit(ctx, &models.SubmitProposalRequest{
			Type:      models.ProposalType(trimString(proposalType)),
			Action:    models.ProposalAction(trimString(req.GetString("action", ""))),
			Payload:   payload,
			CreatedBy: callerName(ctx),
			Source:    models.SourceMCP,
		})
		if err != nil {
			return serviceResult(err)
		}

		deps.Logger.Info("Proposal submitted via MCP",
			zap.String("proposal_id", proposal.ID.String()),
			zap.String("type", string(proposal.Type)),
			zap.String("created_by", proposal.CreatedBy))

		return jsonResult(toProposalSummary(proposal))
	})
}

func registerGetProposalTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"get_proposal",
		mcp.WithDescription("Get a proposal with its payload, status and, once approved, the merge decision."),
		mcp.WithString("proposal_id", mcp.Required(), mcp.Description("Proposal UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		id, errResult := requireUUID(req, "proposal_id")
		if errResult != nil {
			return errResult, nil
		}

		proposal, err := deps.Ledger.Get(ctx, id)
		if err != nil {
			return serviceResult(err)
		}
		return jsonResult(proposal)
	})
}

func registerListPendingProposalsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_pending_proposals",
		mcp.WithDescription(
			"List proposals awaiting review, oldest first. "+
				"Pass the last id of a page as 'after' to fetch the next page.",
		),
		mcp.WithString("type", mcp.Description("Only list proposals of this type")),
		mcp.WithString("after", mcp.Description("Proposal UUID to continue after")),
		mcp.WithNumber("limit", mcp.Description("Page size")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		filter := models.ProposalFilter{Limit: req.GetInt("limit", 0)}
		if filter.Limit < 0 {
			return NewErrorResult("invalid_parameters", "limit must not be negative"), nil
		}
		if raw := trimString(req.GetString("type", "")); raw != "" {
			t := models.ProposalType(raw)
			if !t.IsValid() {
				return NewErrorResult("invalid_parameters", "unknown proposal type "+raw), nil
			}
			filter.Type = &t
		}
		after, errResult := optionalUUID(req, "after")
		if errResult != nil {
			return errResult, nil
		}
		filter.After = after

		proposals, err := deps.Ledger.ListPending(ctx, filter)
		if err != nil {
			return serviceResult(err)
		}

		result := struct {
			Proposals []proposalSummary `json:"proposals"`
			Count     int               `json:"count"`
		}{
			Proposals: make([]proposalSummary, 0, len(proposals)),
			Count:     len(proposals),
		}
		for _, p := range proposals {
			result.Proposals = append(result.Proposals, toProposalSummary(p))
		}
		return jsonResult(result)
	})
}

func registerPreviewProposalTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"preview_proposal",
		mcp.WithDescription(
			"Show what approving a pending proposal would do right now: "+
				"insert a new element, update a class, match an existing element (noop) or delete one. "+
				"Use it to check for duplicates before proposing more.",
		),
		mcp.WithString("proposal_id", mcp.Required(), mcp.Description("Proposal UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = deps.DB.WithPool(ctx)

		id, errResult := requireUUID(req, "proposal_id")
		if errResult != nil {
			return errResult, nil
		}

		decision, err := deps.Review.Preview(ctx, id)
		if err != nil {
			return serviceResult(err)
		}
		return jsonResult(decision)
	})
}
