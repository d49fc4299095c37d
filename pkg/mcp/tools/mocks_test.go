package tools

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

type scopedKey struct{}

// fakeScoper marks the context so tests can check handlers scope before use.
type fakeScoper struct{}

func (fakeScoper) WithPool(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopedKey{}, true)
}

func isScoped(ctx context.Context) bool {
	v, _ := ctx.Value(scopedKey{}).(bool)
	return v
}

type mockLedger struct {
	submitted  *models.SubmitProposalRequest
	scoped     bool
	proposal   *models.Proposal
	proposals  []*models.Proposal
	lastFilter models.ProposalFilter
	err        error
}

func (m *mockLedger) Submit(ctx context.Context, req *models.SubmitProposalRequest) (*models.Proposal, error) {
	m.submitted, m.scoped = req, isScoped(ctx)
	if m.err != nil {
		return nil, m.err
	}
	return m.proposal, nil
}

func (m *mockLedger) Get(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	if m.proposal == nil || m.proposal.ID != id {
		return nil, apperrors.NotFoundf("proposal %s", id)
	}
	return m.proposal, nil
}

func (m *mockLedger) ListPending(_ context.Context, filter models.ProposalFilter) ([]*models.Proposal, error) {
	m.lastFilter = filter
	return m.proposals, m.err
}

func (m *mockLedger) Iterate(context.Context, models.ProposalStatus, models.ProposalFilter) iter.Seq2[*models.Proposal, error] {
	return func(yield func(*models.Proposal, error) bool) {}
}

func (m *mockLedger) Counts(context.Context) (*models.ProposalCounts, error) {
	return &models.ProposalCounts{}, m.err
}

type mockReview struct {
	approved bool
	decision *models.MergeDecision
	err      error
}

func (m *mockReview) Approve(context.Context, uuid.UUID, string) (*models.ApplyResult, error) {
	m.approved = true
	return nil, m.err
}

func (m *mockReview) Reject(context.Context, uuid.UUID, string) (*models.Proposal, error) {
	return nil, m.err
}

func (m *mockReview) BulkApprove(context.Context, []uuid.UUID, string) (*models.BulkResult, error) {
	m.approved = true
	return nil, m.err
}

func (m *mockReview) Preview(context.Context, uuid.UUID) (*models.MergeDecision, error) {
	return m.decision, m.err
}

type mockGraph struct {
	filter     models.GraphFilter
	entityID   uuid.UUID
	depth      int
	projection *models.GraphProjection
	err        error
}

func (m *mockGraph) Project(_ context.Context, filter models.GraphFilter) (*models.GraphProjection, error) {
	m.filter = filter
	return m.projection, m.err
}

func (m *mockGraph) Stats(context.Context, models.GraphFilter) (*models.GraphStats, error) {
	return &models.GraphStats{}, m.err
}

func (m *mockGraph) Neighborhood(_ context.Context, entityID uuid.UUID, depth int) (*models.GraphProjection, error) {
	m.entityID, m.depth = entityID, depth
	return m.projection, m.err
}

type mockDocuments struct {
	registered *models.RegisterDocumentRequest
	doc        *models.Document
	err        error
}

func (m *mockDocuments) Register(_ context.Context, req *models.RegisterDocumentRequest) (*models.Document, error) {
	m.registered = req
	return m.doc, m.err
}

func (m *mockDocuments) Get(context.Context, uuid.UUID) (*models.Document, error) {
	return m.doc, m.err
}

type testDeps struct {
	ledger    *mockLedger
	review    *mockReview
	graph     *mockGraph
	documents *mockDocuments
}

func newTestServer(d *testDeps) *server.MCPServer {
	if d.ledger == nil {
		d.ledger = &mockLedger{}
	}
	if d.review == nil {
		d.review = &mockReview{}
	}
	if d.graph == nil {
		d.graph = &mockGraph{}
	}
	if d.documents == nil {
		d.documents = &mockDocuments{}
	}
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterTools(s, &Deps{
		DB:        fakeScoper{},
		Ledger:    d.ledger,
		Review:    d.review,
		Graph:     d.graph,
		Documents: d.documents,
		Logger:    zap.NewNop(),
	})
	return s
}

// toolResponse is the decoded JSON-RPC reply of a tools/call.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r toolResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected protocol error")
	require.NotEmpty(t, r.Result.Content)
	return r.Result.Content[0].Text
}

func callTool(t *testing.T, ctx context.Context, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(ctx, msg))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func listTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	names := make([]string, 0, len(resp.Result.Tools))
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func decodeToolError(t *testing.T, resp toolResponse) ErrorResponse {
	t.Helper()
	require.True(t, resp.Result.IsError, "expected a tool error result")
	var e ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &e))
	return e
}
