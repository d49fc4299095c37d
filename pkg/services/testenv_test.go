package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const testReviewer = "reviewer@kudwa.test"

// testEnv wires every service over one memStore.
type testEnv struct {
	mem     *memStore
	store   *Store
	ledger  ProposalLedger
	review  ReviewService
	graph   GraphProjectionService
	catalog OntologyCatalog
	docs    DocumentService
}

type testEnvOption func(*ReviewServiceDeps)

func withListeners(listeners ...ReviewListener) testEnvOption {
	return func(d *ReviewServiceDeps) { d.Listeners = listeners }
}

func withMatchPolicy(p MatchPolicy) testEnvOption {
	return func(d *ReviewServiceDeps) { d.MatchPolicy = p }
}

func withBulkLimits(concurrency, maxItems int) testEnvOption {
	return func(d *ReviewServiceDeps) {
		d.BulkConcurrency = concurrency
		d.BulkMaxItems = maxItems
	}
}

func newTestEnv(t *testing.T, opts ...testEnvOption) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	mem := newMemStore()
	store := mem.Store()

	deps := &ReviewServiceDeps{
		DB:     mem,
		Store:  store,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}

	ledger := NewProposalLedger(&ProposalLedgerDeps{Store: store, Logger: logger})
	return &testEnv{
		mem:     mem,
		store:   store,
		ledger:  ledger,
		review:  NewReviewService(deps),
		graph:   NewGraphProjectionService(store, logger),
		catalog: NewOntologyCatalog(store, ledger, logger),
		docs:    NewDocumentService(store, logger),
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) submit(t *testing.T, typ models.ProposalType, payload any) *models.Proposal {
	t.Helper()
	return e.submitAction(t, typ, models.ProposalActionUpsert, payload)
}

func (e *testEnv) submitAction(t *testing.T, typ models.ProposalType, action models.ProposalAction, payload any) *models.Proposal {
	t.Helper()
	p, err := e.ledger.Submit(context.Background(), &models.SubmitProposalRequest{
		Type:      typ,
		Action:    action,
		Payload:   mustJSON(t, payload),
		CreatedBy: "extractor",
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) approve(t *testing.T, id uuid.UUID) *models.ApplyResult {
	t.Helper()
	result, err := e.review.Approve(context.Background(), id, testReviewer)
	require.NoError(t, err)
	return result
}

// activateClass submits and approves a class proposal.
func (e *testEnv) activateClass(t *testing.T, classID string, props models.PropertySchema) *models.OntologyClass {
	t.Helper()
	p := e.submit(t, models.ProposalTypeOntologyClass, models.ClassPayload{
		ClassID:    classID,
		Label:      classID,
		ClassType:  models.ClassTypeEntity,
		Properties: props,
	})
	return e.approve(t, p.ID).Class
}

// addEntity submits and approves an entity proposal.
func (e *testEnv) addEntity(t *testing.T, name, classID string, docID *uuid.UUID) *models.Entity {
	t.Helper()
	p := e.submit(t, models.ProposalTypeEntity, models.EntityPayload{
		Name:             name,
		ClassID:          classID,
		SourceDocumentID: docID,
	})
	return e.approve(t, p.ID).Entity
}

func (e *testEnv) registerDocument(t *testing.T, filename string) *models.Document {
	t.Helper()
	sum := sha256.Sum256([]byte(filename))
	doc, err := e.docs.Register(context.Background(), &models.RegisterDocumentRequest{
		Filename:    filename,
		ContentHash: hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)
	return doc
}
