package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

func newClassMux(catalog *mockCatalog) *http.ServeMux {
	mux := http.NewServeMux()
	NewOntologyClassHandler(catalog, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), noScope)
	return mux
}

func TestOntologyClassHandler_List(t *testing.T) {
	catalog := &mockCatalog{classes: []*models.ClassView{
		{ClassID: "company", Status: models.ClassStatusActive},
		{ClassID: "revenue", Status: models.ClassStatusPendingReview},
	}}
	mux := newClassMux(catalog)

	rec := serve(mux, http.MethodGet, "/api/ontology/classes", nil, "analyst")

	require.Equal(t, http.StatusOK, rec.Code)
	var got OntologyClassListResponse
	decodeData(t, rec, &got)
	assert.Equal(t, 2, got.Total)
	assert.Nil(t, catalog.status)
}

func TestOntologyClassHandler_ListByStatus(t *testing.T) {
	catalog := &mockCatalog{}
	mux := newClassMux(catalog)

	rec := serve(mux, http.MethodGet, "/api/ontology/classes?status=rejected", nil, "analyst")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, catalog.status)
	assert.Equal(t, models.ClassStatusRejected, *catalog.status)
	assert.Contains(t, rec.Body.String(), `"classes":[]`)
}

func TestOntologyClassHandler_InvalidStatus(t *testing.T) {
	mux := newClassMux(&mockCatalog{err: apperrors.Validationf("unknown class status %q", "archived")})

	rec := serve(mux, http.MethodGet, "/api/ontology/classes?status=archived", nil, "analyst")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
