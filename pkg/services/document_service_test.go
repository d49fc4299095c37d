package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestDocumentService_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.docs.Register(ctx, &models.RegisterDocumentRequest{
		Filename:    " q1.pdf ",
		ContentHash: strings.ToUpper(testHash),
	})
	require.NoError(t, err)
	assert.Equal(t, "q1.pdf", doc.Filename)
	assert.Equal(t, testHash, doc.ContentHash)
	assert.Equal(t, models.DocumentStatusUploaded, doc.Status)

	again, err := env.docs.Register(ctx, &models.RegisterDocumentRequest{
		Filename:    "q1-final.pdf",
		ContentHash: testHash,
		Status:      models.DocumentStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID, "same content keeps its id")
	assert.Equal(t, "q1-final.pdf", again.Filename)
	assert.Equal(t, models.DocumentStatusCompleted, again.Status)

	got, err := env.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusCompleted, got.Status)
}

func TestDocumentService_Register_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.RegisterDocumentRequest
	}{
		{name: "nil", req: nil},
		{name: "missing filename", req: &models.RegisterDocumentRequest{ContentHash: testHash}},
		{name: "short hash", req: &models.RegisterDocumentRequest{Filename: "a.pdf", ContentHash: "abc"}},
		{name: "bad status", req: &models.RegisterDocumentRequest{Filename: "a.pdf", ContentHash: testHash, Status: "lost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.docs.Register(ctx, tt.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestDocumentService_Get_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.docs.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
