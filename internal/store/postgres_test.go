package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicum.dev/assistant-gateway/internal/apperr"
)

// Runs only against a real database: TEST_POSTGRES_URL=postgres://... go test ./internal/store
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(ctx))

	created, err := s.CreateInteraction(ctx, "¿Dónde subo mi informe final?", "En la sección de documentos.")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	require.NoError(t, s.AttachFeedback(ctx, created.ID, FeedbackPositive))
	err = s.AttachFeedback(ctx, created.ID, FeedbackNegative)
	assert.True(t, apperr.Is(err, apperr.KindFeedbackAlreadySet))

	err = s.AttachFeedback(ctx, -1, FeedbackPositive)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	stored, err := s.GetInteraction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Question, stored.Question)
	assert.True(t, created.Timestamp.Equal(stored.Timestamp))

	listed, err := s.ListInteractions(ctx, Filter{Feedback: "positive", Limit: MaxListLimit})
	require.NoError(t, err)
	assert.NotEmpty(t, listed)
}
