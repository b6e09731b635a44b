package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"practicum.dev/assistant-gateway/internal/apperr"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := apperr.E(apperr.KindNotFound, "store.AttachFeedback", "interaction not found", nil)
	wrapped := fmt.Errorf("recording feedback: %w", base)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(wrapped))
	assert.True(t, apperr.Is(wrapped, apperr.KindNotFound))
	assert.Equal(t, "interaction not found", apperr.Message(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.False(t, apperr.Is(nil, apperr.KindInternal))
	assert.Equal(t, "internal error", apperr.Message(err))
}

func TestErrorStringKeepsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := apperr.E(apperr.KindStorageError, "store.CreateInteraction", "could not save interaction", cause)

	assert.Contains(t, err.Error(), "disk I/O error")
	assert.ErrorIs(t, err, cause)
}
