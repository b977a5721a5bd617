package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "consentd/pkg/domain-errors"
)

// TestParseRequestID validates the trust-boundary invariant that external
// request IDs must be well-formed UUIDs.
func TestParseRequestID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRequestID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseRequestID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		requestID, err := ParseRequestID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RequestID(validUUID), requestID)
	})
}

func TestParseResponseToken(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseResponseToken("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("passes through opaque value", func(t *testing.T) {
		token, err := ParseResponseToken("some-opaque-token")
		require.NoError(t, err)
		assert.Equal(t, ResponseToken("some-opaque-token"), token)
	})
}

// TestTokenIndependence verifies a response token never leaks the request ID.
func TestTokenIndependence(t *testing.T) {
	requestID := NewRequestID()
	token := NewResponseToken()
	assert.NotEqual(t, requestID.String(), token.String())
	assert.False(t, token.IsNil())
	assert.False(t, requestID.IsNil())
}
