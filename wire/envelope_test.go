package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown(TypeJoinRequest))
	assert.True(t, IsKnown(TypeGameMessage))
	assert.False(t, IsKnown(Type("not-a-real-type")))
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		Type:      TypePing,
		Payload:   json.RawMessage(`{}`),
		SenderID:  "p1",
		Timestamp: 1000,
	}
	require.NoError(t, valid.Validate())

	t.Run("unknown type", func(t *testing.T) {
		env := valid
		env.Type = "bogus"
		assert.ErrorIs(t, env.Validate(), ErrUnknownType)
	})

	t.Run("missing sender", func(t *testing.T) {
		env := valid
		env.SenderID = ""
		assert.ErrorIs(t, env.Validate(), ErrMissingSender)
	})

	t.Run("nil payload", func(t *testing.T) {
		env := valid
		env.Payload = nil
		assert.ErrorIs(t, env.Validate(), ErrMalformed)
	})
}

func TestIsRateLimitExemptInnerType(t *testing.T) {
	assert.True(t, IsRateLimitExemptInnerType(InnerTypeApproveMove))
	assert.True(t, IsRateLimitExemptInnerType(InnerTypeFinalizeMove))
	assert.True(t, IsRateLimitExemptInnerType(InnerTypeRequestState))
	assert.True(t, IsRateLimitExemptInnerType(InnerTypeSyncState))
	assert.False(t, IsRateLimitExemptInnerType(InnerTypeProposeMove))
	assert.False(t, IsRateLimitExemptInnerType("some-game-specific-move"))
}
