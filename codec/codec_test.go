package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/peerlobby/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := EncodePayload(wire.TypePlayerReady, "p1", 1234, wire.PlayerReadyPayload{
		LogicalID: "p1",
		IsReady:   true,
	})
	require.NoError(t, err)

	data, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, wire.TypePlayerReady, decoded.Type)
	assert.Equal(t, "p1", decoded.SenderID)
	assert.Equal(t, int64(1234), decoded.Timestamp)

	var payload wire.PlayerReadyPayload
	require.NoError(t, DecodePayload(decoded, &payload))
	assert.Equal(t, "p1", payload.LogicalID)
	assert.True(t, payload.IsReady)
}

func TestDecodeRejectsUnknownTopLevelFields(t *testing.T) {
	data := []byte(`{"type":"ping","payload":{},"sender_id":"p1","timestamp":1,"extra":"nope"}`)
	_, err := Decode(data)
	assert.ErrorIs(t, err, wire.ErrMalformed)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	data := []byte(`{"type":"ping","payload":{},"sender_id":"p1","timestamp":1}{}`)
	_, err := Decode(data)
	assert.ErrorIs(t, err, wire.ErrMalformed)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	data := []byte(`{"type":"not-a-type","payload":{},"sender_id":"p1","timestamp":1}`)
	_, err := Decode(data)
	assert.ErrorIs(t, err, wire.ErrUnknownType)
}

func TestDecodePayloadRejectsUnknownFields(t *testing.T) {
	env := wire.Envelope{
		Type:     wire.TypePlayerReady,
		Payload:  []byte(`{"logical_id":"p1","is_ready":true,"bogus":1}`),
		SenderID: "p1",
	}
	var payload wire.PlayerReadyPayload
	err := DecodePayload(env, &payload)
	assert.ErrorIs(t, err, wire.ErrMalformed)
}
