// Package codec parses raw transport buffers into wire.Envelope values and
// decodes envelope payloads into their variant-specific shapes. It is
// deliberately strict: anything that doesn't match the expected schema is
// rejected rather than partially accepted, so a malformed peer can never
// crash a handler.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kestrelnet/peerlobby/wire"
)

// Decode parses a raw message buffer into a wire.Envelope and runs
// structural validation. Unknown or extra top-level fields are rejected via
// DisallowUnknownFields, matching spec's "Structural validation" rule.
func Decode(data []byte) (wire.Envelope, error) {
	var env wire.Envelope

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return wire.Envelope{}, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	if dec.More() {
		return wire.Envelope{}, fmt.Errorf("%w: trailing data after envelope", wire.ErrMalformed)
	}
	if err := env.Validate(); err != nil {
		return wire.Envelope{}, err
	}
	return env, nil
}

// Encode marshals an envelope back to its wire form.
func Encode(env wire.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodePayload strictly unmarshals an envelope's payload into dst, which
// must be a pointer to one of the wire.*Payload structs. Extra fields in the
// payload are rejected the same way extra envelope fields are.
func DecodePayload(env wire.Envelope, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: payload for %q: %v", wire.ErrMalformed, env.Type, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data in payload for %q", wire.ErrMalformed, env.Type)
	}
	return nil
}

// EncodePayload wraps a variant payload plus the envelope metadata into a
// ready-to-send Envelope.
func EncodePayload(t wire.Type, senderID string, timestampMillis int64, payload interface{}) (wire.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("marshal payload for %q: %w", t, err)
	}
	return wire.Envelope{
		Type:      t,
		Payload:   raw,
		SenderID:  senderID,
		Timestamp: timestampMillis,
	}, nil
}
