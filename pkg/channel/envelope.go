// Package channel carries JSON envelopes between the pilot and a remote
// peer over a pluggable transport, queueing publishes until the
// connection is open.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for publishes on, or pending at, a closed channel.
	ErrClosed = errors.New("channel is closed")
	// ErrAlreadySubscribed is returned by a second Subscribe call.
	ErrAlreadySubscribed = errors.New("channel already has a subscriber")
	// ErrMalformedEnvelope marks inbound data that is not an envelope. The
	// connection stays usable.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Envelope is the wire unit: {"type": ..., "data": ...}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(envelopeType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s envelope data: %w", envelopeType, err)
	}
	return Envelope{Type: envelopeType, Data: raw}, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s envelope has no data", ErrMalformedEnvelope, e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// ParseEnvelope decodes wire bytes into an Envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

// Handler receives inbound envelopes.
type Handler func(Envelope)

// Publisher is the outbound half of a channel.
type Publisher interface {
	Publish(env Envelope) *Receipt
}
