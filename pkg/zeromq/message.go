package zeromq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/wire"
)

// encodeMessage builds the two-part message [topic, frame] for an envelope.
// The topic is the envelope type so that subscribers can filter by prefix.
func encodeMessage(env channel.Envelope, contentType wire.ContentType, now time.Time) ([]byte, []byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	frame := wire.Encode(wire.Frame{
		Topic:       env.Type,
		TimestampNs: now.UnixNano(),
		ContentType: contentType,
		Payload:     payload,
	})
	return []byte(env.Type), frame, nil
}

// decodeMessage reverses encodeMessage. Errors wrap channel.ErrMalformedEnvelope.
func decodeMessage(parts [][]byte) (channel.Envelope, wire.Frame, error) {
	if len(parts) != 2 {
		return channel.Envelope{}, wire.Frame{}, fmt.Errorf("%w: expected 2 message parts, got %d", channel.ErrMalformedEnvelope, len(parts))
	}
	frame, err := wire.Decode(parts[1])
	if err != nil {
		return channel.Envelope{}, wire.Frame{}, fmt.Errorf("%w: %v", channel.ErrMalformedEnvelope, err)
	}
	if frame.Topic != string(parts[0]) {
		return channel.Envelope{}, wire.Frame{}, fmt.Errorf("%w: topic %q does not match frame topic %q", channel.ErrMalformedEnvelope, parts[0], frame.Topic)
	}
	env, err := channel.ParseEnvelope(frame.Payload)
	if err != nil {
		return channel.Envelope{}, wire.Frame{}, err
	}
	return env, frame, nil
}
