// Package wire encodes envelopes into FlatBuffers frames for the ZeroMQ
// device link. The table layout is
//
//	table Frame {
//	  topic:string;        // slot 0
//	  timestamp_ns:long;   // slot 1
//	  content_type:ubyte;  // slot 2
//	  payload:[ubyte];     // slot 3
//	}
package wire

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ContentType tells the receiver how to read the payload.
type ContentType byte

const (
	ContentTypeUnknown     ContentType = 0
	ContentTypeJSONCommand ContentType = 1
	ContentTypeJSONState   ContentType = 2
)

const (
	slotTopic = iota
	slotTimestampNs
	slotContentType
	slotPayload
	numSlots
)

// ErrInvalidFrame is returned for buffers that do not hold a frame.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one message on the device link.
type Frame struct {
	Topic       string
	TimestampNs int64
	ContentType ContentType
	Payload     []byte
}

// Encode serializes f.
func Encode(f Frame) []byte {
	b := flatbuffers.NewBuilder(64 + len(f.Topic) + len(f.Payload))

	topic := b.CreateString(f.Topic)
	payload := b.CreateByteVector(f.Payload)

	b.StartObject(numSlots)
	b.PrependUOffsetTSlot(slotPayload, payload, 0)
	b.PrependInt64Slot(slotTimestampNs, f.TimestampNs, 0)
	b.PrependUOffsetTSlot(slotTopic, topic, 0)
	b.PrependByteSlot(slotContentType, byte(f.ContentType), 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// Decode parses a frame. The returned payload is a copy.
func Decode(buf []byte) (f Frame, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT+flatbuffers.SizeSOffsetT {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(buf))
	}
	defer func() {
		if r := recover(); r != nil {
			f, err = Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, r)
		}
	}()

	tab := flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
	if int(tab.Pos) >= len(buf) {
		return Frame{}, fmt.Errorf("%w: root offset out of range", ErrInvalidFrame)
	}

	if o := flatbuffers.UOffsetT(tab.Offset(slotOffset(slotTopic))); o != 0 {
		f.Topic = string(tab.ByteVector(o + tab.Pos))
	}
	if o := flatbuffers.UOffsetT(tab.Offset(slotOffset(slotTimestampNs))); o != 0 {
		f.TimestampNs = tab.GetInt64(o + tab.Pos)
	}
	if o := flatbuffers.UOffsetT(tab.Offset(slotOffset(slotContentType))); o != 0 {
		f.ContentType = ContentType(tab.GetByte(o + tab.Pos))
	}
	if o := flatbuffers.UOffsetT(tab.Offset(slotOffset(slotPayload))); o != 0 {
		f.Payload = append([]byte(nil), tab.ByteVector(o+tab.Pos)...)
	}
	if f.Topic == "" {
		return Frame{}, fmt.Errorf("%w: missing topic", ErrInvalidFrame)
	}
	return f, nil
}

// slotOffset converts a field slot to its vtable offset.
func slotOffset(slot int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*slot)
}
