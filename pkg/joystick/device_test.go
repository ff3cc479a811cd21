package joystick

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
)

func encodeEvents(t *testing.T, events ...rawDeviceEvent) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("Failed to encode event: %v", err)
		}
	}
	return io.NopCloser(&buf)
}

func TestDeviceReadEvent(t *testing.T) {
	dev := NewDevice(encodeEvents(t,
		rawDeviceEvent{Time: 1000, Value: 1, Type: 0x81, Number: 4},
		rawDeviceEvent{Time: 1250, Value: -32767, Type: 2, Number: 1},
	))
	defer dev.Close()

	first, err := dev.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if first.Type != DeviceEventButton || first.Number != 4 {
		t.Errorf("Expected init-flagged button 4, got %v", first)
	}

	second, err := dev.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if second.Type != DeviceEventAxis || second.Value != -32767 {
		t.Errorf("Expected axis event, got %v", second)
	}
	if got := second.Time.Sub(first.Time).Milliseconds(); got != 250 {
		t.Errorf("Expected 250ms between events, got %d", got)
	}

	if _, err := dev.ReadEvent(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestStickTrackerUpAndRelease(t *testing.T) {
	tracker := NewStickTracker(DefaultSticks, 0.1)

	ev, ok := tracker.Apply(&DeviceEvent{Type: DeviceEventAxis, Number: AxisLStickY, Value: -AxisMax})
	if !ok {
		t.Fatalf("Expected a move event for full up deflection")
	}
	if ev.Stream != "left" || ev.Kind != EventMove {
		t.Errorf("Expected left move, got %s %s", ev.Stream, ev.Kind)
	}
	r := Normalize(ev.Raw)
	if math.Abs(r.Angle.Degree-90) > 1e-9 {
		t.Errorf("Expected angle 90 for up, got %v", r.Angle.Degree)
	}
	if math.Abs(r.Distance-100) > 1e-9 {
		t.Errorf("Expected distance 100, got %v", r.Distance)
	}
	if r.Direction.Angle != "up" || r.Direction.Y != "up" {
		t.Errorf("Expected up direction, got %+v", r.Direction)
	}

	ev, ok = tracker.Apply(&DeviceEvent{Type: DeviceEventAxis, Number: AxisLStickY, Value: 100})
	if !ok || ev.Kind != EventEnd {
		t.Fatalf("Expected end event on return to centre, got %v %+v", ok, ev)
	}

	if _, ok := tracker.Apply(&DeviceEvent{Type: DeviceEventAxis, Number: AxisLStickX, Value: 50}); ok {
		t.Errorf("Idle stick inside the dead zone should not emit")
	}
}

func TestStickTrackerIgnoresOtherEvents(t *testing.T) {
	tracker := NewStickTracker(DefaultSticks, 0.1)
	if _, ok := tracker.Apply(&DeviceEvent{Type: DeviceEventButton, Number: AxisLStickX, Value: 1}); ok {
		t.Errorf("Button events must be ignored")
	}
	if _, ok := tracker.Apply(&DeviceEvent{Type: DeviceEventAxis, Number: 7, Value: AxisMax}); ok {
		t.Errorf("Untracked axes must be ignored")
	}

	ev, ok := tracker.Apply(&DeviceEvent{Type: DeviceEventAxis, Number: AxisRStickX, Value: -AxisMax})
	if !ok || ev.Stream != "right" {
		t.Fatalf("Expected right stick move, got %v %+v", ok, ev)
	}
	if r := Normalize(ev.Raw); math.Abs(r.Angle.Degree-180) > 1e-9 || r.Direction.Angle != "left" {
		t.Errorf("Expected left at 180 degrees, got %+v", r)
	}
}

func TestEventDecoder(t *testing.T) {
	input := strings.Join([]string{
		`# scripted drive`,
		`{"stream":"left","event":"move","data":{"distance":50,"angle":{"degree":180}}}`,
		``,
		`{"stream":"left","event":"wiggle"}`,
		`not json`,
		`{"stream":"left","event":"end"}`,
	}, "\n")
	dec := NewEventDecoder(strings.NewReader(input))

	ev, err := dec.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Kind != EventMove || Normalize(ev.Raw).Distance != 50 {
		t.Errorf("Unexpected first event: %+v", ev)
	}

	var lineErr *LineError
	if _, err := dec.Next(); !errors.As(err, &lineErr) || lineErr.Line != 4 {
		t.Errorf("Expected line 4 error, got %v", err)
	}
	if _, err := dec.Next(); !errors.As(err, &lineErr) || lineErr.Line != 5 {
		t.Errorf("Expected line 5 error, got %v", err)
	}

	ev, err = dec.Next()
	if err != nil || ev.Kind != EventEnd || ev.Raw != nil {
		t.Errorf("Expected bare end event, got %+v, %v", ev, err)
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestDeviceSource(t *testing.T) {
	dev := NewDevice(encodeEvents(t,
		rawDeviceEvent{Time: 1, Value: 1, Type: 1, Number: 0},
		rawDeviceEvent{Time: 2, Value: -AxisMax, Type: 2, Number: AxisLStickY},
		rawDeviceEvent{Time: 3, Value: 0, Type: 2, Number: AxisLStickY},
	))
	source := NewDeviceSource(dev, NewStickTracker(DefaultSticks, 0.1))
	defer source.Close()

	first, err := source.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Kind != EventMove || first.Stream != "left" {
		t.Errorf("Expected left move, got %+v", first)
	}
	second, err := source.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second.Kind != EventEnd {
		t.Errorf("Expected end, got %+v", second)
	}
	if _, err := source.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}
