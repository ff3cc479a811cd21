package joystick

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// Linux joystick API (js_event) axis numbering for common dual-stick pads.
//
//	L stick l/r = 0, u/d = 1 (up = -32767; down = +32767)
//	R stick l/r = 3, u/d = 4
const (
	AxisLStickX = 0
	AxisLStickY = 1
	AxisRStickX = 3
	AxisRStickY = 4

	// AxisMax is the magnitude reported at full deflection.
	AxisMax = 32767
)

// DeviceEventType distinguishes button and axis events.
type DeviceEventType uint8

const (
	DeviceEventButton DeviceEventType = 1
	DeviceEventAxis   DeviceEventType = 2

	// deviceEventInit flags the synthetic events sent when the device opens.
	deviceEventInit = 0x80
)

func (e DeviceEventType) String() string {
	switch e {
	case DeviceEventAxis:
		return "axis"
	case DeviceEventButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// DeviceEvent is one decoded js_event.
type DeviceEvent struct {
	Time   time.Time
	Value  int16
	Type   DeviceEventType
	Number uint8
}

func (e *DeviceEvent) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

type rawDeviceEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// Device reads events from a Linux joystick device such as /dev/input/js0.
type Device struct {
	r io.ReadCloser

	deviceEpoch    uint32
	wallclockEpoch time.Time
	epochSet       bool
}

// OpenDevice opens the joystick device at path.
func OpenDevice(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open joystick device '%s': %w", path, err)
	}
	return NewDevice(f), nil
}

// NewDevice reads js_event records from r.
func NewDevice(r io.ReadCloser) *Device {
	return &Device{r: r}
}

// ReadEvent blocks until the next event. Device timestamps (milliseconds
// since an arbitrary epoch) are converted to wall clock time.
func (d *Device) ReadEvent() (*DeviceEvent, error) {
	var raw rawDeviceEvent
	if err := binary.Read(d.r, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}

	if !d.epochSet {
		d.epochSet = true
		d.deviceEpoch = raw.Time
		d.wallclockEpoch = time.Now()
	}

	return &DeviceEvent{
		Time:   d.wallclockEpoch.Add(time.Duration(raw.Time-d.deviceEpoch) * time.Millisecond),
		Value:  raw.Value,
		Type:   DeviceEventType(raw.Type &^ deviceEventInit),
		Number: raw.Number,
	}, nil
}

func (d *Device) Close() error {
	return d.r.Close()
}
