package joystick

import "math"

// Stick binds a pair of device axes to a stream name.
type Stick struct {
	Stream string
	XAxis  uint8
	YAxis  uint8
}

// DefaultSticks maps the left pad stick to "left" and the right one to "right".
var DefaultSticks = []Stick{
	{Stream: "left", XAxis: AxisLStickX, YAxis: AxisLStickY},
	{Stream: "right", XAxis: AxisRStickX, YAxis: AxisRStickY},
}

type stickState struct {
	x, y   int16
	active bool
}

// StickTracker turns raw axis events into polar gesture events, the same
// shape a touch joystick produces: angle 90° is up, distance runs 0..100.
// Deflection inside the dead zone ends the gesture.
type StickTracker struct {
	sticks   []Stick
	deadZone float64
	state    map[string]*stickState
}

// NewStickTracker creates a tracker. deadZone is a fraction of full travel.
func NewStickTracker(sticks []Stick, deadZone float64) *StickTracker {
	state := make(map[string]*stickState, len(sticks))
	for _, s := range sticks {
		state[s.Stream] = &stickState{}
	}
	return &StickTracker{sticks: sticks, deadZone: deadZone, state: state}
}

// Apply feeds one device event. It returns a gesture event when the event
// moved a tracked stick, or ended an active gesture.
func (t *StickTracker) Apply(ev *DeviceEvent) (Event, bool) {
	if ev == nil || ev.Type != DeviceEventAxis {
		return Event{}, false
	}
	for _, s := range t.sticks {
		st := t.state[s.Stream]
		switch ev.Number {
		case s.XAxis:
			st.x = ev.Value
		case s.YAxis:
			st.y = ev.Value
		default:
			continue
		}

		reading := stickReading(st.x, st.y)
		if *reading.Distance < t.deadZone*100 {
			if !st.active {
				return Event{}, false
			}
			st.active = false
			return Event{Stream: s.Stream, Kind: EventEnd, Raw: reading}, true
		}
		st.active = true
		return Event{Stream: s.Stream, Kind: EventMove, Raw: reading}, true
	}
	return Event{}, false
}

func stickReading(x, y int16) *RawReading {
	fx := float64(x) / AxisMax
	fy := -float64(y) / AxisMax // device y grows downwards

	magnitude := math.Min(math.Hypot(fx, fy), 1)
	radian := math.Atan2(fy, fx)
	if radian < 0 {
		radian += 2 * math.Pi
	}
	degree := radian * 180 / math.Pi

	return &RawReading{
		Force:     Float(magnitude),
		Pressure:  Float(0),
		Distance:  Float(magnitude * 100),
		Angle:     &Angle{Radian: radian, Degree: degree},
		Direction: directionOf(degree, magnitude),
		Position:  &Position{X: float64(x), Y: float64(y)},
	}
}

func directionOf(degree, magnitude float64) *Direction {
	if magnitude == 0 {
		return &Direction{}
	}
	d := &Direction{X: "left", Y: "down"}
	if degree < 90 || degree >= 270 {
		d.X = "right"
	}
	if degree > 0 && degree < 180 {
		d.Y = "up"
	}
	switch {
	case degree >= 45 && degree < 135:
		d.Angle = "up"
	case degree >= 135 && degree < 225:
		d.Angle = "left"
	case degree >= 225 && degree < 315:
		d.Angle = "down"
	default:
		d.Angle = "right"
	}
	return d
}

// DeviceSource yields gesture events from a joystick device.
type DeviceSource struct {
	device  *Device
	tracker *StickTracker
}

// NewDeviceSource tracks the given sticks on device.
func NewDeviceSource(device *Device, tracker *StickTracker) *DeviceSource {
	return &DeviceSource{device: device, tracker: tracker}
}

// Next blocks until a tracked stick moves or is released.
func (s *DeviceSource) Next() (Event, error) {
	for {
		ev, err := s.device.ReadEvent()
		if err != nil {
			return Event{}, err
		}
		if out, ok := s.tracker.Apply(ev); ok {
			return out, nil
		}
	}
}

// Close closes the device.
func (s *DeviceSource) Close() error {
	return s.device.Close()
}
