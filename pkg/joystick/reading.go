// Package joystick holds the joystick reading model, the normalizer that
// turns partial capture readings into complete ones, and capture adapters
// (Linux joystick devices, scripted JSON-lines input).
package joystick

import (
	"bytes"
	"encoding/json"
)

// Angle of the stick, as reported by the capture surface. Degree 90 is "up".
type Angle struct {
	Radian float64 `json:"radian"`
	Degree float64 `json:"degree"`
}

// Direction holds coarse direction labels ("up", "left", ...), empty when idle.
type Direction struct {
	X     string `json:"x"`
	Y     string `json:"y"`
	Angle string `json:"angle"`
}

// Position is the raw pointer position of the stick head.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Reading is a fully populated joystick sample. Distance is expected in [0,100].
type Reading struct {
	Force     float64   `json:"force"`
	Pressure  float64   `json:"pressure"`
	Distance  float64   `json:"distance"`
	Angle     Angle     `json:"angle"`
	Direction Direction `json:"direction"`
	Position  Position  `json:"position"`
}

// RawReading is a reading as delivered by a capture source; any field may be absent.
type RawReading struct {
	Force     *float64   `json:"force,omitempty"`
	Pressure  *float64   `json:"pressure,omitempty"`
	Distance  *float64   `json:"distance,omitempty"`
	Angle     *Angle     `json:"angle,omitempty"`
	Direction *Direction `json:"direction,omitempty"`
	Position  *Position  `json:"position,omitempty"`
}

// Normalize returns a complete Reading, keeping every field present in raw
// and defaulting the rest to zero values. A nil raw yields the zero Reading.
func Normalize(raw *RawReading) Reading {
	var r Reading
	if raw == nil {
		return r
	}
	if raw.Force != nil {
		r.Force = *raw.Force
	}
	if raw.Pressure != nil {
		r.Pressure = *raw.Pressure
	}
	if raw.Distance != nil {
		r.Distance = *raw.Distance
	}
	if raw.Angle != nil {
		r.Angle = *raw.Angle
	}
	if raw.Direction != nil {
		r.Direction = *raw.Direction
	}
	if raw.Position != nil {
		r.Position = *raw.Position
	}
	return r
}

// NormalizeJSON decodes a reading from JSON and normalizes it. Empty, null
// or malformed input yields the zero Reading.
func NormalizeJSON(data []byte) Reading {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Reading{}
	}
	var raw *RawReading
	if err := json.Unmarshal(data, &raw); err != nil {
		return Reading{}
	}
	return Normalize(raw)
}

// Float returns a pointer to v, for building RawReadings.
func Float(v float64) *float64 { return &v }
