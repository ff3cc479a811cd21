// Package motion turns joystick readings into bounded two-axis commands and
// drives the per-stream publish state machine.
package motion

import (
	"fmt"
	"math"

	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
)

// CommandVector is a signed, scaled command pair, e.g. linear/angular
// velocity or pan/tilt angle.
type CommandVector struct {
	Primary   float64 `json:"primary" csv:"primary"`
	Secondary float64 `json:"secondary" csv:"secondary"`
}

// IsZero reports whether both components are zero.
func (c CommandVector) IsZero() bool {
	return c.Primary == 0 && c.Secondary == 0
}

// Direction corrects a capture angle (0 = right, 90 = up, counterclockwise)
// into the command frame where "up" is 0 and the range is (-180, 180].
func Direction(angle float64) float64 {
	dir := angle - 90
	if dir > 180 {
		dir = -(450 - angle)
	}
	return dir
}

// Map converts a reading into a command vector using the stream's sign and
// scale table. Out-of-range inputs are sanitized first.
func Map(r joystick.Reading, s config.StreamConfig) CommandVector {
	r, _ = Sanitize(r)

	rad := Direction(r.Angle.Degree) * math.Pi / 180
	scale := r.Distance / 100

	return CommandVector{
		Primary:   sign(s.PrimarySign) * math.Cos(rad) * scale * s.MaxPrimary,
		Secondary: sign(s.SecondarySign) * math.Sin(rad) * scale * s.MaxSecondary,
	}
}

// Sanitize clamps distance into [0,100], wraps the angle into [0,360) and
// replaces NaN or infinite values with 0. It returns a note per correction.
func Sanitize(r joystick.Reading) (joystick.Reading, []string) {
	var notes []string

	if !finite(r.Distance) {
		notes = append(notes, fmt.Sprintf("distance %v is not finite, using 0", r.Distance))
		r.Distance = 0
	}
	switch {
	case r.Distance < 0:
		notes = append(notes, fmt.Sprintf("distance %v clamped to 0", r.Distance))
		r.Distance = 0
	case r.Distance > 100:
		notes = append(notes, fmt.Sprintf("distance %v clamped to 100", r.Distance))
		r.Distance = 100
	}

	if !finite(r.Angle.Degree) {
		notes = append(notes, fmt.Sprintf("angle %v is not finite, using 0", r.Angle.Degree))
		r.Angle = joystick.Angle{}
	}
	if r.Angle.Degree < 0 || r.Angle.Degree >= 360 {
		wrapped := math.Mod(r.Angle.Degree, 360)
		if wrapped < 0 {
			wrapped += 360
		}
		// -0.0 or 360 after float rounding
		if wrapped >= 360 {
			wrapped = 0
		}
		notes = append(notes, fmt.Sprintf("angle %v wrapped to %v", r.Angle.Degree, wrapped))
		r.Angle.Degree = wrapped
		r.Angle.Radian = wrapped * math.Pi / 180
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"force", &r.Force},
		{"pressure", &r.Pressure},
		{"radian", &r.Angle.Radian},
		{"position.x", &r.Position.X},
		{"position.y", &r.Position.Y},
	} {
		if !finite(*f.v) {
			notes = append(notes, fmt.Sprintf("%s %v is not finite, using 0", f.name, *f.v))
			*f.v = 0
		}
	}

	return r, notes
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sign treats an unset sign as +1.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
