package joystick

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventKind is the gesture phase of an input event.
type EventKind string

const (
	EventMove EventKind = "move"
	EventEnd  EventKind = "end"
)

// Event is one gesture sample addressed to a named stream.
type Event struct {
	Stream string      `json:"stream"`
	Kind   EventKind   `json:"event"`
	Raw    *RawReading `json:"data,omitempty"`
}

// LineError reports a line of scripted input that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("input line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// EventDecoder reads JSON-lines gesture events:
//
//	{"stream": "left", "event": "move", "data": {"distance": 50, "angle": {"degree": 90}}}
//
// Blank lines and lines starting with '#' are skipped.
type EventDecoder struct {
	scanner *bufio.Scanner
	line    int
}

func NewEventDecoder(r io.Reader) *EventDecoder {
	return &EventDecoder{scanner: bufio.NewScanner(r)}
}

// Next returns the next event. A *LineError leaves the decoder usable;
// io.EOF marks the end of input.
func (d *EventDecoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		text := strings.TrimSpace(d.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return Event{}, &LineError{Line: d.line, Err: err}
		}
		if ev.Stream == "" {
			return Event{}, &LineError{Line: d.line, Err: fmt.Errorf("missing stream")}
		}
		switch ev.Kind {
		case EventMove, EventEnd:
		default:
			return Event{}, &LineError{Line: d.line, Err: fmt.Errorf("unknown event %q", ev.Kind)}
		}
		return ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
