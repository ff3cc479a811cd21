package pilot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/pkg/motion"
)

const streamsYAML = `
version: "1.0"
config_id: test
defaults:
  cooldown_ms: 50
  burst_count: 3
  burst_interval_ms: 10
streams:
  - name: left
    type: cmd_vel
    max_primary: 0.44
    max_secondary: 5.12
    primary_key: linear
    secondary_key: angular
  - name: right
    type: pan_tilt
    max_primary: 90
    max_secondary: 90
    primary_sign: -1
    primary_key: y
    secondary_key: z
`

type recordingPublisher struct {
	mu   sync.Mutex
	sent []channel.Envelope
}

func (p *recordingPublisher) Publish(env channel.Envelope) *channel.Receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return channel.Completed(nil)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, env := range p.sent {
		out = append(out, env.Type)
	}
	return out
}

func newTestController(t *testing.T, logs *bytes.Buffer) (*Controller, *recordingPublisher, *clock.Fake) {
	t.Helper()
	cfg, err := config.ParseConfig([]byte(streamsYAML))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	logger := customlog.NewNopLogger()
	if logs != nil {
		logger = customlog.NewWriterLogger("warn", logs)
	}
	pub := &recordingPublisher{}
	fake := clock.NewFake(time.Unix(0, 0))
	return NewController(cfg, pub, fake, logger), pub, fake
}

func up() *joystick.RawReading {
	return &joystick.RawReading{Distance: joystick.Float(100), Angle: &joystick.Angle{Degree: 90}}
}

func TestControllerStreamsAreIndependent(t *testing.T) {
	ctrl, pub, _ := newTestController(t, nil)

	if err := ctrl.Move("left", up()); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := ctrl.Move("right", up()); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	ctrl.Move("left", up())

	got := pub.types()
	if strings.Join(got, ",") != "cmd_vel,pan_tilt" {
		t.Errorf("Expected one publish per stream, got %v", got)
	}
}

func TestControllerPanTiltSigns(t *testing.T) {
	ctrl, pub, _ := newTestController(t, nil)
	ctrl.Move("right", up())

	var body struct {
		Data map[string]float64 `json:"data"`
	}
	if err := pub.sent[0].Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Data["y"] != -90 {
		t.Errorf("Expected tilt y=-90 for full up, got %v", body.Data)
	}
}

func TestControllerUnknownStreamWarnsOnce(t *testing.T) {
	var logs bytes.Buffer
	ctrl, pub, _ := newTestController(t, &logs)

	if missing := ctrl.Bind("left", "aux"); len(missing) != 1 || missing[0] != "aux" {
		t.Errorf("Expected aux reported as unconfigured, got %v", missing)
	}
	for i := 0; i < 3; i++ {
		if err := ctrl.Move("aux", up()); !errors.Is(err, ErrUnknownStream) {
			t.Errorf("Expected ErrUnknownStream, got %v", err)
		}
	}
	if err := ctrl.End("aux", nil); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("Expected ErrUnknownStream, got %v", err)
	}

	if n := strings.Count(logs.String(), "aux is not configured"); n != 1 {
		t.Errorf("Expected one warning, got %d:\n%s", n, logs.String())
	}
	if len(pub.types()) != 0 {
		t.Errorf("Expected nothing published")
	}
	if err := ctrl.Move("left", up()); err != nil {
		t.Errorf("Expected configured stream to keep working, got %v", err)
	}
}

func TestControllerRun(t *testing.T) {
	ctrl, pub, fake := newTestController(t, nil)

	var observed []motion.Published
	ctrl.SetObserver(func(p motion.Published) { observed = append(observed, p) })

	input := strings.Join([]string{
		`{"stream":"left","event":"move","data":{"distance":50,"angle":{"degree":180}}}`,
		`not json`,
		`{"stream":"aux","event":"move","data":{}}`,
		`{"stream":"left","event":"end"}`,
	}, "\n")
	if err := ctrl.Run(context.Background(), joystick.NewEventDecoder(strings.NewReader(input))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	fake.Advance(20 * time.Millisecond)

	if got := len(pub.types()); got != 4 {
		t.Fatalf("Expected move plus 3 stop commands, got %d", got)
	}
	if len(observed) != 4 || observed[0].Command.Secondary < 2.559 || observed[0].Command.Secondary > 2.561 {
		t.Errorf("Expected angular 2.56 first, got %+v", observed)
	}
	if e, _ := ctrl.Engine("left"); e.State() != motion.StateIdle {
		t.Errorf("Expected left idle after end, got %v", e.State())
	}
}

func TestControllerRunStopsOnContext(t *testing.T) {
	ctrl, _, _ := newTestController(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctrl.Run(ctx, joystick.NewEventDecoder(strings.NewReader(`{"stream":"left","event":"end"}`)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
