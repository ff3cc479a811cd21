package teleop

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

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

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newTestService(t *testing.T) (*TeleopService, *recordingPublisher, *clock.Fake) {
	t.Helper()
	cfg, err := config.ParseConfig([]byte(`
streams:
  - name: left
    type: cmd_vel
    max_primary: 0.44
    max_secondary: 5.12
`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	pub := &recordingPublisher{}
	fake := clock.NewFake(time.Unix(0, 0))
	s := NewTeleopService(pub, fake, customlog.NewNopLogger())
	s.Configure(cfg)
	return s, pub, fake
}

func TestCommandHandler(t *testing.T) {
	s, pub, fake := newTestService(t)
	app := fiber.New()
	app.Post("/teleop/:stream/:event", s.CommandHandler)

	req := httptest.NewRequest("POST", "/teleop/left/move", strings.NewReader(`{"distance":100,"angle":{"degree":90}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/teleop/left/end", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	fake.Advance(50 * time.Millisecond)
	if got := pub.count(); got != 4 {
		t.Errorf("Expected move plus 3 stop commands, got %d", got)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/teleop/aux/move", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 for unknown stream, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest("POST", "/teleop/left/jump", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for unknown event, got %d", resp.StatusCode)
	}
}

func TestMessageHandler(t *testing.T) {
	s, pub, _ := newTestService(t)
	handle := s.MessageHandler()

	env, _ := channel.NewEnvelope(MessageType, map[string]interface{}{
		"stream": "left",
		"event":  "move",
		"data":   map[string]interface{}{"distance": 50, "angle": map[string]float64{"degree": 180}},
	})
	handle(env, nil)
	handle(channel.Envelope{Type: MessageType}, nil)

	if got := pub.count(); got != 1 {
		t.Fatalf("Expected one command, got %d", got)
	}
	var body struct {
		Data map[string]float64 `json:"data"`
	}
	if err := pub.sent[0].Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Data["secondary"] < 2.559 || body.Data["secondary"] > 2.561 {
		t.Errorf("Expected secondary 2.56, got %v", body.Data)
	}
}

func TestUnconfigured(t *testing.T) {
	s := NewTeleopService(&recordingPublisher{}, clock.NewFake(time.Unix(0, 0)), customlog.NewNopLogger())
	app := fiber.New()
	app.Post("/teleop/:stream/:event", s.CommandHandler)

	resp, _ := app.Test(httptest.NewRequest("POST", "/teleop/left/end", nil))
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}
