package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []channel.Envelope
	err  error
}

func (s *recordingSender) Send(env channel.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingPublisher struct {
	sent []channel.Envelope
}

func (p *recordingPublisher) Publish(env channel.Envelope) *channel.Receipt {
	p.sent = append(p.sent, env)
	return channel.Completed(nil)
}

func newTestHub() (*Hub, *StreamRegistry, *recordingPublisher) {
	logger := customlog.NewNopLogger()
	registry := NewStreamRegistry(logger)
	device := &recordingPublisher{}
	return NewHub(registry, device, logger), registry, device
}

func TestHubForwardsClientMessages(t *testing.T) {
	hub, registry, device := newTestHub()
	client := hub.Connect(&recordingSender{})

	if err := hub.HandleMessage(client.ID, []byte(`{"type":"cmd_vel","data":{"data":{"linear":0.2,"angular":0}}}`)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(device.sent) != 1 || device.sent[0].Type != "cmd_vel" {
		t.Fatalf("Expected cmd_vel forwarded to device, got %+v", device.sent)
	}

	info, ok := registry.Info("cmd_vel")
	if !ok || info.Count != 1 || info.Direction != DirectionToDevice {
		t.Errorf("Unexpected registry entry: %+v", info)
	}
}

func TestHubDropsMalformedMessages(t *testing.T) {
	hub, _, device := newTestHub()
	client := hub.Connect(&recordingSender{})

	for _, msg := range []string{`not json`, `{"data":1}`} {
		if err := hub.HandleMessage(client.ID, []byte(msg)); !errors.Is(err, channel.ErrMalformedEnvelope) {
			t.Errorf("Expected ErrMalformedEnvelope for %s, got %v", msg, err)
		}
	}
	if len(device.sent) != 0 {
		t.Errorf("Expected nothing forwarded")
	}
}

func TestHubLocalHandlerReplies(t *testing.T) {
	hub, _, device := newTestHub()
	sender := &recordingSender{}
	client := hub.Connect(sender)
	other := &recordingSender{}
	hub.Connect(other)

	hub.RegisterHandler("ping", func(env channel.Envelope, reply Sender) {
		pong, _ := channel.NewEnvelope("pong", nil)
		reply.Send(pong)
	})
	hub.HandleMessage(client.ID, []byte(`{"type":"ping"}`))

	if sender.count() != 1 || other.count() != 0 {
		t.Errorf("Expected reply only to the sender, got %d and %d", sender.count(), other.count())
	}
	if len(device.sent) != 0 {
		t.Errorf("Expected local message not forwarded")
	}
}

func TestHubBroadcastsDeviceMessages(t *testing.T) {
	hub, registry, _ := newTestHub()
	a, b := &recordingSender{}, &recordingSender{err: errors.New("gone")}
	first := hub.Connect(a)
	hub.Connect(b)

	env, _ := channel.NewEnvelope("battery_capacity", 87)
	hub.DeviceHandler()(env)

	if a.count() != 1 {
		t.Errorf("Expected healthy client to receive the broadcast")
	}
	if info, _ := registry.Info("battery_capacity"); info.Direction != DirectionFromDevice || info.Count != 1 {
		t.Errorf("Unexpected registry entry: %+v", info)
	}

	hub.Disconnect(first.ID)
	if n := hub.Broadcast(env); n != 0 {
		t.Errorf("Expected no successful sends, got %d", n)
	}
	if len(hub.Clients()) != 1 {
		t.Errorf("Expected one client left, got %v", hub.Clients())
	}
}

func TestHubWithoutDevice(t *testing.T) {
	hub := NewHub(NewStreamRegistry(customlog.NewNopLogger()), nil, customlog.NewNopLogger())
	client := hub.Connect(&recordingSender{})
	if err := hub.HandleMessage(client.ID, []byte(`{"type":"cmd_vel"}`)); err == nil {
		t.Errorf("Expected error for unhandled message")
	}
}

func TestRegistryLoadFromConfig(t *testing.T) {
	registry := NewStreamRegistry(customlog.NewNopLogger())
	registry.Update("cmd_vel", DirectionToDevice, 1)
	registry.Update("battery_capacity", DirectionFromDevice, 2)

	registry.LoadFromConfig(&config.Config{Streams: []config.StreamConfig{
		{Name: "left", Type: "cmd_vel"},
		{Name: "right", Type: "pan_tilt"},
	}})

	stats := registry.Stats()
	if len(stats) != 3 {
		t.Fatalf("Expected 3 entries, got %+v", stats)
	}
	if stats[0].Type != "battery_capacity" || stats[1].Type != "cmd_vel" || stats[2].Type != "pan_tilt" {
		t.Errorf("Expected entries sorted by type, got %+v", stats)
	}
	if stats[1].Count != 1 || stats[1].Stream != "left" {
		t.Errorf("Expected cmd_vel counter kept and bound to left, got %+v", stats[1])
	}
}
