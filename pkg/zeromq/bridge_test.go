package zeromq

import (
	"context"
	"testing"
	"time"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// TestBridgeAndTransport exchanges envelopes between a bridge and a
// connected transport over loopback TCP.
func TestBridgeAndTransport(t *testing.T) {
	cfg := config.ZeroMQBootstrap{
		PublishAddress:   "tcp://127.0.0.1:47555",
		SubscribeAddress: "tcp://127.0.0.1:47556",
	}
	bridge, err := NewBridge(cfg, customlog.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	defer bridge.Stop()

	received := make(chan channel.Envelope, 16)
	bridge.RegisterHandler("cmd_vel", func(env channel.Envelope) { received <- env })
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}

	tr, err := Dial(cfg.SubscribeAddress, cfg.PublishAddress)(context.Background())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer tr.Close()

	cmd, _ := channel.NewEnvelope("cmd_vel", map[string]interface{}{"data": map[string]float64{"linear": 0.1}})
	battery, _ := channel.NewEnvelope("battery", map[string]float64{"percentage": 80})

	// PUB/SUB drops messages until the subscription propagates.
	deadline := time.Now().Add(5 * time.Second)
	var got channel.Envelope
	for got.Type == "" {
		if time.Now().After(deadline) {
			t.Fatalf("Bridge never received the command")
		}
		if err := tr.Send(cmd); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		select {
		case got = <-received:
		case <-time.After(100 * time.Millisecond):
		}
	}
	if string(got.Data) != string(cmd.Data) {
		t.Errorf("Expected %s, got %s", cmd.Data, got.Data)
	}

	inbound := make(chan channel.Envelope, 1)
	go func() {
		env, err := tr.Receive()
		if err == nil {
			inbound <- env
		}
	}()
	deadline = time.Now().Add(5 * time.Second)
	for {
		if err := bridge.Publish(battery).Err(); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		select {
		case env := <-inbound:
			if env.Type != "battery" {
				t.Errorf("Expected battery envelope, got %s", env.Type)
			}
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("Transport never received device telemetry")
		}
	}
}

func TestBridgePublishAfterStop(t *testing.T) {
	bridge, err := NewBridge(config.ZeroMQBootstrap{
		PublishAddress:   "tcp://127.0.0.1:47557",
		SubscribeAddress: "tcp://127.0.0.1:47558",
	}, customlog.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}
	bridge.Start()
	bridge.Stop()

	if err := bridge.Publish(channel.Envelope{Type: "cmd_vel"}).Err(); err != ErrServiceClosed {
		t.Errorf("Expected ErrServiceClosed, got %v", err)
	}
}
