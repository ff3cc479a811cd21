package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/open-teleop/pilot/domain/pilot"
	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/clock"
	"github.com/open-teleop/pilot/pkg/config"
	"github.com/open-teleop/pilot/pkg/joystick"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/pkg/trace"
	"github.com/open-teleop/pilot/pkg/zeromq"
)

const (
	handshakeTimeout = 5 * time.Second
	drainTimeout     = 2 * time.Second
)

// lastReceipt remembers the most recent publish so that shutdown can wait
// for the final stop command to be written.
type lastReceipt struct {
	channel.Publisher
	mu   sync.Mutex
	last *channel.Receipt
}

func (p *lastReceipt) Publish(env channel.Envelope) *channel.Receipt {
	r := p.Publisher.Publish(env)
	p.mu.Lock()
	p.last = r
	p.mu.Unlock()
	return r
}

func (p *lastReceipt) wait(ctx context.Context) error {
	p.mu.Lock()
	r := p.last
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Wait(ctx)
}

type eventSource interface {
	pilot.EventSource
	io.Closer
}

func runDrive(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadBootstrap()
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Channel.Transport = transport
	}
	if channelURL != "" {
		cfg.Channel.URL = channelURL
	}
	if traceFile != "" {
		cfg.Trace.File = traceFile
	}

	streams, err := config.LoadConfig(cfg.StreamsConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load streams config: %w", err)
	}

	dial, err := newDialer(cfg)
	if err != nil {
		return err
	}

	source, bindings, err := openSource()
	if err != nil {
		return err
	}
	defer source.Close()

	recorder, err := trace.NewRecorder(cfg.Trace.File)
	if err != nil {
		return err
	}
	defer recorder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := channel.NewConn(dial, logger, time.Duration(cfg.Channel.ReconnectIntervalMs)*time.Millisecond)
	if err := conn.Subscribe(inboundLogger(logger)); err != nil {
		return err
	}
	// The channel outlives ctx so the final stop commands still go out.
	conn.Start(context.Background())
	defer conn.Close()

	publisher := &lastReceipt{Publisher: conn}
	controller := pilot.NewController(streams, publisher, clock.Real(), logger)
	controller.SetObserver(recorder.Observer())
	controller.Bind(bindings...)

	runErr := make(chan error, 1)
	go func() { runErr <- controller.Run(ctx, source) }()

	select {
	case err = <-runErr:
	case <-ctx.Done():
		logger.Infof("Interrupted, releasing all streams")
		source.Close()
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Leave the robot stopped whatever the input did last.
	for _, name := range controller.Streams() {
		controller.End(name, nil)
	}
	time.Sleep(longestBurst(streams))

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := publisher.wait(drainCtx); err != nil {
		logger.Warnf("Final commands not confirmed: %v", err)
	}
	if n := recorder.Errors(); n > 0 {
		logger.Warnf("%d trace records could not be written", n)
	}
	return nil
}

func newDialer(cfg *config.BootstrapConfig) (channel.Dialer, error) {
	switch cfg.Channel.Transport {
	case config.TransportZeroMQ:
		if cfg.ZeroMQ.DeviceSubscribeAddress == "" || cfg.ZeroMQ.DevicePublishAddress == "" {
			return nil, fmt.Errorf("zeromq transport needs zeromq.device_subscribe_address and zeromq.device_publish_address")
		}
		return zeromq.Dial(cfg.ZeroMQ.DeviceSubscribeAddress, cfg.ZeroMQ.DevicePublishAddress), nil
	default:
		if cfg.Channel.URL == "" {
			return nil, fmt.Errorf("websocket transport needs channel.url")
		}
		return channel.DialWebSocket(cfg.Channel.URL, nil, handshakeTimeout), nil
	}
}

// openSource returns the gesture source and the stream names it feeds.
func openSource() (eventSource, []string, error) {
	if devicePath != "" {
		dev, err := joystick.OpenDevice(devicePath)
		if err != nil {
			return nil, nil, err
		}
		names := make([]string, 0, len(joystick.DefaultSticks))
		for _, s := range joystick.DefaultSticks {
			names = append(names, s.Stream)
		}
		return joystick.NewDeviceSource(dev, joystick.NewStickTracker(joystick.DefaultSticks, deadZone)), names, nil
	}

	if inputPath == "" || inputPath == "-" {
		return decoderSource{joystick.NewEventDecoder(os.Stdin), io.NopCloser(nil)}, nil, nil
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return decoderSource{joystick.NewEventDecoder(f), f}, nil, nil
}

type decoderSource struct {
	*joystick.EventDecoder
	io.Closer
}

func inboundLogger(logger customlog.Logger) channel.Handler {
	return func(env channel.Envelope) {
		logger.Infof("Received %s: %s", env.Type, string(env.Data))
	}
}

func longestBurst(cfg *config.Config) time.Duration {
	var longest time.Duration
	for _, name := range cfg.StreamNames() {
		s, _ := cfg.Stream(name)
		if d := time.Duration(s.BurstCount) * s.BurstInterval(); d > longest {
			longest = d
		}
	}
	return longest
}
