// Package zeromq links the relay to robot devices over ZeroMQ PUB/SUB.
// Every message is two parts: the topic (the envelope type) and a
// FlatBuffers frame carrying the JSON envelope.
package zeromq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/config"
	customlog "github.com/open-teleop/pilot/pkg/log"
	"github.com/open-teleop/pilot/pkg/wire"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq bridge is closed")
	ErrUnknownMessageType = errors.New("unknown message type")
)

const socketTimeout = 1 * time.Second

// MessageSender publishes envelopes on a bound PUB socket.
type MessageSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)
	return &MessageSender{socket: socket, logger: logger, running: true}, nil
}

// Send writes one envelope.
func (s *MessageSender) Send(env channel.Envelope) error {
	topic, frame, err := encodeMessage(env, wire.ContentTypeJSONCommand, time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrServiceClosed
	}
	if _, err := s.socket.SendMessage(topic, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Type, err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// MessageDispatcher routes inbound envelopes to handlers by type.
type MessageDispatcher struct {
	handlers map[string]channel.Handler
	fallback channel.Handler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]channel.Handler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific envelope type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler channel.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// SetFallback sets the handler for types without a registered handler.
func (d *MessageDispatcher) SetFallback(handler channel.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = handler
}

// Dispatch delivers env to its handler, or to the fallback.
func (d *MessageDispatcher) Dispatch(env channel.Envelope) error {
	d.mu.RLock()
	handler, exists := d.handlers[env.Type]
	if !exists {
		handler = d.fallback
	}
	d.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, env.Type)
	}
	handler(env)
	return nil
}

// Bridge coordinates the device link: commands go out on the PUB socket,
// telemetry comes in on the SUB socket and is dispatched by type.
type Bridge struct {
	config     config.ZeroMQBootstrap
	ctx        *zmq4.Context
	sender     *MessageSender
	listener   *Listener
	dispatcher *MessageDispatcher
	logger     customlog.Logger

	mu      sync.Mutex
	running bool
}

// NewBridge binds the bridge sockets.
func NewBridge(cfg config.ZeroMQBootstrap, logger customlog.Logger) (*Bridge, error) {
	if cfg.PublishAddress == "" || cfg.SubscribeAddress == "" {
		return nil, fmt.Errorf("zeromq publish_address and subscribe_address are required")
	}

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	logger = logger.WithField("component", "zeromq")
	dispatcher := NewMessageDispatcher(logger)

	sender, err := newMessageSender(ctx, cfg.PublishAddress, logger)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	listener, err := NewListener(ctx, cfg.SubscribeAddress, dispatcher, logger)
	if err != nil {
		sender.Close()
		ctx.Term()
		return nil, err
	}

	return &Bridge{
		config:     cfg,
		ctx:        ctx,
		sender:     sender,
		listener:   listener,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// RegisterHandler adds a handler for inbound envelopes of one type.
func (b *Bridge) RegisterHandler(messageType string, handler channel.Handler) {
	b.dispatcher.RegisterHandler(messageType, handler)
}

// SetFallbackHandler receives inbound envelopes of every other type.
func (b *Bridge) SetFallbackHandler(handler channel.Handler) {
	b.dispatcher.SetFallback(handler)
}

// Start begins receiving from devices.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	if b.ctx == nil {
		return ErrServiceClosed
	}

	b.running = true
	b.logger.Infof("Starting ZeroMQ bridge")
	b.listener.Start()
	return nil
}

// Stop closes the sockets and the context. The bridge cannot be restarted.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return
	}

	b.logger.Infof("Stopping ZeroMQ bridge")
	b.running = false
	b.listener.Stop()
	b.sender.Close()

	b.ctx.Term()
	b.ctx = nil
	b.logger.Infof("ZeroMQ bridge stopped")
}

// Publish sends an envelope to devices. The write happens synchronously,
// so the returned receipt is already complete.
func (b *Bridge) Publish(env channel.Envelope) *channel.Receipt {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return channel.Completed(ErrServiceClosed)
	}

	err := b.sender.Send(env)
	if err != nil {
		b.logger.Warnf("Failed to publish %s: %v", env.Type, err)
	}
	return channel.Completed(err)
}

// PublishJSON wraps data in an envelope of the given type and publishes it.
func (b *Bridge) PublishJSON(messageType string, data interface{}) error {
	env, err := channel.NewEnvelope(messageType, data)
	if err != nil {
		return err
	}
	return b.Publish(env).Err()
}

