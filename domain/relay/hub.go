// Package relay is the pub/sub hub between browser or pilot clients and
// the robot device. Client envelopes are forwarded to the device; device
// envelopes are broadcast to every client.
package relay

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/pilot/pkg/channel"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// Sender writes an envelope to one client.
type Sender interface {
	Send(env channel.Envelope) error
}

// MessageHandler handles a client envelope locally. reply reaches only the
// client that sent it.
type MessageHandler func(env channel.Envelope, reply Sender)

// Client is one connected socket.
type Client struct {
	ID        uuid.UUID
	Connected time.Time
	sender    Sender
}

// Hub tracks clients and routes envelopes.
type Hub struct {
	registry *StreamRegistry
	logger   customlog.Logger

	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	handlers map[string]MessageHandler
	device   channel.Publisher
}

// NewHub creates a hub. Without a device publisher, unhandled client
// envelopes are logged and dropped.
func NewHub(registry *StreamRegistry, device channel.Publisher, logger customlog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		clients:  make(map[uuid.UUID]*Client),
		handlers: make(map[string]MessageHandler),
		device:   device,
	}
}

// RegisterHandler handles envelopes of one type in the relay instead of
// forwarding them.
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// Connect registers a client and returns it.
func (h *Hub) Connect(sender Sender) *Client {
	c := &Client{ID: uuid.New(), Connected: time.Now(), sender: sender}

	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Infof("Client %s connected (%d connected)", c.ID, n)
	return c
}

// Disconnect removes a client.
func (h *Hub) Disconnect(id uuid.UUID) {
	h.mu.Lock()
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Infof("Client %s disconnected (%d connected)", id, n)
}

// Clients returns the connected client IDs, oldest first.
func (h *Hub) Clients() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Connected.Before(clients[j].Connected) })

	ids := make([]uuid.UUID, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}
	return ids
}

// HandleMessage processes raw data received from a client. Malformed input
// is logged and dropped.
func (h *Hub) HandleMessage(id uuid.UUID, data []byte) error {
	env, err := channel.ParseEnvelope(data)
	if err != nil {
		h.logger.Warnf("Dropping message from client %s: %v", id, err)
		return err
	}
	h.registry.Update(env.Type, DirectionToDevice, time.Now().UnixNano())

	h.mu.RLock()
	handler, local := h.handlers[env.Type]
	client := h.clients[id]
	device := h.device
	h.mu.RUnlock()

	if local {
		var reply Sender = discardSender{}
		if client != nil {
			reply = client.sender
		}
		handler(env, reply)
		return nil
	}
	if device == nil {
		h.logger.Warnf("Unhandled message %q from client %s", env.Type, id)
		return fmt.Errorf("no handler for %s", env.Type)
	}
	return device.Publish(env).Err()
}

// Broadcast sends env to every client. Failed sends are logged.
func (h *Hub) Broadcast(env channel.Envelope) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if err := c.sender.Send(env); err != nil {
			h.logger.Warnf("Failed to send %s to client %s: %v", env.Type, c.ID, err)
			continue
		}
		sent++
	}
	return sent
}

// DeviceHandler counts device envelopes and broadcasts them to clients.
func (h *Hub) DeviceHandler() channel.Handler {
	return func(env channel.Envelope) {
		h.registry.Update(env.Type, DirectionFromDevice, time.Now().UnixNano())
		h.Broadcast(env)
	}
}

type discardSender struct{}

func (discardSender) Send(channel.Envelope) error { return nil }
