package api

import (
	"errors"
	"sync"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pilot/domain/relay"
	"github.com/open-teleop/pilot/pkg/channel"
	customlog "github.com/open-teleop/pilot/pkg/log"
)

// wsSender serializes writes to one socket; broadcasts and replies may run
// concurrently.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(env channel.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// requireUpgrade rejects plain HTTP requests on a WebSocket route.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// PubSubWebSocketHandler serves one /pubsub client: every text message is
// an envelope handed to the hub, and the hub's broadcasts are written back.
func PubSubWebSocketHandler(conn *websocket.Conn, hub *relay.Hub, logger customlog.Logger) {
	client := hub.Connect(&wsSender{conn: conn})
	defer hub.Disconnect(client.ID)

	log := logger.WithField("client", client.ID.String())
	log.Infof("PubSub WebSocket connected: %s", conn.RemoteAddr())

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("PubSub WS read error: %v", err)
			} else if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
				log.Infof("PubSub WS connection reset")
			} else {
				log.Infof("PubSub WS connection closed: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			log.Debugf("Ignoring non-text PubSub WS message type: %d", mt)
			continue
		}
		if err := hub.HandleMessage(client.ID, msg); err != nil {
			log.Debugf("Message not delivered: %v", err)
		}
	}
}

// RegisterPubSubRoutes mounts the /pubsub WebSocket endpoint.
func RegisterPubSubRoutes(app *fiber.App, hub *relay.Hub, logger customlog.Logger) {
	app.Use("/pubsub", requireUpgrade)
	app.Get("/pubsub", websocket.New(func(conn *websocket.Conn) {
		PubSubWebSocketHandler(conn, hub, logger)
	}))
	logger.Infof("Registered PubSub WebSocket endpoint at /pubsub")
}
