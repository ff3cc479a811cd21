package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

// wsTransport sends envelopes as JSON text frames.
type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket returns a Dialer for a relay pub/sub endpoint such as
// ws://rover.local:8080/pubsub.
func DialWebSocket(url string, header http.Header, handshakeTimeout time.Duration) Dialer {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		return NewWebSocketTransport(conn), nil
	}
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Receive() (Envelope, error) {
	for {
		mt, msg, err := t.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return ParseEnvelope(msg)
	}
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
