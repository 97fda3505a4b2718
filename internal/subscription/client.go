package subscription

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/pkg/wsproto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
	sendBuffer     = 256
)

// Upgrader accepts any origin: there is no browser-origin policy in scope.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client wraps a gorilla/websocket connection as a Transport. Writes never
// block the caller: a full send buffer means the message is dropped, not
// queued behind a slow reader.
type Client struct {
	conn *websocket.Conn
	send chan wsproto.Envelope
	log  *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn for use as a registry Transport.
func NewClient(conn *websocket.Conn, log *logger.Logger) *Client {
	return &Client{conn: conn, send: make(chan wsproto.Envelope, sendBuffer), log: log}
}

// Send queues env for delivery, returning false if the client's buffer is
// full or it has already been closed.
func (c *Client) Send(env wsproto.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Close marks the client closed and stops its write pump. reason is logged
// and sent as the text of a going-away close frame.
func (c *Client) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debug("closing client transport", zap.String("reason", reason))
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
		time.Now().Add(writeWait))
}

// ReadPump reads frames from conn and hands each to handle until the
// connection closes, then calls onClose exactly once.
func (c *Client) ReadPump(handle func(raw []byte), onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				if c.log != nil {
					c.log.Debug("websocket read error", zap.Error(err))
				}
			}
			return
		}
		handle(message)
	}
}

// WritePump drains the send channel to the connection and pings on
// pingPeriod until the channel closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := env.Encode()
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
