package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 64
	clientWriteWait  = 10 * time.Second
	clientPingPeriod = 30 * time.Second
)

// Client is one downstream websocket subscriber. Delivery is best-effort: a
// full send buffer drops the message rather than stalling the hub.
type Client struct {
	ID     string
	conn   *websocket.Conn
	logger *slog.Logger
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}
}

// TrySend queues a message without blocking. It reports false when the
// client is gone or lagging.
func (c *Client) TrySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close releases the client. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump is the sole writer on the connection. It drains the send queue
// and keeps the connection alive with periodic pings until Close or a write
// failure.
func (c *Client) WritePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("client write failed", "client_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
