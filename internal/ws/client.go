package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-groupchat/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	// Outbound frames queued per connection before it is dropped as slow
	sendBufferSize = 256
)

// Client is one authenticated websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	identity models.Identity

	// Joined group ids, guarded by hub.mu
	rooms map[string]struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, identity models.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		id:       uuid.NewString(),
		identity: identity,
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() models.Identity { return c.identity }

// ReadPump pumps frames from the websocket to the event handlers. Frames of
// one connection are handled in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("[CLIENT] Unexpected close", "user", c.identity.UserID, "conn", c.id, "error", err)
			}
			break
		}

		c.handleFrame(message)
	}
}

// WritePump pumps queued frames from the hub to the websocket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Error("[CLIENT] Failed to get writer", "user", c.identity.UserID, "conn", c.id, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				slog.Error("[CLIENT] Failed to close writer", "user", c.identity.UserID, "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[CLIENT] Failed to send ping", "user", c.identity.UserID, "conn", c.id, "error", err)
				return
			}
		}
	}
}

// trySend queues payload without blocking. A connection whose buffer is full
// is closed; its read pump then runs the disconnect cleanup.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		slog.Warn("[CLIENT] Send buffer full, dropping connection", "user", c.identity.UserID, "conn", c.id)
		c.hub.metrics.slowConsumer()
		if c.conn != nil {
			c.conn.Close()
		}
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) emit(event string, data interface{}) bool {
	payload, err := encodeFrame(event, nil, data)
	if err != nil {
		slog.Error("[CLIENT] Failed to encode frame", "event", event, "user", c.identity.UserID, "conn", c.id, "error", err)
		return false
	}
	return c.trySend(payload)
}

func (c *Client) ack(id uint64, ack *models.Ack) bool {
	payload, err := encodeFrame(models.EventAck, &id, ack)
	if err != nil {
		slog.Error("[CLIENT] Failed to encode ack", "ackId", id, "user", c.identity.UserID, "conn", c.id, "error", err)
		return false
	}
	return c.trySend(payload)
}

func encodeFrame(event string, ackID *uint64, data interface{}) ([]byte, error) {
	return json.Marshal(models.OutboundFrame{Event: event, AckID: ackID, Data: data})
}
