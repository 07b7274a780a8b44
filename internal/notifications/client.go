package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"giftpool/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Frames a browser may send. Anything else is ignored.
const (
	framePing = "ping"
	framePong = "pong"
)

var (
	droppedFrame = mustFrame(Event{Type: "messages_dropped", Severity: SeverityWarning, Payload: map[string]string{"reason": "buffer_full"}})
	pongFrame    = mustFrame(Event{Type: framePong})
)

func mustFrame(e Event) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return b
}

// Client is one notification socket. Outbound frames queue on Send; the hub closes
// Send to end the connection.
type Client struct {
	UserID string
	Send   chan []byte

	hub  *Hub
	conn *websocket.Conn
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		conn:   conn,
	}
}

// Serve greets the peer and pumps frames until either side hangs up. It blocks and
// unregisters the client on return.
func (c *Client) Serve() {
	c.TrySend(mustFrame(Event{Type: EventConnected}))
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.alive()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("notification socket closed unexpectedly", "user_id", c.UserID, "err", err)
			}
			return
		}
		c.alive()
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &frame) != nil {
		return
	}
	if frame.Type == framePing {
		c.TrySend(pongFrame)
	}
}

func (c *Client) alive() {
	c.hub.presence.Seen(context.Background(), c.UserID)
}

func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		var err error
		select {
		case frame, open := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			err = c.conn.WriteMessage(websocket.TextMessage, frame)
		case <-keepalive.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// TrySend queues frame without blocking. A full queue drops the frame and, space
// permitting, tells the peer to refetch. Sends after shutdown are discarded.
func (c *Client) TrySend(frame []byte) {
	defer func() {
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("notifications", "closed").Inc()
		}
	}()

	select {
	case c.Send <- frame:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues("notifications", "full").Inc()
	slog.Warn("notification queue full, dropping frame", "user_id", c.UserID)
	select {
	case c.Send <- droppedFrame:
	default:
	}
}
