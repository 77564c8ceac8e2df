package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fortuna/diamond/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

type unregisterer interface {
	Unregister(c *Client)
}

// Client is one subscriber connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan ServerMessage
	hub  unregisterer
	log  *logging.Logger

	mu    sync.RWMutex
	jobID int64

	connectedAt  time.Time
	messagesSent atomic.Int64
}

func NewClient(id string, conn *websocket.Conn, hub unregisterer, log *logging.Logger) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		send:        make(chan ServerMessage, sendBufferSize),
		hub:         hub,
		log:         log,
		connectedAt: time.Now(),
	}
}

// Wants reports whether the client's subscription covers jobID.
func (c *Client) Wants(jobID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobID == 0 || c.jobID == jobID
}

func (c *Client) Subscribe(jobID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobID = jobID
}

// TrySend queues msg without blocking and reports whether it fit.
func (c *Client) TrySend(msg ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump handles subscription messages until the peer goes away.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("unexpected close", "client_id", c.ID, "err", err)
			}
			return
		}
		c.handle(msg)
	}
}

// WritePump drains the send buffer and keeps the connection alive.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("write failed", "client_id", c.ID, "err", err)
				return
			}
			c.messagesSent.Add(1)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.Subscribe(msg.JobID)
	case MessageTypeUnsubscribe:
		c.Subscribe(0)
	case MessageTypeHeartbeat:
		c.TrySend(ServerMessage{Type: MessageTypeHeartbeat, Payload: c.Stats(), Timestamp: time.Now().UTC()})
	default:
		c.TrySend(ServerMessage{
			Type:      MessageTypeError,
			Payload:   ErrorMessage{Code: "unknown_message_type", Message: "unknown message type: " + msg.Type},
			Timestamp: time.Now().UTC(),
		})
	}
}

func (c *Client) Stats() ConnectionStats {
	c.mu.RLock()
	jobID := c.jobID
	c.mu.RUnlock()
	return ConnectionStats{
		ClientID:      c.ID,
		ConnectedAt:   c.connectedAt,
		MessagesSent:  c.messagesSent.Load(),
		JobID:         jobID,
		BufferSize:    sendBufferSize,
		BufferedCount: len(c.send),
	}
}
