package websocket

import (
	"time"

	"github.com/fortuna/diamond/internal/backfill"
)

// Message types for WebSocket communication.
const (
	MessageTypeJobEvent    = "job_event"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeError       = "error"
)

// ClientMessage is sent from a subscriber. A subscribe message with a
// non-zero JobID narrows the stream to that job.
type ClientMessage struct {
	Type  string `json:"type"`
	JobID int64  `json:"job_id,omitempty"`
}

// ServerMessage wraps every frame sent to subscribers.
type ServerMessage struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionStats answers a heartbeat.
type ConnectionStats struct {
	ClientID      string    `json:"client_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	MessagesSent  int64     `json:"messages_sent"`
	JobID         int64     `json:"job_id,omitempty"`
	BufferSize    int       `json:"buffer_size"`
	BufferedCount int       `json:"buffered"`
}

func jobEvent(ev backfill.Event) ServerMessage {
	return ServerMessage{Type: MessageTypeJobEvent, Payload: ev, Timestamp: ev.At}
}
