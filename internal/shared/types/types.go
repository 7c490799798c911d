package types

import "time"

// ConnectionEvent 描述一个客户端连接的生命周期事件，供日志和 Hub 使用。
type ConnectionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Peer      string    `json:"peer"`
	Action    string    `json:"action"` // "connected" or "closed"
	Replies   int64     `json:"replies,omitempty"`
	BytesIn   int64     `json:"bytes_in,omitempty"`
	BytesOut  int64     `json:"bytes_out,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

const (
	ActionConnected = "connected"
	ActionClosed    = "closed"
)

// EventSink receives connection lifecycle events. Implementations must not block.
type EventSink interface {
	PublishConnectionEvent(ev *ConnectionEvent)
}
