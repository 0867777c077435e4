package hub

import (
	"context"
	"errors"
)

// ConnectionType tells the two delivery methods apart.
type ConnectionType string

const (
	// ConnectionTypeWebSocket is the interactive variant: bidirectional,
	// heartbeated, discoverable in the session registry.
	ConnectionTypeWebSocket ConnectionType = "websocket"
	// ConnectionTypeSSE is the push-only variant: one-way, no heartbeat,
	// reaped when its producing task exits.
	ConnectionTypeSSE ConnectionType = "sse"
)

var (
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrLivenessTimeout    = errors.New("liveness window elapsed")
	ErrSubscriptionLost   = errors.New("notification subscription lost")
)

// Connection represents any live client endpoint (SSE, WebSocket).
type Connection interface {
	ID() string
	Type() ConnectionType
	// TrySend hands payload to the connection without blocking. A non-nil
	// error means the payload was not accepted: ErrConnectionClosed when the
	// endpoint is gone, ErrSendBufferFull when it cannot keep up.
	TrySend(payload []byte) error
	Close() error
	IsClosed() bool
	// Context is cancelled once the connection is closed.
	Context() context.Context
}

// Subscription is a standing subscription to the notification channel.
// Payloads is closed when the subscription is lost; it is never restarted.
type Subscription interface {
	Payloads() <-chan []byte
	Close() error
}

// Subscriber opens subscriptions on the notification channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Dispatcher receives every payload taken off the notification channel.
type Dispatcher interface {
	Dispatch(payload []byte) DispatchResult
}
