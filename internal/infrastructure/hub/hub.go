package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/infrastructure/metrics"
)

// DispatchResult reports one notification's fan-out to both delivery methods.
type DispatchResult struct {
	WebSocket BroadcastResult
	Stream    BroadcastResult
}

// Hub owns the two registries and their relays. It has no loop of its own:
// registration and fan-out happen on the caller's goroutine, and each
// connection's lifecycle runs on the goroutine that serves it.
type Hub struct {
	interactive *Registry
	streams     *Registry

	broadcast *Relay
	forward   *Relay

	running   bool
	runningMu sync.RWMutex

	clock   clockwork.Clock
	metrics *metrics.RelayMetrics
	logger  logger.Logger
}

type Option func(*Hub)

func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// New creates a new Hub instance
func New(log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		interactive: NewRegistry(),
		streams:     NewRegistry(),
		clock:       clockwork.NewRealClock(),
		logger:      log.WithField("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewRelayMetrics(prometheus.NewRegistry())
	}

	h.broadcast = NewBroadcastRelay(h.interactive, log, h.metrics)
	h.forward = NewStreamRelay(h.streams, log, h.metrics)
	return h
}

func (h *Hub) Clock() clockwork.Clock {
	return h.clock
}

// Start starts the hub and begins accepting connections
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}
	h.running = true

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop closes every connection. Each connection's own goroutine finishes
// its close handshake.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}
	h.running = false

	for _, reg := range []*Registry{h.interactive, h.streams} {
		for _, conn := range reg.Drain() {
			if err := conn.Close(); err != nil {
				h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
			}
			h.metrics.Evictions.WithLabelValues(EvictClosed).Inc()
			h.metrics.ActiveConnections.WithLabelValues(string(conn.Type())).Dec()
		}
	}

	h.logger.Info("Hub stopped successfully")
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

func (h *Hub) registryFor(connType ConnectionType) (*Registry, error) {
	switch connType {
	case ConnectionTypeWebSocket:
		return h.interactive, nil
	case ConnectionTypeSSE:
		return h.streams, nil
	default:
		return nil, fmt.Errorf("unknown connection type %q", connType)
	}
}

// RegisterConnection makes conn visible to the next fan-out.
func (h *Hub) RegisterConnection(conn Connection) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	reg, err := h.registryFor(conn.Type())
	if err != nil {
		return err
	}
	if prev, ok := reg.Unregister(conn.ID()); ok && prev != conn {
		_ = prev.Close()
		h.metrics.ActiveConnections.WithLabelValues(string(prev.Type())).Dec()
	}
	reg.Register(conn)
	h.metrics.ActiveConnections.WithLabelValues(string(conn.Type())).Inc()

	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())
	return nil
}

// UnregisterConnection removes and closes a connection. It reports whether
// the id was registered; removing an absent id is a no-op.
func (h *Hub) UnregisterConnection(connID string) bool {
	return h.unregister(connID, EvictClosed)
}

func (h *Hub) unregister(connID, reason string) bool {
	for _, reg := range []*Registry{h.interactive, h.streams} {
		conn, ok := reg.Unregister(connID)
		if !ok {
			continue
		}
		_ = conn.Close()
		h.metrics.Evictions.WithLabelValues(reason).Inc()
		h.metrics.ActiveConnections.WithLabelValues(string(conn.Type())).Dec()
		h.logger.Infof("Connection %s unregistered (%s)", connID, reason)
		return true
	}
	return false
}

// ServeWebSocket registers conn, runs it until it ends for any reason and
// unregisters it. The returned error is the cause of an abnormal end.
func (h *Hub) ServeWebSocket(ctx context.Context, conn *WebSocketConnection) error {
	if err := h.RegisterConnection(conn); err != nil {
		_ = conn.Close()
		conn.shutdown()
		return err
	}

	err := conn.Run(ctx)

	reason := EvictClosed
	if errors.Is(err, ErrLivenessTimeout) {
		reason = EvictHeartbeatTimeout
		h.metrics.HeartbeatTimeouts.Inc()
	}
	h.unregister(conn.ID(), reason)
	return err
}

// ServeStream registers conn and streams to it until the request ends.
func (h *Hub) ServeStream(conn *SSEConnection) error {
	if err := h.RegisterConnection(conn); err != nil {
		_ = conn.Close()
		return err
	}
	defer h.unregister(conn.ID(), EvictClosed)

	return conn.Run()
}

// Broadcast fans payload out to every interactive connection.
func (h *Hub) Broadcast(payload []byte) BroadcastResult {
	h.metrics.Broadcasts.Inc()
	return h.broadcast.Broadcast(payload)
}

// Forward pushes payload onto every push-stream consumer's queue.
func (h *Hub) Forward(payload []byte) BroadcastResult {
	return h.forward.Broadcast(payload)
}

// Dispatch delivers one notification to both delivery methods.
func (h *Hub) Dispatch(payload []byte) DispatchResult {
	return DispatchResult{
		WebSocket: h.Broadcast(payload),
		Stream:    h.Forward(payload),
	}
}

// SendToConnection hands payload to a single connection.
func (h *Hub) SendToConnection(connID string, payload []byte) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return ErrConnectionNotFound
	}

	if err := conn.TrySend(payload); err != nil {
		if errors.Is(err, ErrSendBufferFull) && conn.Type() == ConnectionTypeSSE {
			h.metrics.StreamDrops.Inc()
			return err
		}
		h.logger.Errorf("Failed to send message to connection %s: %v", connID, err)
		h.unregister(connID, EvictSendFailed)
		return err
	}

	h.metrics.Deliveries.WithLabelValues(string(conn.Type())).Inc()
	return nil
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	if conn, ok := h.interactive.Get(connID); ok {
		return conn, true
	}
	return h.streams.Get(connID)
}

// GetConnections returns all active connections
func (h *Hub) GetConnections() []Connection {
	return append(h.interactive.Snapshot(), h.streams.Snapshot()...)
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType ConnectionType) []Connection {
	reg, err := h.registryFor(connType)
	if err != nil {
		return nil
	}
	return reg.Snapshot()
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	return h.interactive.Len() + h.streams.Len()
}
