package hub

import (
	"errors"

	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/infrastructure/metrics"
)

// Eviction reasons, as reported in metrics.
const (
	EvictSendFailed       = "send_failed"
	EvictHeartbeatTimeout = "heartbeat_timeout"
	EvictClosed           = "closed"
)

// BroadcastResult reports what one fan-out did.
type BroadcastResult struct {
	Attempted int
	Delivered int
	// Dropped counts payloads skipped for slow consumers that were kept.
	Dropped int
	// Evicted lists the ids removed from the registry.
	Evicted []string
}

// Relay fans one payload out to every connection of a registry.
//
// Sends never block: a connection either accepts the payload into its own
// bounded buffer or the attempt fails. Failed connections are removed after
// the pass, outside the registry lock. With evictSlow a full buffer counts as
// a failure (interactive connections); without it the payload is dropped for
// that consumer only and the consumer stays (push streams).
type Relay struct {
	registry  *Registry
	connType  ConnectionType
	evictSlow bool
	logger    logger.Logger
	metrics   *metrics.RelayMetrics
}

// NewBroadcastRelay returns the relay for interactive connections: any
// failed send evicts.
func NewBroadcastRelay(registry *Registry, log logger.Logger, m *metrics.RelayMetrics) *Relay {
	return &Relay{
		registry:  registry,
		connType:  ConnectionTypeWebSocket,
		evictSlow: true,
		logger:    log.WithField("component", "broadcast_relay"),
		metrics:   m,
	}
}

// NewStreamRelay returns the relay for push-stream consumers: a full queue
// drops the payload, a closed consumer is evicted.
func NewStreamRelay(registry *Registry, log logger.Logger, m *metrics.RelayMetrics) *Relay {
	return &Relay{
		registry: registry,
		connType: ConnectionTypeSSE,
		logger:   log.WithField("component", "stream_relay"),
		metrics:  m,
	}
}

// Broadcast delivers payload at most once to each connection registered at
// the time of the call. It never fails; delivery failures become evictions.
func (r *Relay) Broadcast(payload []byte) BroadcastResult {
	conns := r.registry.Snapshot()
	result := BroadcastResult{Attempted: len(conns)}

	var failed []Connection
	for _, conn := range conns {
		err := conn.TrySend(payload)
		switch {
		case err == nil:
			result.Delivered++
		case errors.Is(err, ErrSendBufferFull) && !r.evictSlow:
			result.Dropped++
			r.metrics.StreamDrops.Inc()
			r.logger.Warnf("Dropped payload for slow consumer %s", conn.ID())
		default:
			r.logger.Debugf("Send to %s failed: %v", conn.ID(), err)
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		if _, ok := r.registry.Unregister(conn.ID()); !ok {
			continue
		}
		_ = conn.Close()
		result.Evicted = append(result.Evicted, conn.ID())
		r.metrics.Evictions.WithLabelValues(EvictSendFailed).Inc()
		r.metrics.ActiveConnections.WithLabelValues(string(r.connType)).Dec()
		r.logger.Infof("Evicted connection %s after failed send", conn.ID())
	}

	r.metrics.Deliveries.WithLabelValues(string(r.connType)).Add(float64(result.Delivered))
	return result
}
