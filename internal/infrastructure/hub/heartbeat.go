package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatWindow   = 30 * time.Second
)

// LivenessState is where a heartbeated connection stands.
type LivenessState int

const (
	LivenessAlive LivenessState = iota
	LivenessClosing
	LivenessTerminated
)

func (s LivenessState) String() string {
	switch s {
	case LivenessAlive:
		return "alive"
	case LivenessClosing:
		return "closing"
	case LivenessTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("liveness(%d)", int(s))
	}
}

type HeartbeatConfig struct {
	// Interval is the probe cadence.
	Interval time.Duration
	// Window is the longest silence tolerated before the connection is
	// presumed dead.
	Window time.Duration
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: DefaultHeartbeatInterval,
		Window:   DefaultHeartbeatWindow,
	}
}

// Heartbeat tracks the liveness of one interactive connection.
//
// Every Interval it checks how long the peer has been silent. Up to Window
// it pings; past Window it gives up. A dead peer is therefore detected after
// more than Window and at most Window+Interval of silence.
type Heartbeat struct {
	clock  clockwork.Clock
	config HeartbeatConfig

	mu       sync.Mutex
	lastSeen time.Time
	state    LivenessState
}

func NewHeartbeat(clock clockwork.Clock, config HeartbeatConfig) *Heartbeat {
	return &Heartbeat{
		clock:    clock,
		config:   config,
		lastSeen: clock.Now(),
	}
}

// Beat records a liveness signal from the peer.
func (h *Heartbeat) Beat() {
	h.mu.Lock()
	if h.state == LivenessAlive {
		h.lastSeen = h.clock.Now()
	}
	h.mu.Unlock()
}

func (h *Heartbeat) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

func (h *Heartbeat) State() LivenessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Terminate marks the close handshake as done.
func (h *Heartbeat) Terminate() {
	h.mu.Lock()
	h.state = LivenessTerminated
	h.mu.Unlock()
}

// check moves Alive to Closing once the window is exceeded.
func (h *Heartbeat) check() LivenessState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == LivenessAlive && h.clock.Since(h.lastSeen) > h.config.Window {
		h.state = LivenessClosing
	}
	return h.state
}

// Run drives the monitor until ctx is done, the window elapses or a probe
// fails. probe is called on every tick while the peer is considered alive.
func (h *Heartbeat) Run(ctx context.Context, probe func() error) error {
	ticker := h.clock.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if h.check() != LivenessAlive {
				return ErrLivenessTimeout
			}
			if err := probe(); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
