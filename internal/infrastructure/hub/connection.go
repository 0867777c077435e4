package hub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"go-message-relay/internal/infrastructure/logger"
)

const (
	DefaultWebSocketBuffer = 256
	DefaultStreamBuffer    = 100
	DefaultWriteTimeout    = 10 * time.Second
)

var (
	errClosedByPeer  = errors.New("closed by peer")
	errClosedLocally = errors.New("closed locally")
)

// SSEConnection is a push-only consumer. Payloads are queued by the bridge
// and written by the request goroutine in Run.
type SSEConnection struct {
	id     string
	writer http.ResponseWriter

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool

	queue  chan []byte
	logger logger.Logger
}

// NewSSEConnection creates a consumer bound to the request context ctx, with
// a queue of bufferSize payloads.
func NewSSEConnection(
	ctx context.Context,
	id string,
	w http.ResponseWriter,
	bufferSize int,
	log logger.Logger,
) *SSEConnection {
	if bufferSize <= 0 {
		bufferSize = DefaultStreamBuffer
	}
	rctx, cancel := context.WithCancel(ctx)

	return &SSEConnection{
		id:     id,
		writer: w,
		ctx:    rctx,
		cancel: cancel,
		queue:  make(chan []byte, bufferSize),
		logger: log.WithField("connection_id", id),
	}
}

func (c *SSEConnection) ID() string {
	return c.id
}

func (c *SSEConnection) Type() ConnectionType {
	return ConnectionTypeSSE
}

func (c *SSEConnection) TrySend(payload []byte) error {
	if c.IsClosed() || c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	select {
	case c.queue <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *SSEConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.logger.Info("SSE connection closed")
	})
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	return c.closed.Load()
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// Run writes the stream headers and a connected event, then copies queued
// payloads to the client until the request ends or the connection is closed.
func (c *SSEConnection) Run() error {
	defer c.Close()

	c.setupSSEHeaders()
	err := sse.Encode(c.writer, sse.Event{
		Event: "connected",
		Data:  c.id,
	})
	if err != nil {
		return fmt.Errorf("write connected event: %w", err)
	}
	c.flush()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case payload := <-c.queue:
			if _, err := c.writer.Write(formatSSEData(payload)); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			c.flush()
		}
	}
}

func (c *SSEConnection) setupSSEHeaders() {
	h := c.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // For nginx
	h.Set("Access-Control-Allow-Origin", "*")
}

func (c *SSEConnection) flush() {
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

// formatSSEData frames payload as one SSE event. Every line of the payload
// gets its own data field so embedded newlines survive.
func formatSSEData(payload []byte) []byte {
	var buf bytes.Buffer
	lines := bytes.Split(bytes.ReplaceAll(payload, []byte("\r\n"), []byte("\n")), []byte("\n"))
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// WebSocketOptions tunes interactive connections.
type WebSocketOptions struct {
	Clock        clockwork.Clock
	Heartbeat    HeartbeatConfig
	SendBuffer   int
	WriteTimeout time.Duration
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		Clock:        clockwork.NewRealClock(),
		Heartbeat:    DefaultHeartbeatConfig(),
		SendBuffer:   DefaultWebSocketBuffer,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// WebSocketConnection is the interactive connection. Its lifecycle runs in
// Run as three goroutines (reader, writer, heartbeat); whichever ends first
// tears the others down.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool

	logger logger.Logger

	send         chan []byte
	heartbeat    *Heartbeat
	writeTimeout time.Duration
}

func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	opts WebSocketOptions,
	log logger.Logger,
) *WebSocketConnection {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultWebSocketBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Heartbeat.Interval <= 0 || opts.Heartbeat.Window <= 0 {
		opts.Heartbeat = DefaultHeartbeatConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &WebSocketConnection{
		id:           id,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		logger:       log.WithField("connection_id", id),
		send:         make(chan []byte, opts.SendBuffer),
		heartbeat:    NewHeartbeat(opts.Clock, opts.Heartbeat),
		writeTimeout: opts.WriteTimeout,
	}

	conn.SetPingHandler(c.handlePing)
	conn.SetPongHandler(c.handlePong)
	return c
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

func (c *WebSocketConnection) Type() ConnectionType {
	return ConnectionTypeWebSocket
}

func (c *WebSocketConnection) TrySend(payload []byte) error {
	if c.IsClosed() || c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close requests shutdown. The close handshake itself runs on the
// connection's own goroutine, so Close never blocks on the network.
func (c *WebSocketConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
	})
	return nil
}

func (c *WebSocketConnection) IsClosed() bool {
	return c.closed.Load()
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) Heartbeat() *Heartbeat {
	return c.heartbeat
}

// Run serves the connection until the peer leaves, the heartbeat gives up,
// a write fails, Close is called or ctx is done. It returns nil for an
// orderly close and the cause otherwise.
func (c *WebSocketConnection) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(c.readPump)
	eg.Go(func() error { return c.writePump(gctx) })
	eg.Go(func() error { return c.heartbeat.Run(gctx, c.ping) })
	eg.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.ctx.Done():
		}
		c.Close()
		c.shutdown()
		return errClosedLocally
	})

	err := eg.Wait()
	c.heartbeat.Terminate()

	if errors.Is(err, errClosedLocally) || errors.Is(err, errClosedByPeer) {
		return nil
	}
	return err
}

// shutdown sends the close frame and releases the socket.
func (c *WebSocketConnection) shutdown() {
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	if err := c.conn.Close(); err != nil {
		c.logger.Debugf("Closing socket: %v", err)
	}
	c.logger.Info("WebSocket connection closed")
}

func (c *WebSocketConnection) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if c.IsClosed() {
					return errClosedLocally
				}
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// readPump consumes inbound frames. Every frame counts as a liveness signal;
// text frames carry no meaning for the relay and are only logged.
func (c *WebSocketConnection) readPump() error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.IsClosed() {
				return errClosedLocally
			}
			if websocket.IsCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Info("Received close message from client")
				return errClosedByPeer
			}
			return fmt.Errorf("read: %w", err)
		}

		c.heartbeat.Beat()

		switch messageType {
		case websocket.TextMessage:
			c.logger.Debugf("Ignoring text frame: %s", string(data))
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary frame of length %d", len(data))
		}
	}
}

func (c *WebSocketConnection) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *WebSocketConnection) handlePing(appData string) error {
	c.heartbeat.Beat()

	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

func (c *WebSocketConnection) handlePong(string) error {
	c.heartbeat.Beat()
	return nil
}
