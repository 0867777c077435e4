package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *hub.Hub
	options  hub.WebSocketOptions
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(hubInstance *hub.Hub, options hub.WebSocketOptions, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hubInstance,
		options: options,
		logger:  logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect upgrades the request and serves the connection until it ends.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	connID := "ws-" + uuid.NewString()
	wsConn := hub.NewWebSocketConnection(connID, conn, h.options, h.logger)

	h.logger.Infof("WebSocket connection %s opened", connID)
	if err := h.hub.ServeWebSocket(c.Request.Context(), wsConn); err != nil {
		h.logger.Warnf("WebSocket connection %s ended: %v", connID, err)
		return
	}
	h.logger.Infof("WebSocket connection %s closed", connID)
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.ConnectionTypeWebSocket)
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":     conn.ID(),
			"type":   conn.Type(),
			"closed": conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
