package sse

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
)

type ServerSentEventHandler struct {
	hub        *hub.Hub
	bufferSize int
	logger     logger.Logger
}

func NewServerSentEventHandler(hubInstance *hub.Hub, bufferSize int, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:        hubInstance,
		bufferSize: bufferSize,
		logger:     logger.WithField("handler", "sse"),
	}
}

// Connect opens an event stream and forwards every notification until the
// client goes away.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	connID := "sse-" + uuid.NewString()
	conn := hub.NewSSEConnection(c.Request.Context(), connID, c.Writer, h.bufferSize, h.logger)

	h.logger.Infof("SSE connection %s opened", connID)
	err := h.hub.ServeStream(conn)
	switch {
	case errors.Is(err, hub.ErrHubNotRunning):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
	case err != nil:
		h.logger.Warnf("SSE connection %s ended: %v", connID, err)
	default:
		h.logger.Infof("SSE connection %s closed", connID)
	}
}

// SendMessage sends a payload to a specific client (for testing/admin purposes)
func (h *ServerSentEventHandler) SendMessage(c *gin.Context) {
	clientID := c.Param("clientId")

	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	err := h.hub.SendToConnection(clientID, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":    "sent",
			"client_id": clientID,
		})
	case errors.Is(err, hub.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Client not found",
		})
	case errors.Is(err, hub.ErrSendBufferFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Client is not keeping up",
		})
	default:
		h.logger.Errorf("Failed to send message to client %s: %v", clientID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to send message",
		})
	}
}

// GetConnections returns information about connected stream consumers
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.ConnectionTypeSSE)
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
