package websocket

import (
	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, options hub.WebSocketOptions, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(hubInstance, options, logger)

	rg.GET("/ws", wsHandler.Connect)

	// Connection info only; delivery goes through the notification channel.
	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
