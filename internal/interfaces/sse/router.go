package sse

import (
	"github.com/gin-gonic/gin"

	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, bufferSize int, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, bufferSize, logger)

	rg.GET("/events", sseHandler.Connect)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
	apiGroup.POST("/send/:clientId", sseHandler.SendMessage)
}
