package handler

import (
	"github.com/gin-gonic/gin"

	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/interfaces/rest/middleware"
	"go-message-relay/internal/port/inbound"
)

// InitChatRouter mounts the message endpoints. Writes are rate limited per
// client IP.
func InitChatRouter(logger logger.Logger, chat inbound.ChatUseCase, limiter *middleware.IPRateLimiter, rg *gin.RouterGroup) {
	chatHandler := NewChatHandler(chat, logger)
	limit := middleware.RateLimit(limiter)

	rg.POST("/publish", limit, chatHandler.Publish)
	rg.PUT("/edit/:id", limit, chatHandler.Edit)
	rg.GET("/messages", chatHandler.List)
}
