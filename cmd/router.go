package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-message-relay/internal/infrastructure/config"
	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/infrastructure/metrics"
	"go-message-relay/internal/interfaces/rest/middleware"
	"go-message-relay/internal/interfaces/rest/v1/handler"
	"go-message-relay/internal/interfaces/sse"
	"go-message-relay/internal/interfaces/websocket"
	"go-message-relay/internal/port/inbound"
)

type routerDeps struct {
	cfg     *config.Config
	log     logger.Logger
	hub     *hub.Hub
	chat    inbound.ChatUseCase
	limiter *middleware.IPRateLimiter
	metrics *prometheus.Registry
}

func InitRouter(deps routerDeps) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": deps.hub.IsRunning(),
			"connections": deps.hub.ConnectionCount(),
			"websocket":   len(deps.hub.GetConnectionsByType(hub.ConnectionTypeWebSocket)),
			"sse":         len(deps.hub.GetConnectionsByType(hub.ConnectionTypeSSE)),
		})
	})
	rootGroup.GET("/metrics", gin.WrapH(metrics.Handler(deps.metrics)))

	handler.InitChatRouter(deps.log, deps.chat, deps.limiter, rootGroup)
	sse.InitSSERouter(deps.log, deps.hub, deps.cfg.StreamBuffer, rootGroup)
	websocket.InitWebSocketRouter(deps.log, deps.hub, hub.WebSocketOptions{
		Clock: deps.hub.Clock(),
		Heartbeat: hub.HeartbeatConfig{
			Interval: deps.cfg.HeartbeatInterval,
			Window:   deps.cfg.HeartbeatWindow,
		},
		SendBuffer:   deps.cfg.WebSocketBuffer,
		WriteTimeout: deps.cfg.WriteTimeout,
	}, rootGroup)

	return router
}
