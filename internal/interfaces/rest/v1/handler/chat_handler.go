package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-message-relay/internal/domain"
	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/port/inbound"
)

type ChatHandler struct {
	chat   inbound.ChatUseCase
	logger logger.Logger
}

type PublishRequest struct {
	Text   string `json:"text" binding:"required"`
	Author string `json:"author" binding:"required"`
}

type EditRequest struct {
	Text string `json:"text" binding:"required"`
}

func NewChatHandler(chat inbound.ChatUseCase, logger logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger.WithField("handler", "chat"),
	}
}

// Publish stores a new message and announces it to every connected client.
func (h *ChatHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid publish request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	msg, err := h.chat.Publish(c.Request.Context(), req.Text, req.Author)
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, msg)
}

// Edit replaces a message's text and announces the updated record.
func (h *ChatHandler) Edit(c *gin.Context) {
	id := c.Param("id")
	if _, err := domain.ParseMessageID(id); err != nil {
		h.writeError(c, err, id)
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid edit request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	msg, err := h.chat.Edit(c.Request.Context(), id, req.Text)
	if err != nil {
		h.writeError(c, err, id)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// List returns the stored history.
func (h *ChatHandler) List(c *gin.Context) {
	msgs, err := h.chat.List(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to fetch messages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch messages",
		})
		return
	}

	if msgs == nil {
		msgs = []*domain.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) writeError(c *gin.Context, err error, id string) {
	status, text := http.StatusInternalServerError, "Internal server error"

	switch {
	case errors.Is(err, domain.ErrInvalidMessageID):
		status, text = http.StatusBadRequest, fmt.Sprintf("Invalid message ID: %s", id)
	case errors.Is(err, domain.ErrInvalidMessage):
		status, text = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrMessageNotFound):
		status, text = http.StatusNotFound, "Message not found"
	case errors.Is(err, domain.ErrStorage):
		text = "Failed to save message"
	case errors.Is(err, domain.ErrNotification):
		text = "Failed to publish message"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": text})
}
