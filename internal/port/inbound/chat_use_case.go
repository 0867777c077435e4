package inbound

import (
	"context"

	"go-message-relay/internal/domain"
)

// ChatUseCase is what the HTTP layer can ask of the chat application.
type ChatUseCase interface {
	// Publish stores a new message and announces it on the notification
	// channel.
	Publish(ctx context.Context, text, author string) (*domain.Message, error)
	// Edit replaces a message's text, refreshes its timestamp and announces
	// the updated record.
	Edit(ctx context.Context, id, text string) (*domain.Message, error)
	// List returns every stored message in insertion order.
	List(ctx context.Context) ([]*domain.Message, error)
}
