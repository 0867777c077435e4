package outbound

import (
	"context"

	"go-message-relay/internal/domain"
)

// MessageRepository is the durable message store.
type MessageRepository interface {
	// Insert stores msg and returns the id it was assigned.
	Insert(ctx context.Context, msg *domain.Message) (string, error)
	// UpdateText sets text and timestamp on id and returns how many records
	// matched.
	UpdateText(ctx context.Context, id, text string, timestamp int64) (int64, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	FindAll(ctx context.Context) ([]*domain.Message, error)
}

// Notifier publishes payloads on the shared notification channel.
type Notifier interface {
	Notify(ctx context.Context, payload []byte) error
}
