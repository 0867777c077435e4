package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"go-message-relay/internal/domain"
	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/port/inbound"
	"go-message-relay/internal/port/outbound"
)

// ChatApplicationService stores messages and announces every change on the
// notification channel. It never talks to connections: delivery to clients
// happens when the announcement comes back through the bridge, so every
// relay process delivers the same stream.
type ChatApplicationService struct {
	repo     outbound.MessageRepository
	notifier outbound.Notifier
	clock    clockwork.Clock
	logger   logger.Logger

	list singleflight.Group
}

var _ inbound.ChatUseCase = (*ChatApplicationService)(nil)

func NewChatApplicationService(
	repo outbound.MessageRepository,
	notifier outbound.Notifier,
	clock clockwork.Clock,
	log logger.Logger,
) *ChatApplicationService {
	return &ChatApplicationService{
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		logger:   log.WithField("service", "chat"),
	}
}

func (s *ChatApplicationService) Publish(ctx context.Context, text, author string) (*domain.Message, error) {
	msg := domain.NewMessage(text, author, s.clock.Now().Unix())
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	id, err := s.repo.Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	msg.ID = id

	if err := s.announce(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Infof("Message %s published by %s", msg.ID, msg.Author)
	return msg, nil
}

func (s *ChatApplicationService) Edit(ctx context.Context, id, text string) (*domain.Message, error) {
	if _, err := domain.ParseMessageID(id); err != nil {
		return nil, err
	}
	if err := domain.ValidateText(text); err != nil {
		return nil, err
	}

	matched, err := s.repo.UpdateText(ctx, id, text, s.clock.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if matched == 0 {
		return nil, domain.ErrMessageNotFound
	}

	updated, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	if err := s.announce(ctx, updated); err != nil {
		return nil, err
	}

	s.logger.Infof("Message %s edited", id)
	return updated, nil
}

// List returns the stored history. Concurrent calls share one query.
func (s *ChatApplicationService) List(ctx context.Context) ([]*domain.Message, error) {
	v, err, shared := s.list.Do("all", func() (interface{}, error) {
		return s.repo.FindAll(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if shared {
		s.logger.Debug("Message history query shared between callers")
	}
	return v.([]*domain.Message), nil
}

func (s *ChatApplicationService) announce(ctx context.Context, msg *domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	if err := s.notifier.Notify(ctx, payload); err != nil {
		s.logger.Errorf("Failed to publish message %s: %v", msg.ID, err)
		return fmt.Errorf("%w: %w", domain.ErrNotification, err)
	}
	return nil
}
