package pubsub

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"go-message-relay/internal/infrastructure/hub"
)

// Subscriber opens Redis Pub/Sub subscriptions for the bridge.
type Subscriber struct {
	rdb *goredis.Client
}

func NewSubscriber(rdb *goredis.Client) *Subscriber {
	return &Subscriber{rdb: rdb}
}

// Subscribe subscribes to channel and waits for Redis to confirm, so a
// failure surfaces here rather than as a silent empty stream.
func (s *Subscriber) Subscribe(ctx context.Context, channel string) (hub.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	sub := &subscription{
		ps:       ps,
		payloads: make(chan []byte),
		done:     make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	ps       *goredis.PubSub
	payloads chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// pump copies message payloads in order. The output closes when the
// underlying Redis channel does.
func (s *subscription) pump() {
	defer close(s.payloads)

	msgCh := s.ps.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case s.payloads <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Payloads() <-chan []byte {
	return s.payloads
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
