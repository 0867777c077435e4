package hub

import (
	"context"
	"fmt"

	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/infrastructure/metrics"
)

// Bridge holds the process's single subscription to the notification
// channel and hands every payload to the dispatcher, in arrival order.
type Bridge struct {
	subscriber Subscriber
	channel    string
	dispatcher Dispatcher
	logger     logger.Logger
	metrics    *metrics.RelayMetrics
}

func NewBridge(
	subscriber Subscriber,
	channel string,
	dispatcher Dispatcher,
	log logger.Logger,
	m *metrics.RelayMetrics,
) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		channel:    channel,
		dispatcher: dispatcher,
		logger:     log.WithField("component", "bridge").WithField("channel", channel),
		metrics:    m,
	}
}

// Run subscribes and dispatches until ctx is done. Failing to subscribe, or
// losing the subscription afterwards, is returned as an error; the bridge
// does not resubscribe.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.subscriber.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", b.channel, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Warnf("Closing subscription: %v", err)
		}
	}()

	b.logger.Info("Subscribed to notification channel")

	payloads := sub.Payloads()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge stopped")
			return nil
		case payload, ok := <-payloads:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionLost
			}
			b.metrics.NotificationsReceived.Inc()

			res := b.dispatcher.Dispatch(payload)
			b.logger.Debugf(
				"Dispatched notification to %d/%d websocket, %d/%d stream consumers",
				res.WebSocket.Delivered, res.WebSocket.Attempted,
				res.Stream.Delivered, res.Stream.Attempted,
			)
		}
	}
}
