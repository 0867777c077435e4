package pubsub

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"go-message-relay/internal/infrastructure/logger"
)

// Notifier publishes payloads on the notification channel. Publishes go
// through a circuit breaker so a dead Redis fails requests fast instead of
// stacking them up behind dial timeouts.
type Notifier struct {
	rdb     *goredis.Client
	channel string
	cb      *gobreaker.CircuitBreaker
	logger  logger.Logger
}

// NewBreakerSettings trips after at least 5 publishes in a 10s window of which
// 60% failed, and probes again after 30s.
func NewBreakerSettings(log logger.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
}

func NewNotifier(rdb *goredis.Client, channel string, settings gobreaker.Settings, log logger.Logger) *Notifier {
	return &Notifier{
		rdb:     rdb,
		channel: channel,
		cb:      gobreaker.NewCircuitBreaker(settings),
		logger:  log.WithField("component", "notifier"),
	}
}

// Notify publishes payload on the notification channel.
func (n *Notifier) Notify(ctx context.Context, payload []byte) error {
	res, err := n.cb.Execute(func() (interface{}, error) {
		return n.rdb.Publish(ctx, n.channel, payload).Result()
	})
	if err != nil {
		return fmt.Errorf("publish to %q: %w", n.channel, err)
	}

	receivers := res.(int64)
	n.logger.Debugf("Published %d bytes to %d subscribers", len(payload), receivers)
	return nil
}

func (n *Notifier) State() gobreaker.State {
	return n.cb.State()
}
