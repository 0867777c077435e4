package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-message-relay/internal/infrastructure/logger"
)

func testChannel() string {
	return "updates:" + uuid.NewString()
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return string(p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pubsub message")
		return ""
	}
}

func TestNotifyAndSubscribe(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	channel := testChannel()

	sub, err := NewSubscriber(client).Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	notifier := NewNotifier(client, channel, NewBreakerSettings(logger.NewNopLogger()), logger.NewNopLogger())
	require.NoError(t, notifier.Notify(ctx, []byte(`{"id":"1","text":"hi"}`)))

	assert.Equal(t, `{"id":"1","text":"hi"}`, receive(t, sub.Payloads()))
}

func TestSubscribe_PreservesOrder(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	channel := testChannel()

	sub, err := NewSubscriber(client).Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	for _, p := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, client.Publish(ctx, channel, p).Err())
	}

	for _, want := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, want, receive(t, sub.Payloads()))
	}
}

func TestSubscribe_OtherChannelsIgnored(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	channel := testChannel()

	sub, err := NewSubscriber(client).Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Publish(ctx, testChannel(), "elsewhere").Err())
	require.NoError(t, client.Publish(ctx, channel, "here").Err())

	assert.Equal(t, "here", receive(t, sub.Payloads()))
}

func TestSubscription_CloseEndsPayloads(t *testing.T) {
	client := setupTestClient(t)

	sub, err := NewSubscriber(client).Subscribe(context.Background(), testChannel())
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "close is idempotent")

	select {
	case _, ok := <-sub.Payloads():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("payloads not closed")
	}
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url://")
	assert.Error(t, err)
}

func TestNotifier_BreakerOpensOnUnreachableRedis(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	notifier := NewNotifier(rdb, "updates", NewBreakerSettings(logger.NewNopLogger()), logger.NewNopLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, notifier.Notify(ctx, []byte("x")))
	}
	assert.Equal(t, gobreaker.StateOpen, notifier.State())

	err := notifier.Notify(ctx, []byte("x"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
