package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPublisherSubscriber(t *testing.T) {
	mr, client := setupTestRedis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Event, 1)
	subscriber := NewSubscriber(client, zerolog.Nop())
	go func() {
		_ = subscriber.Subscribe(ctx, func(ev *Event) { received <- ev })
	}()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	publisher := NewPublisher(client)
	err := publisher.Publish(ctx, EventQuotaUpdated, 42, map[string]int{"questions_remaining": 3})
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, EventQuotaUpdated, ev.Type)
		assert.Equal(t, int64(42), ev.UserID)

		var data map[string]int
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, 3, data["questions_remaining"])
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscriber_SkipsMalformedPayload(t *testing.T) {
	mr, client := setupTestRedis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Event, 2)
	go func() {
		_ = NewSubscriber(client, zerolog.Nop()).Subscribe(ctx, func(ev *Event) { received <- ev })
	}()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mr.Publish(ChannelUserEvents, "not-json")
	require.NoError(t, NewPublisher(client).Publish(ctx, EventPaymentUpdated, 7, nil))

	select {
	case ev := <-received:
		assert.Equal(t, EventPaymentUpdated, ev.Type)
		assert.Empty(t, ev.Data)
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestPublisher_Nil(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), EventQuotaUpdated, 1, nil))
}

func TestEvent_JSON(t *testing.T) {
	data, err := json.Marshal(&Event{Type: EventQuotaUpdated, UserID: 1})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "user_id")
	assert.NotContains(t, raw, "data")
}
