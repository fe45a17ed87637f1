package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	ChannelUserEvents = "hh:user_events"
)

// 事件类型
const (
	EventQuotaUpdated   = "quota_updated"
	EventPaymentUpdated = "payment_updated"
)

// Event 推送给指定用户的事件
type Event struct {
	Type   string          `json:"type"`
	UserID int64           `json:"user_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelUserEvents}
}

// Publish 发布用户事件，data 会被序列化为 JSON
func (p *Publisher) Publish(ctx context.Context, eventType string, userID int64, data interface{}) error {
	if p == nil || p.client == nil {
		return nil
	}

	ev := Event{Type: eventType, UserID: userID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		ev.Data = raw
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client, logger zerolog.Logger) *Subscriber {
	return &Subscriber{client: client, channel: ChannelUserEvents, logger: logger}
}

// Subscribe 订阅用户事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*Event)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// 等待订阅确认，保证返回前已生效
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn().Err(err).Msg("dropping malformed user event")
				continue
			}
			handler(&ev)
		}
	}
}
