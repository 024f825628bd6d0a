package message_broaker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis publishes over Redis pub/sub. Delivery is fire-and-forget: subscribers that are not
// connected miss messages.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client; every topic is namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) channel(topic string) string {
	if r.prefix == "" {
		return topic
	}
	return r.prefix + ":" + topic
}

func (r *Redis) Publish(ctx context.Context, topic string, message []byte) error {
	if err := r.client.Publish(ctx, r.channel(topic), message).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel(topic), err)
	}
	return nil
}

func (r *Redis) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	sub := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", r.channel(topic), err)
	}

	out := make(chan []byte, 100)
	msgs := sub.Channel()

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ MessageBroker = (*Redis)(nil)
