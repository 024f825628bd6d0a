package message_broaker

import "context"

// MessageBroker carries task events to other processes. A topic is a routing key for RabbitMQ
// and a channel name for Redis.
type MessageBroker interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
