package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
)

// BrokerNotifier publishes events as JSON on a message broker topic.
type BrokerNotifier struct {
	broker message_broaker.MessageBroker
	topic  string
}

func NewBrokerNotifier(broker message_broaker.MessageBroker, topic string) *BrokerNotifier {
	return &BrokerNotifier{broker: broker, topic: topic}
}

func (n *BrokerNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal task event: %w", err)
	}
	if err := n.broker.Publish(ctx, n.topic, payload); err != nil {
		return fmt.Errorf("publish task event: %w", err)
	}
	return nil
}

// Close closes the underlying broker.
func (n *BrokerNotifier) Close() error {
	return n.broker.Close()
}

// Subscribe decodes the events a BrokerNotifier publishes on topic. Messages that do not decode
// are logged and skipped. The channel is closed when ctx is done or the broker stops delivering.
func Subscribe(ctx context.Context, broker message_broaker.MessageBroker, topic string, logger *slog.Logger) (<-chan Event, error) {
	msgs, err := broker.Consume(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to task events: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range msgs {
			var event Event
			if err := json.Unmarshal(msg, &event); err != nil {
				logger.Warn("skipping malformed task event", slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
