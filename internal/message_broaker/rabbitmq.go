package message_broaker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queueName  string
	exchange   string
	routingKey string
}

// NewRabbitMQ dials url and declares a durable direct exchange with one queue bound to
// routingKey.
func NewRabbitMQ(url, exchange, queue, routingKey string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		queueName:  queue,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// Publish sends message with topic as routing key; an empty topic uses the bound routing key.
func (r *RabbitMQ) Publish(ctx context.Context, topic string, message []byte) error {
	key := topic
	if key == "" {
		key = r.routingKey
	}
	return r.channel.PublishWithContext(ctx,
		r.exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

// Consume reads the declared queue. A topic other than the routing key is bound to the queue
// first, so messages published with it are delivered too.
func (r *RabbitMQ) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	if topic != "" && topic != r.routingKey {
		if err := r.channel.QueueBind(r.queueName, topic, r.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", r.queueName, topic, err)
		}
	}
	msgs, err := r.channel.Consume(r.queueName, "", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 100)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
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

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}

var _ MessageBroker = (*RabbitMQ)(nil)
