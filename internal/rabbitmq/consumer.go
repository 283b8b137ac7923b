package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Consumer drains chat events from the backend's fan-out exchange. It is the
// consuming half of the same topic exchange topology the backend publishes
// to, and serves as an alternative real-time source where deployments route
// pushes through the broker instead of a direct websocket.
type Consumer struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	backlog <-chan amqp.Delivery
}

// NewConsumer binds an exclusive queue for one conversation's events.
func NewConsumer(amqpURL, exchange, conversationID string) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	routingKey := "conversations." + conversationID + ".*"
	if err := ch.QueueBind(queue.Name, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	log.Printf("rabbitmq consuming exchange=%s key=%s", exchange, routingKey)
	return &Consumer{conn: conn, ch: ch, queue: queue.Name, backlog: deliveries}, nil
}

// Events decodes deliveries onto a channel until ctx ends or the broker
// connection drops. Malformed payloads are counted and skipped.
func (c *Consumer) Events(ctx context.Context) <-chan models.ChatEvent {
	out := make(chan models.ChatEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-c.backlog:
				if !ok {
					return
				}
				var ev models.ChatEvent
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					observability.IncAMQPConsumeError()
					log.Printf("rabbitmq consume decode: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
