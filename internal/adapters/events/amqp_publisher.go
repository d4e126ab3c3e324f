package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/johnthebelovedcoder/contralock/internal/contracts"
)

const (
	domainExchange    = "contralock.events"
	analyticsExchange = "contralock.analytics"
	dlqExchange       = "contralock.events.dlq"
)

// AMQPPublisher pushes event envelopes to RabbitMQ topic exchanges. The event
// type doubles as the routing key so consumers can bind per-topic queues.
type AMQPPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, exchange := range []string{domainExchange, analyticsExchange, dlqExchange} {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *AMQPPublisher) IsConnected() bool {
	return p.conn != nil && p.channel != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) PublishDomain(ctx context.Context, event contracts.EventEnvelope) error {
	return p.publish(ctx, domainExchange, event.EventType, event, nil)
}

func (p *AMQPPublisher) PublishAnalytics(ctx context.Context, event contracts.EventEnvelope) error {
	return p.publish(ctx, analyticsExchange, event.EventType, event, nil)
}

func (p *AMQPPublisher) PublishDLQ(ctx context.Context, record contracts.DLQRecord) error {
	headers := amqp091.Table{
		"x-original-error": record.ErrorSummary,
		"x-retry-count":    int32(record.RetryCount),
	}
	return p.publish(ctx, dlqExchange, record.OriginalEvent.EventType, record, headers)
}

func (p *AMQPPublisher) publish(ctx context.Context, exchange, routingKey string, payload any, headers amqp091.Table) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
