package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/atlasworks/payflow/app/models"
	"github.com/atlasworks/payflow/internal/pkg/env"
	"github.com/streadway/amqp"
)

// PaymentEvent is the message published when a payment record reaches paid.
// Downstream order fulfillment consumes it; the publisher is invoked at most
// once per record because the status transition gates it.
type PaymentEvent struct {
	OrderID     uint      `json:"order_id"`
	PaymentUUID string    `json:"payment_uuid"`
	PaymentID   string    `json:"payment_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits payment events to a RabbitMQ topic exchange.
type Publisher struct {
	url      string
	exchange string

	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
}

func NewPublisher(url, exchange string) *Publisher {
	return &Publisher{url: url, exchange: exchange}
}

// NewPublisherFromEnv configures the publisher from AMQP_URL and
// AMQP_EXCHANGE. Returns nil when AMQP_URL is unset so callers can skip
// fulfillment signaling entirely.
func NewPublisherFromEnv() *Publisher {
	url := env.GetEnv("AMQP_URL", "")
	if url == "" {
		return nil
	}
	return NewPublisher(url, env.GetEnv("AMQP_EXCHANGE", "payflow.events"))
}

func (p *Publisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && p.connection != nil && !p.connection.IsClosed() {
		return p.channel, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel open failed: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare failed: %w", err)
	}

	p.connection = conn
	p.channel = ch
	return ch, nil
}

// PaymentSucceeded publishes a persistent paid event keyed by provider.
func (p *Publisher) PaymentSucceeded(ctx context.Context, record *models.PaymentRecord) error {
	_ = ctx
	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	event := PaymentEvent{
		OrderID:     record.OrderID,
		PaymentUUID: record.UUID,
		PaymentID:   record.PaymentID,
		Amount:      record.Amount.String(),
		Currency:    record.Currency,
		Status:      record.Status,
		OccurredAt:  time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization failed: %w", err)
	}

	routingKey := fmt.Sprintf("payments.%s.paid", record.Provider)
	err = ch.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    record.UUID,
			Timestamp:    event.OccurredAt,
			Headers: amqp.Table{
				"order_id":   fmt.Sprintf("%d", record.OrderID),
				"payment_id": record.PaymentID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish failed: %w", err)
	}

	log.Printf("fulfillment event published: %s order_id=%d payment_id=%s", routingKey, record.OrderID, record.PaymentID)
	return nil
}

// Close tears down the AMQP connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var closeErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			closeErr = err
		}
		p.channel = nil
	}
	if p.connection != nil {
		if err := p.connection.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		p.connection = nil
	}
	return closeErr
}
