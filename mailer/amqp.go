package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig names the broker and queue the delivery worker consumes.
type AMQPConfig struct {
	URL   string
	Queue string
}

// alertMessage is the wire format consumed by the delivery worker.
type alertMessage struct {
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AMQP publishes alerts to a durable queue instead of delivering them
// inline. Use this when mail delivery must survive process restarts.
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQP dials the broker and declares the queue.
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("mailer: amqp url and queue required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("mailer: amqp dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mailer: amqp channel: %w", err)
	}

	_, err = channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("mailer: queue declare: %w", err)
	}

	return &AMQP{conn: conn, channel: channel, queue: cfg.Queue}, nil
}

// SendSecurityAlert enqueues one message for the delivery worker.
func (m *AMQP) SendSecurityAlert(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(alertMessage{
		To:         to,
		Subject:    subject,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = m.channel.PublishWithContext(ctx, "", m.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("mailer: publish: %w", err)
	}
	return nil
}

// Close shuts the channel and connection down.
func (m *AMQP) Close() error {
	if err := m.channel.Close(); err != nil {
		_ = m.conn.Close()
		return err
	}
	return m.conn.Close()
}
