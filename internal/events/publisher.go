// Package events publishes project lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	ProjectCreated          = "project.created"
	ProjectPaid             = "project.paid"
	ProjectCompleted        = "project.completed"
	ProjectGenerationFailed = "project.generation_failed"
)

type Publisher interface {
	PublishProjectEvent(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishProjectEvent(context.Context, uuid.UUID, string, map[string]interface{}) error {
	return nil
}

// AMQPPublisher sends events to a topic exchange, routed by event name.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishProjectEvent(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error {
	body, err := json.Marshal(envelope(projectID, event, payload))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Publish sends an event and only logs a failure. Lifecycle notifications
// never change the outcome of the operation that produced them.
func Publish(ctx context.Context, p Publisher, log logrus.FieldLogger, projectID uuid.UUID, event string, payload map[string]interface{}) {
	if p == nil {
		return
	}
	if err := p.PublishProjectEvent(ctx, projectID, event, payload); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"project_id": projectID,
			"event":      event,
		}).Warn("failed to publish event")
	}
}

func envelope(projectID uuid.UUID, event string, payload map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"channel":    fmt.Sprintf("project:%s", projectID.String()),
		"event":      event,
		"payload":    payload,
		"emitted_at": time.Now().UTC().Format(time.RFC3339),
	}
}
