package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/queue"
)

// Auditor records auth events.  Implementations must not block the request.
type Auditor interface {
	Record(ctx context.Context, ev queue.AuthEvent)
}

// NopAuditor drops every event.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, queue.AuthEvent) {}

// AuditPublisher publishes auth events to the auth.events queue.  Each
// publish dials its own connection, so a broker outage only costs the events
// sent while it lasts.
type AuditPublisher struct {
	URL     string
	Log     zerolog.Logger
	Timeout time.Duration
}

func NewAuditPublisher(url string, log zerolog.Logger) *AuditPublisher {
	return &AuditPublisher{URL: url, Log: log, Timeout: 3 * time.Second}
}

// Record publishes ev in the background.  Failures are logged.
func (p *AuditPublisher) Record(ctx context.Context, ev queue.AuthEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			p.Log.Warn().Err(err).Str("event", string(ev.Kind)).Msg("audit publish failed")
		}
	}()
}

// Publish sends ev as a persistent message and returns any broker error.
func (p *AuditPublisher) Publish(ctx context.Context, ev queue.AuthEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.AuthQueueName, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                  // default exchange
		queue.AuthQueueName, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		})
}
