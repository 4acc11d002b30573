// Package queue_publisher publishes ticket events to RabbitMQ.  Errors are
// logged and returned so callers decide whether a failed publish matters:
// issued events are best effort, reconcile events are not.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	q "github.com/iliyamo/nft-ticket-registry/internal/queue"
)

// Publisher dials the broker per publish.  Publishes are rare (one per
// issued ticket) so a pooled connection is not worth its failure modes.
type Publisher struct {
	url string
	log logging.Logger
}

func NewPublisher(url string, log logging.Logger) *Publisher {
	return &Publisher{url: url, log: log.With("component", "publisher")}
}

// PublishTicketIssued fills in the event id and timestamp when missing.
func (p *Publisher) PublishTicketIssued(ctx context.Context, ev q.TicketIssuedEvent) error {
	if ev.EventID == "" {
		ev.EventID = q.NewEventID()
	}
	if ev.IssuedAt == "" {
		ev.IssuedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, q.TicketIssuedQueue, ev)
}

// Escalate queues a minted-but-unregistered ticket for reconciliation.
func (p *Publisher) Escalate(ctx context.Context, ev q.RegistryReconcileEvent) error {
	if ev.EventID == "" {
		ev.EventID = q.NewEventID()
	}
	if ev.FailedAt == "" {
		ev.FailedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, q.ReconcileQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error(ctx, "rabbitmq dial failed", "queue", queue, "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error(ctx, "rabbitmq channel open failed", "queue", queue, "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.Error(ctx, "rabbitmq queue declare failed", "queue", queue, "error", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.Error(ctx, "rabbitmq publish failed", "queue", queue, "error", err)
		return err
	}
	return nil
}
