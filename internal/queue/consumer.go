package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/repository"
)

// Registry is the insert half of the ticket registry.
type Registry interface {
	Create(ctx context.Context, rec *model.TicketRecord) error
}

// HolderSource reports who holds a unit on the ledger.
type HolderSource interface {
	AssetHolders(ctx context.Context, unit string) ([]ledger.Holding, error)
}

// Consumer drains the ticket.issued and registry.reconcile queues.  Issued
// events are appended to <logDir>/tickets.log; reconcile events are
// inserted into the registry and requeued until the insert succeeds.
type Consumer struct {
	url     string
	repo    Registry
	holders HolderSource
	logDir  string
	log     logging.Logger

	requeueDelay time.Duration
}

func NewConsumer(url string, repo Registry, logDir string, log logging.Logger) *Consumer {
	return &Consumer{url: url, repo: repo, logDir: logDir, log: log.With("component", "ticket-consumer"), requeueDelay: 2 * time.Second}
}

// WithLedger lets reconciliation check unconfirmed mints against the
// ledger before registering them.
func (c *Consumer) WithLedger(h HolderSource) *Consumer {
	c.holders = h
	return c
}

// Run connects to RabbitMQ and consumes until ctx is cancelled, redialing
// with exponential delay whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	delay := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn(ctx, "failed to dial broker", "error", err, "retry_in", delay.String())
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			if delay < 30*time.Second {
				delay *= 2
			}
			continue
		}
		delay = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, "consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn(ctx, "set QoS failed", "error", err)
	}
	for _, q := range []string{TicketIssuedQueue, ReconcileQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
	}
	issued, err := ch.Consume(TicketIssuedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", TicketIssuedQueue, err)
	}
	reconcile, err := ch.Consume(ReconcileQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ReconcileQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-issued:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleIssued(d.Body); err != nil {
				c.log.Error(ctx, "handle issued event failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		case d, ok := <-reconcile:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			requeue, err := c.HandleReconcile(ctx, d.Body)
			if err != nil {
				c.log.Error(ctx, "reconcile failed", "error", err, "requeue", requeue)
				if requeue {
					sleep(ctx, c.requeueDelay)
				}
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleIssued appends one line per issued ticket to the ticket log.
func (c *Consumer) HandleIssued(body []byte) error {
	var ev TicketIssuedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.logDir, "tickets.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Ticket issued | event_id=%s | unit=%s | tx=%s | owner=%s | event=%q | seat=%q\n",
		ev.IssuedAt, ev.EventID, ev.AssetUnit, ev.MintTxHash, ev.OwnerWallet, ev.EventName, ev.SeatID)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// HandleReconcile inserts the escalated record.  A duplicate means an
// earlier attempt already landed and the message is done.  Malformed
// messages are dropped; registry failures ask for a requeue.  An
// unconfirmed mint whose unit nobody holds is left for an operator.
func (c *Consumer) HandleReconcile(ctx context.Context, body []byte) (requeue bool, err error) {
	var ev RegistryReconcileEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.AssetUnit == "" || ev.MintTxHash == "" || ev.OriginalOwnerWallet == "" {
		return false, fmt.Errorf("reconcile event %s is incomplete", ev.EventID)
	}
	if ev.Unconfirmed && c.holders != nil {
		holders, err := c.holders.AssetHolders(ctx, ev.AssetUnit)
		if err != nil {
			return true, fmt.Errorf("ledger lookup %s: %w", ev.AssetUnit, err)
		}
		if len(holders) == 0 {
			c.log.Error(ctx, "RECONCILE MANUALLY: unconfirmed mint not on ledger",
				"unit", ev.AssetUnit, "tx", ev.MintTxHash, "owner", ev.OriginalOwnerWallet, "event_id", ev.EventID)
			return false, nil
		}
	}
	rec := &model.TicketRecord{
		AssetUnit:           ev.AssetUnit,
		MintTxHash:          ev.MintTxHash,
		OriginalOwnerWallet: ev.OriginalOwnerWallet,
		Status:              model.TicketValid,
		MetadataURI:         ev.MetadataURI,
		SeatID:              ev.SeatID,
		EventName:           ev.EventName,
	}
	err = c.repo.Create(ctx, rec)
	if errors.Is(err, repository.ErrTicketExists) {
		c.log.Info(ctx, "reconcile target already registered", "unit", ev.AssetUnit)
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("registry insert %s: %w", ev.AssetUnit, err)
	}
	c.log.Info(ctx, "reconciled minted ticket", "unit", ev.AssetUnit, "tx", ev.MintTxHash)
	return false, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
