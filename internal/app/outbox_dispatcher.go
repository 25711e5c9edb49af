package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/moneypay/ledger-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute

	// maxOutboxErrorLength caps the last_error recorded for a failed publish.
	maxOutboxErrorLength = 2000
)

// RealtimeDispatch pushes events to connected clients. Each message is emitted
// once, on its first claim, whatever the broker does with it. Failures are
// logged and never retried.
type RealtimeDispatch interface {
	EmitBalanceUpdated(ctx context.Context, accountID int64, balance decimal.Decimal) error
	EmitNotification(ctx context.Context, accountID int64, payload interface{}) error
}

// ProducerFactory opens a broker connection. It is called lazily and again
// after a publish failure.
type ProducerFactory func() (rabbitmq.Publisher, error)

// DispatcherOptions tunes an OutboxDispatcher; zero values use the defaults.
type DispatcherOptions struct {
	BatchSize    int
	PollInterval time.Duration
}

// OutboxDispatcher drains committed outbox rows to the broker and to the
// realtime channel.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	newProducer         ProducerFactory
	realtime            RealtimeDispatch
	logger              *slog.Logger
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	producer            rabbitmq.Publisher
	now                 func() time.Time
}

func NewOutboxDispatcher(repo store.OutboxRepository, newProducer ProducerFactory, realtime RealtimeDispatch, opts DispatcherOptions, logger *slog.Logger) *OutboxDispatcher {
	d := &OutboxDispatcher{
		repo:                repo,
		newProducer:         newProducer,
		realtime:            realtime,
		logger:              logger.With("component", "outbox-dispatcher"),
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
		now:                 time.Now,
	}
	if opts.BatchSize > 0 {
		d.batchSize = opts.BatchSize
	}
	if opts.PollInterval > 0 {
		d.pollInterval = opts.PollInterval
	}
	return d
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closeProducer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush failed", "error", err)
			}
		}
	}
}

// flushOnce claims one batch, settles it and reports how many messages were
// published.
func (d *OutboxDispatcher) flushOnce(ctx context.Context) (int, error) {
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, d.now().Add(-d.staleProcessingTime))
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	results := make([]store.OutboxResult, 0, len(messages))
	published := 0
	for _, message := range messages {
		if message.Attempts == 1 {
			d.emitRealtime(ctx, message)
		}
		result := store.OutboxResult{ID: message.ID}
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := time.Duration(retryDelaySeconds(message.Attempts)) * time.Second
			d.logger.Warn("outbox publish failed", "outbox_id", message.ID, "routing_key", message.RoutingKey,
				"attempts", message.Attempts, "retry_after", retryAfter, "error", err)
			result.RetryAt = d.now().Add(retryAfter)
			result.Error = outboxError(err)
		} else {
			published++
		}
		results = append(results, result)
	}

	if err := d.repo.SettleOutboxMessages(ctx, results); err != nil {
		return 0, fmt.Errorf("settle outbox batch: %w", err)
	}
	return published, nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := d.newProducer()
		if err != nil {
			return err
		}
		d.producer = producer
	}

	if !json.Valid(message.Payload) {
		return fmt.Errorf("outbox message %d has an invalid JSON payload", message.ID)
	}
	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

// emitRealtime fans a message out to the account's live sockets.
func (d *OutboxDispatcher) emitRealtime(ctx context.Context, message store.OutboxMessage) {
	if d.realtime == nil {
		return
	}
	var err error
	switch message.RoutingKey {
	case domain.RoutingKeyBalanceUpdated:
		var event domain.BalanceUpdatedEvent
		if err = json.Unmarshal(message.Payload, &event); err == nil {
			err = d.realtime.EmitBalanceUpdated(ctx, event.AccountID, event.Balance)
		}
	case domain.RoutingKeyNotificationCreated:
		var event domain.NotificationCreatedEvent
		if err = json.Unmarshal(message.Payload, &event); err == nil {
			err = d.realtime.EmitNotification(ctx, event.Notification.RecipientID, event.Notification)
		}
	default:
		return
	}
	if err != nil {
		d.logger.Error("realtime emit failed", "outbox_id", message.ID, "routing_key", message.RoutingKey, "error", err)
	}
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

// outboxError trims err to what last_error stores, keeping valid UTF-8.
func outboxError(err error) string {
	msg := err.Error()
	if len(msg) <= maxOutboxErrorLength {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxOutboxErrorLength], "")
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}
