package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Samarth40/tree-adoption-sub000/internal/metrics"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/rabbitmq"
)

const (
	defaultOutboxBatchSize = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

// OutboxDispatcher relays adoption events written alongside ledger changes to
// the broker.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	publisher           rabbitmq.Publisher
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	metrics             *metrics.Metrics
	logger              *slog.Logger
}

func NewOutboxDispatcher(repo store.OutboxRepository, publisher rabbitmq.Publisher, m *metrics.Metrics, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		publisher:           publisher,
		batchSize:           defaultOutboxBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
		metrics:             m,
		logger:              logger.With("component", "outbox_dispatcher"),
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.flushOnce(ctx); err != nil {
				d.logger.Error("outbox flush error", "error", err)
			}
		}
	}
}

// flushOnce publishes one batch and returns how many messages went out.
func (d *OutboxDispatcher) flushOnce(ctx context.Context) (int, error) {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			d.metrics.OutboxRelayed("failed")
			retryAfter := retryDelaySeconds(message.Attempts)
			d.logger.Warn("outbox publish failed",
				"message_id", message.ID,
				"routing_key", message.RoutingKey,
				"attempts", message.Attempts,
				"retry_after_seconds", retryAfter,
				"error", err,
			)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to mark outbox message failed", "message_id", message.ID, "error", markErr)
			}
			continue
		}
		d.metrics.OutboxRelayed("published")
		published++
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message published", "message_id", message.ID, "error", err)
		}
	}
	return published, nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	var payload interface{}
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return err
	}
	return d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, payload)
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
