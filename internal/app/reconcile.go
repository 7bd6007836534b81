package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/metrics"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/stripeclient"
)

const (
	defaultReconcileBatch = 100
	defaultPendingAfter   = 15 * time.Minute
)

// Reconciler drives stuck checkout attempts to a terminal state. It runs from
// the scheduler and from provider webhooks.
type Reconciler struct {
	payments     PaymentProvider
	checkouts    store.CheckoutRepository
	recorder     *Recorder
	pendingAfter time.Duration
	batchSize    int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

func NewReconciler(payments PaymentProvider, checkouts store.CheckoutRepository, recorder *Recorder, pendingAfter time.Duration, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if pendingAfter <= 0 {
		pendingAfter = defaultPendingAfter
	}
	return &Reconciler{
		payments:     payments,
		checkouts:    checkouts,
		recorder:     recorder,
		pendingAfter: pendingAfter,
		batchSize:    defaultReconcileBatch,
		metrics:      m,
		logger:       logger.With("component", "reconciler"),
		now:          time.Now,
	}
}

// ReconcileSummary counts what a run did.
type ReconcileSummary struct {
	Finalized int
	Failed    int
	Skipped   int
	FollowUps int
	Errors    int
}

// Run makes one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if r.payments == nil {
		return summary, ErrPaymentNotConfigured
	}

	stale, err := r.checkouts.ListStaleCheckoutAttempts(ctx, r.now().Add(-r.pendingAfter), r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale checkout attempts: %w", err)
	}
	for i := range stale {
		attempt := &stale[i]
		intent, err := r.payments.GetPaymentIntent(ctx, attempt.IntentID())
		if err != nil {
			summary.Errors++
			r.logger.Error("failed to fetch payment intent", "checkout_id", attempt.ID, "payment_intent_id", attempt.IntentID(), "error", err)
			continue
		}
		action, err := r.settle(ctx, attempt, intent)
		if err != nil {
			summary.Errors++
			r.logger.Error("failed to settle checkout attempt", "checkout_id", attempt.ID, "error", err)
			continue
		}
		r.metrics.ReconcileAction(action)
		switch action {
		case "finalized":
			summary.Finalized++
		case "failed":
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	followUps, err := r.checkouts.ListCheckoutFollowUps(ctx, r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list checkout follow-ups: %w", err)
	}
	for i := range followUps {
		if _, err := r.recorder.FollowUp(ctx, &followUps[i]); err != nil {
			summary.Errors++
			r.logger.Error("follow-up failed", "checkout_id", followUps[i].ID, "error", err)
			continue
		}
		summary.FollowUps++
		r.metrics.ReconcileAction("follow_up")
	}

	if len(stale) > 0 || len(followUps) > 0 {
		r.logger.Info("reconcile run complete",
			"finalized", summary.Finalized,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"follow_ups", summary.FollowUps,
			"errors", summary.Errors,
		)
	}
	return summary, nil
}

// HandlePaymentEvent applies a verified provider notification. Intents that
// do not belong to a checkout attempt are ignored.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, eventType string, intent *domain.PaymentIntent) error {
	if intent == nil || intent.ID == "" {
		return nil
	}
	attempt, err := r.checkouts.FindCheckoutAttemptByIntentID(ctx, intent.ID)
	if errors.Is(err, store.ErrCheckoutNotFound) {
		r.logger.Debug("webhook for unknown intent", "payment_intent_id", intent.ID, "event_type", eventType)
		return nil
	}
	if err != nil {
		return err
	}

	switch eventType {
	case stripeclient.EventPaymentSucceeded, stripeclient.EventPaymentCanceled:
		action, err := r.settle(ctx, attempt, intent)
		if err != nil {
			return err
		}
		r.metrics.ReconcileAction("webhook_" + action)
	case stripeclient.EventPaymentFailed:
		// The intent can still be retried by the customer; only note why.
		if attempt.Status != domain.CheckoutPending {
			return nil
		}
		if err := r.checkouts.SetCheckoutFailureReason(ctx, attempt.ID, "payment_failed"); err != nil {
			return err
		}
		r.metrics.ReconcileAction("webhook_payment_failed")
	}
	return nil
}

func (r *Reconciler) settle(ctx context.Context, attempt *domain.CheckoutAttempt, intent *domain.PaymentIntent) (string, error) {
	switch intent.Status {
	case domain.PaymentIntentSucceeded:
		if attempt.Status == domain.CheckoutRecorded {
			return "skipped", nil
		}
		if _, err := r.recorder.Finalize(ctx, attempt, intent); err != nil {
			return "", err
		}
		return "finalized", nil
	case domain.PaymentIntentCanceled:
		err := r.checkouts.MarkCheckoutFailed(ctx, attempt.ID, "payment_canceled", store.OutboxEvent{
			RoutingKey: domain.RoutingCheckoutFailed,
			Payload:    adoptionEvent(attempt, intent.ID, "", "payment_canceled", r.now()),
		})
		if errors.Is(err, store.ErrCheckoutStateConflict) {
			return "skipped", nil
		}
		if err != nil {
			return "", err
		}
		return "failed", nil
	default:
		return "skipped", nil
	}
}
