/**
 * @description
 * The adoption recorder finalises a checkout once the provider has captured the
 * payment. It is the single finaliser shared by the confirm endpoint, the
 * Stripe webhook and the reconciler.
 *
 * Steps, in order:
 * 1. Ledger attempt moves to `confirmed`.
 * 2. The AdoptionRecord is created with the payment intent id as document id.
 *    A failure here stops the saga and is surfaced as RecordError.
 * 3. The user aggregate counters are incremented (best effort).
 * 4. The tree transitions available -> adopted (best effort, conflicts flagged).
 * 5. Ledger attempt moves to `recorded` and the event is enqueued in the outbox.
 */

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
)

// ErrRecordFailed marks a captured payment whose adoption could not be written.
var ErrRecordFailed = errors.New("adoption record failed after payment")

// RecordError carries the payment id the user needs for support.
type RecordError struct {
	PaymentIntentID string
	Err             error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("Your payment was received but we could not record your adoption. Please contact support with payment id %s", e.PaymentIntentID)
}

func (e *RecordError) Is(target error) bool { return target == ErrRecordFailed }

func (e *RecordError) Unwrap() error { return e.Err }

// RecordResult is the outcome of a finalised checkout.
type RecordResult struct {
	Adoption         domain.AdoptionRecord
	AggregateApplied bool
	TreeMarked       bool
	TreeConflict     bool
	AlreadyRecorded  bool
}

// Summary is the display-only confirmation payload.
func (r RecordResult) Summary() domain.ConfirmationSummary {
	s := r.Adoption.Summary()
	s.TreeConflict = r.TreeConflict
	return s
}

// Recorder runs the adoption saga.
type Recorder struct {
	trees     store.TreeRepository
	adoptions store.AdoptionRepository
	users     store.UserRepository
	checkouts store.CheckoutRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewRecorder(
	trees store.TreeRepository,
	adoptions store.AdoptionRepository,
	users store.UserRepository,
	checkouts store.CheckoutRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		trees:     trees,
		adoptions: adoptions,
		users:     users,
		checkouts: checkouts,
		metrics:   m,
		logger:    logger.With("component", "adoption_recorder"),
		now:       time.Now,
	}
}

// Finalize records the adoption for a succeeded intent. It is safe to call
// repeatedly for the same attempt.
func (r *Recorder) Finalize(ctx context.Context, attempt *domain.CheckoutAttempt, intent *domain.PaymentIntent) (*RecordResult, error) {
	log := r.logger.With("checkout_id", attempt.ID, "payment_intent_id", intent.ID, "user_id", attempt.UserID)

	confirmed, err := r.checkouts.TransitionCheckoutStatus(ctx, attempt.ID,
		[]string{domain.CheckoutPending, domain.CheckoutConfirmed, domain.CheckoutFailed},
		domain.CheckoutConfirmed)
	if err != nil {
		if !errors.Is(err, store.ErrCheckoutStateConflict) {
			return nil, fmt.Errorf("failed to confirm checkout attempt: %w", err)
		}
		current, getErr := r.checkouts.GetCheckoutAttempt(ctx, attempt.ID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to reload checkout attempt: %w", getErr)
		}
		if current.Status == domain.CheckoutRecorded {
			return r.Existing(ctx, current)
		}
		return nil, fmt.Errorf("checkout attempt %s in status %s: %w", current.ID, current.Status, err)
	}
	attempt = confirmed

	plan, err := domain.PickPlan(attempt.PlanYears)
	if err != nil {
		return nil, r.recordFailed(ctx, log, attempt, intent, "plan", err)
	}
	tree, err := r.trees.GetTree(ctx, attempt.TreeID)
	switch {
	case errors.Is(err, store.ErrTreeNotFound):
		// The payment still stands; record against the bare tree id.
		log.Warn("tree missing while recording adoption", "tree_id", attempt.TreeID)
		tree = &domain.TreeListing{ID: attempt.TreeID, Name: attempt.TreeID}
	case err != nil:
		return nil, r.recordFailed(ctx, log, attempt, intent, "tree_lookup", err)
	}

	now := r.now().UTC()
	record := domain.NewAdoptionRecord(attempt.UserID, *tree, plan, attempt.Request, *intent, now)
	record.CheckoutID = attempt.ID.String()

	created := true
	if err := r.adoptions.CreateAdoption(ctx, &record); err != nil {
		if !errors.Is(err, store.ErrAdoptionExists) {
			return nil, r.recordFailed(ctx, log, attempt, intent, "adoption", err)
		}
		existing, getErr := r.adoptions.GetAdoption(ctx, record.ID)
		if getErr != nil {
			return nil, r.recordFailed(ctx, log, attempt, intent, "adoption", getErr)
		}
		log.Info("adoption already exists for payment", "adoption_id", existing.ID)
		record = *existing
		created = false
	}

	result := &RecordResult{
		Adoption:         record,
		AggregateApplied: attempt.AggregateApplied,
		TreeMarked:       attempt.TreeMarked,
	}
	// Whoever created the document owns the follow-ups; a later caller leaves
	// outstanding ones to the reconciler so counters are applied once.
	var events []store.OutboxEvent
	if created {
		events = r.applyFollowUps(ctx, log, attempt, result)
	} else {
		result.AlreadyRecorded = true
	}
	events = append(events, store.OutboxEvent{
		RoutingKey: domain.RoutingAdoptionRecorded,
		Payload:    r.event(attempt, intent.ID, record.ID, ""),
	})

	if err := r.checkouts.MarkCheckoutRecorded(ctx, attempt.ID, record.ID, result.AggregateApplied, result.TreeMarked, events...); err != nil {
		// The adoption document exists; the reconciler picks the attempt up again.
		r.metrics.RecorderStepFailed("ledger")
		log.Error("failed to mark checkout recorded", "adoption_id", record.ID, "error", err)
	}

	log.Info("adoption recorded",
		"adoption_id", record.ID,
		"tree_id", record.TreeID,
		"aggregate_applied", result.AggregateApplied,
		"tree_marked", result.TreeMarked,
		"tree_conflict", result.TreeConflict,
	)
	return result, nil
}

// FollowUp retries the best-effort steps of an already recorded attempt.
func (r *Recorder) FollowUp(ctx context.Context, attempt *domain.CheckoutAttempt) (*RecordResult, error) {
	if attempt.AdoptionID == nil {
		return nil, fmt.Errorf("checkout attempt %s has no adoption", attempt.ID)
	}
	record, err := r.adoptions.GetAdoption(ctx, *attempt.AdoptionID)
	if err != nil {
		return nil, err
	}
	log := r.logger.With("checkout_id", attempt.ID, "adoption_id", record.ID, "user_id", attempt.UserID)

	result := &RecordResult{
		Adoption:         *record,
		AggregateApplied: attempt.AggregateApplied,
		TreeMarked:       attempt.TreeMarked,
		AlreadyRecorded:  true,
	}
	events := r.applyFollowUps(ctx, log, attempt, result)
	if result.AggregateApplied == attempt.AggregateApplied && result.TreeMarked == attempt.TreeMarked {
		return result, nil
	}
	if err := r.checkouts.UpdateCheckoutFollowUps(ctx, attempt.ID, result.AggregateApplied, result.TreeMarked, events...); err != nil {
		return nil, fmt.Errorf("failed to update follow-ups: %w", err)
	}
	return result, nil
}

// Existing loads the result of an attempt that is already recorded.
func (r *Recorder) Existing(ctx context.Context, attempt *domain.CheckoutAttempt) (*RecordResult, error) {
	adoptionID := attempt.IntentID()
	if attempt.AdoptionID != nil {
		adoptionID = *attempt.AdoptionID
	}
	record, err := r.adoptions.GetAdoption(ctx, adoptionID)
	if err != nil {
		return nil, err
	}
	return &RecordResult{
		Adoption:         *record,
		AggregateApplied: attempt.AggregateApplied,
		TreeMarked:       attempt.TreeMarked,
		AlreadyRecorded:  true,
	}, nil
}

// applyFollowUps runs the aggregate and tree steps that are still outstanding
// and returns the events they produced. Failures leave the flags false.
func (r *Recorder) applyFollowUps(ctx context.Context, log *slog.Logger, attempt *domain.CheckoutAttempt, result *RecordResult) []store.OutboxEvent {
	var events []store.OutboxEvent
	record := result.Adoption

	if !result.AggregateApplied {
		if err := r.users.IncrementUserImpact(ctx, record.UserID, 1, record.ImpactKg); err != nil {
			r.metrics.RecorderStepFailed("aggregate")
			log.Error("failed to update user aggregate", "error", err)
		} else {
			result.AggregateApplied = true
		}
	}

	if !result.TreeMarked {
		err := r.trees.MarkTreeAdopted(ctx, record.TreeID, record.UserID, record.CreatedAt)
		switch {
		case err == nil:
			result.TreeMarked = true
		case errors.Is(err, store.ErrTreeAlreadyAdopted):
			result.TreeMarked = true
			result.TreeConflict = true
			log.Warn("tree already adopted by another user", "tree_id", record.TreeID, "adoption_id", record.ID)
			events = append(events, store.OutboxEvent{
				RoutingKey: domain.RoutingAdoptionTreeConflict,
				Payload:    r.event(attempt, record.PaymentID, record.ID, "tree already adopted"),
			})
		case errors.Is(err, store.ErrTreeNotFound):
			result.TreeMarked = true
			log.Warn("tree missing, skipping status update", "tree_id", record.TreeID)
		default:
			r.metrics.RecorderStepFailed("tree")
			log.Error("failed to mark tree adopted", "tree_id", record.TreeID, "error", err)
		}
	}
	return events
}

func (r *Recorder) recordFailed(ctx context.Context, log *slog.Logger, attempt *domain.CheckoutAttempt, intent *domain.PaymentIntent, step string, cause error) error {
	r.metrics.RecorderStepFailed(step)
	log.Error("failed to record adoption after payment", "step", step, "error", cause)

	reason := fmt.Sprintf("%s: %v", step, cause)
	evt := store.OutboxEvent{
		RoutingKey: domain.RoutingAdoptionRecordFailed,
		Payload:    r.event(attempt, intent.ID, "", reason),
	}
	if err := r.checkouts.SetCheckoutFailureReason(ctx, attempt.ID, reason, evt); err != nil {
		log.Error("failed to store failure reason", "error", err)
	}
	return &RecordError{PaymentIntentID: intent.ID, Err: cause}
}

func (r *Recorder) event(attempt *domain.CheckoutAttempt, intentID, adoptionID, reason string) domain.AdoptionEvent {
	return adoptionEvent(attempt, intentID, adoptionID, reason, r.now())
}

func adoptionEvent(attempt *domain.CheckoutAttempt, intentID, adoptionID, reason string, at time.Time) domain.AdoptionEvent {
	plan, _ := domain.PickPlan(attempt.PlanYears)
	return domain.AdoptionEvent{
		CheckoutID:      attempt.ID.String(),
		AdoptionID:      adoptionID,
		PaymentIntentID: intentID,
		UserID:          attempt.UserID,
		TreeID:          attempt.TreeID,
		Amount:          plan.Price,
		Currency:        attempt.Currency,
		Reason:          reason,
		Timestamp:       at.UTC(),
	}
}
