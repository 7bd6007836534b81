/**
 * @description
 * This file contains the checkout use cases: the stand-alone payment intent
 * endpoint, starting a checkout attempt for a tree and plan, and confirming
 * a checkout against the provider's authoritative intent status.
 *
 * Key features:
 * - A durable pending attempt is written before any money can move.
 * - Retried starts with the same idempotency key reuse the same attempt and
 *   provider intent.
 * - Confirmation re-reads the intent; only `succeeded` reaches the recorder.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/metrics"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
)

var (
	ErrInvalidAmount        = errors.New("Invalid amount provided")
	ErrPaymentNotConfigured = errors.New("Payment provider not configured")
	ErrTreeUnavailable      = errors.New("tree no longer available")
	ErrPaymentNotCompleted  = errors.New("Payment was not completed")
	ErrIntentMismatch       = errors.New("payment intent does not belong to this checkout")
	ErrCheckoutForbidden    = errors.New("checkout belongs to another user")
	ErrCheckoutFailed       = errors.New("checkout was cancelled, please start again")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateAdoptionRequest checks the checkout form fields.
func ValidateAdoptionRequest(req domain.AdoptionRequest) error {
	required := []struct {
		field string
		value string
	}{
		{"treeId", req.TreeID},
		{"firstName", req.Contact.FirstName},
		{"lastName", req.Contact.LastName},
		{"email", req.Contact.Email},
		{"phone", req.Contact.Phone},
		{"address", req.Contact.Address},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "is required"}
		}
	}
	if _, err := mail.ParseAddress(req.Contact.Email); err != nil {
		return &ValidationError{Field: "email", Message: "is not a valid email address"}
	}
	if req.Gift != nil && strings.TrimSpace(req.Gift.RecipientName) == "" {
		return &ValidationError{Field: "gift.recipientName", Message: "is required for gift adoptions"}
	}
	return nil
}

// CheckoutConfig holds payment settings read at start.
type CheckoutConfig struct {
	Currency    string
	MetadataTag string
}

// CheckoutService runs the payment side of an adoption.
type CheckoutService struct {
	payments  PaymentProvider
	trees     store.TreeRepository
	checkouts store.CheckoutRepository
	recorder  *Recorder
	cfg       CheckoutConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewCheckoutService creates a checkout service. payments may be nil when no
// provider key is configured; payment operations then fail with
// ErrPaymentNotConfigured.
func NewCheckoutService(
	payments PaymentProvider,
	trees store.TreeRepository,
	checkouts store.CheckoutRepository,
	recorder *Recorder,
	cfg CheckoutConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.MetadataTag == "" {
		cfg.MetadataTag = "tree_adoption"
	}
	return &CheckoutService{
		payments:  payments,
		trees:     trees,
		checkouts: checkouts,
		recorder:  recorder,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With("component", "checkout"),
	}
}

// CreatePaymentIntent creates an intent for an amount in major units.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, amount float64, idempotencyKey string) (*domain.PaymentIntent, error) {
	minor, ok := domain.MinorAmountFor(amount)
	if !ok {
		s.metrics.PaymentIntent("rejected")
		return nil, ErrInvalidAmount
	}
	if s.payments == nil {
		return nil, ErrPaymentNotConfigured
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, domain.PaymentIntentInput{
		AmountMinor:    minor,
		Currency:       s.cfg.Currency,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		Metadata:       map[string]string{"integration_check": s.cfg.MetadataTag},
	})
	if err != nil {
		s.metrics.PaymentIntent("failed")
		return nil, err
	}
	s.metrics.PaymentIntent("created")
	return intent, nil
}

// StartCheckoutInput is a request to pay for one adoption.
type StartCheckoutInput struct {
	UserID         string
	Email          string
	IdempotencyKey string
	Request        domain.AdoptionRequest
}

// CheckoutStarted is returned to the client for payment confirmation.
type CheckoutStarted struct {
	CheckoutID      uuid.UUID           `json:"checkoutId"`
	ClientSecret    string              `json:"clientSecret"`
	PaymentIntentID string              `json:"paymentIntentId"`
	Amount          int64               `json:"amount"`
	AmountMinor     int64               `json:"amountMinor"`
	Currency        string              `json:"currency"`
	Plan            domain.AdoptionPlan `json:"plan"`
}

// StartCheckout validates the form, reserves a pending ledger row and creates
// the provider intent.
func (s *CheckoutService) StartCheckout(ctx context.Context, in StartCheckoutInput) (*CheckoutStarted, error) {
	if s.payments == nil {
		return nil, ErrPaymentNotConfigured
	}
	if err := ValidateAdoptionRequest(in.Request); err != nil {
		return nil, err
	}
	plan, err := domain.PickPlan(in.Request.PlanYears)
	if err != nil {
		return nil, &ValidationError{Field: "planYears", Message: "is not an offered plan"}
	}
	in.Request.PlanYears = plan.Years

	tree, err := s.trees.GetTree(ctx, in.Request.TreeID)
	if err != nil {
		return nil, err
	}
	if !tree.IsAvailable() {
		return nil, ErrTreeUnavailable
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	attempt, created, err := s.checkouts.CreateCheckoutAttempt(ctx, &domain.CheckoutAttempt{
		ID:             uuid.New(),
		IdempotencyKey: in.UserID + ":" + key,
		UserID:         in.UserID,
		TreeID:         tree.ID,
		PlanYears:      plan.Years,
		AmountMinor:    plan.MinorAmount(),
		Currency:       s.cfg.Currency,
		Request:        in.Request,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout attempt: %w", err)
	}
	if !created {
		s.logger.Info("reusing checkout attempt", "checkout_id", attempt.ID, "status", attempt.Status)
		switch attempt.Status {
		case domain.CheckoutFailed:
			return nil, ErrCheckoutFailed
		case domain.CheckoutConfirmed, domain.CheckoutRecorded:
			return nil, fmt.Errorf("%w: checkout %s is already %s", ErrPaymentNotCompleted, attempt.ID, attempt.Status)
		}
	}

	attemptPlan, err := domain.PickPlan(attempt.PlanYears)
	if err != nil {
		return nil, err
	}

	// The provider replays the original intent for a repeated idempotency key.
	intent, err := s.payments.CreatePaymentIntent(ctx, domain.PaymentIntentInput{
		AmountMinor:    attempt.AmountMinor,
		Currency:       attempt.Currency,
		IdempotencyKey: "checkout:" + attempt.ID.String(),
		Description:    fmt.Sprintf("Tree adoption: %s (%d year)", tree.Name, attempt.PlanYears),
		ReceiptEmail:   attempt.Request.Contact.Email,
		Metadata: map[string]string{
			"integration_check": s.cfg.MetadataTag,
			"checkout_id":       attempt.ID.String(),
			"tree_id":           attempt.TreeID,
			"user_id":           attempt.UserID,
			"plan_years":        strconv.Itoa(attempt.PlanYears),
		},
	})
	if err != nil {
		s.metrics.PaymentIntent("failed")
		return nil, err
	}
	s.metrics.PaymentIntent("created")

	if err := s.checkouts.SetCheckoutIntent(ctx, attempt.ID, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to link payment intent: %w", err)
	}

	s.logger.Info("checkout started",
		"checkout_id", attempt.ID,
		"user_id", attempt.UserID,
		"tree_id", attempt.TreeID,
		"payment_intent_id", intent.ID,
		"amount_minor", attempt.AmountMinor,
	)
	return &CheckoutStarted{
		CheckoutID:      attempt.ID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          attemptPlan.Price,
		AmountMinor:     attempt.AmountMinor,
		Currency:        attempt.Currency,
		Plan:            attemptPlan,
	}, nil
}

// ConfirmCheckout finalises a checkout once the provider reports the intent
// as succeeded. Confirming an already recorded checkout returns its record.
func (s *CheckoutService) ConfirmCheckout(ctx context.Context, userID string, checkoutID uuid.UUID, paymentIntentID string) (*RecordResult, error) {
	if s.payments == nil {
		return nil, ErrPaymentNotConfigured
	}
	attempt, err := s.checkouts.GetCheckoutAttempt(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrCheckoutForbidden
	}
	if paymentIntentID == "" || attempt.IntentID() != paymentIntentID {
		return nil, ErrIntentMismatch
	}
	if attempt.Status == domain.CheckoutRecorded {
		return s.recorder.Existing(ctx, attempt)
	}

	intent, err := s.payments.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		s.metrics.CheckoutOutcome("provider_error")
		return nil, err
	}
	if !intent.Succeeded() {
		s.metrics.CheckoutOutcome("not_completed")
		s.logger.Info("payment not completed", "checkout_id", attempt.ID, "payment_intent_id", intent.ID, "status", intent.Status)
		return nil, ErrPaymentNotCompleted
	}

	// The charge is captured; recording must not be abandoned with the request.
	result, err := s.recorder.Finalize(context.WithoutCancel(ctx), attempt, intent)
	if err != nil {
		s.metrics.CheckoutOutcome("record_failed")
		return nil, err
	}
	s.metrics.CheckoutOutcome("recorded")
	return result, nil
}

// IsNotFound reports whether err means the addressed resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrTreeNotFound) ||
		errors.Is(err, store.ErrCheckoutNotFound) ||
		errors.Is(err, store.ErrAdoptionNotFound) ||
		errors.Is(err, store.ErrStoryNotFound) ||
		errors.Is(err, store.ErrCommentNotFound) ||
		errors.Is(err, store.ErrEventNotFound) ||
		errors.Is(err, store.ErrDiscussionNotFound)
}
