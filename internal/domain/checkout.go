package domain

import (
	"time"

	"github.com/google/uuid"
)

// Checkout attempt statuses. An attempt moves pending -> confirmed -> recorded,
// or to failed when the provider reports a terminal failure.
const (
	CheckoutPending   = "pending"
	CheckoutConfirmed = "confirmed"
	CheckoutRecorded  = "recorded"
	CheckoutFailed    = "failed"
)

// CheckoutAttempt is the durable saga row created before payment confirmation.
type CheckoutAttempt struct {
	ID               uuid.UUID       `json:"id"`
	IdempotencyKey   string          `json:"idempotencyKey"`
	UserID           string          `json:"userId"`
	TreeID           string          `json:"treeId"`
	PlanYears        int             `json:"planYears"`
	AmountMinor      int64           `json:"amountMinor"`
	Currency         string          `json:"currency"`
	PaymentIntentID  *string         `json:"paymentIntentId,omitempty"`
	Status           string          `json:"status"`
	AdoptionID       *string         `json:"adoptionId,omitempty"`
	AggregateApplied bool            `json:"aggregateApplied"`
	TreeMarked       bool            `json:"treeMarked"`
	FailureReason    *string         `json:"failureReason,omitempty"`
	Request          AdoptionRequest `json:"request"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NeedsFollowUp reports whether a recorded attempt still has best-effort
// steps outstanding.
func (c CheckoutAttempt) NeedsFollowUp() bool {
	return c.Status == CheckoutRecorded && (!c.AggregateApplied || !c.TreeMarked)
}

// IntentID returns the payment intent id or an empty string.
func (c CheckoutAttempt) IntentID() string {
	if c.PaymentIntentID == nil {
		return ""
	}
	return *c.PaymentIntentID
}
