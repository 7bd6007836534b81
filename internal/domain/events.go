package domain

import "time"

// Routing keys for adoption events published to the events exchange.
const (
	RoutingAdoptionRecorded     = "adoption.recorded"
	RoutingAdoptionRecordFailed = "adoption.record_failed"
	RoutingAdoptionTreeConflict = "adoption.tree_conflict"
	RoutingCheckoutFailed       = "checkout.failed"
)

// AdoptionEvent is the message body for adoption lifecycle events.
type AdoptionEvent struct {
	CheckoutID      string    `json:"checkout_id,omitempty"`
	AdoptionID      string    `json:"adoption_id,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id"`
	UserID          string    `json:"user_id"`
	TreeID          string    `json:"tree_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
