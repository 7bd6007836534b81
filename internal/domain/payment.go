package domain

import "fmt"

// Payment intent statuses mirrored from the provider.
const (
	PaymentIntentSucceeded             = "succeeded"
	PaymentIntentProcessing            = "processing"
	PaymentIntentRequiresPaymentMethod = "requires_payment_method"
	PaymentIntentRequiresAction        = "requires_action"
	PaymentIntentCanceled              = "canceled"
)

// PaymentIntent is the provider-side charge attempt as seen by this service.
type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Succeeded reports whether the charge was captured.
func (p PaymentIntent) Succeeded() bool {
	return p.Status == PaymentIntentSucceeded
}

// PaymentIntentInput describes an intent to create.
type PaymentIntentInput struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
}

// ProviderError carries the payment provider's failure details verbatim.
type ProviderError struct {
	Code       string `json:"code,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error: %s (%s/%s)", e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("payment provider error: %s", e.Message)
}
