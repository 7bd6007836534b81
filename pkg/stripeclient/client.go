/**
 * @description
 * This package provides a client for the Stripe PaymentIntents API. It wraps
 * the official SDK behind a circuit breaker, maps SDK failures to
 * domain.ProviderError so handlers can echo them verbatim, and verifies
 * webhook signatures.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v74: The official Stripe SDK.
 * - github.com/sony/gobreaker/v2: Circuit breaker around outbound calls.
 * - internal/domain: For the PaymentIntent and ProviderError models.
 *
 * @notes
 * - Card declines and other 4xx responses are answers, not outages; they do not
 *   count against the breaker.
 * - Webhooks are accepted whatever API version the account is pinned to; only
 *   the payment intent fields the service reads are decoded.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

// Webhook event types handled by the service.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

var ErrWebhookNotConfigured = errors.New("stripe webhook secret is not configured")

// intentBackend is the subset of the SDK's PaymentIntents client in use.
type intentBackend interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Config configures the client.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Breaker tuning; zero values fall back to defaults.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	// HTTPTimeout bounds each provider call; defaults to 30s.
	HTTPTimeout time.Duration
}

const defaultHTTPTimeout = 30 * time.Second

func (cfg Config) httpClient() *http.Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// newBackends routes every SDK backend through httpClient.
func newBackends(httpClient *http.Client) *stripe.Backends {
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
	}
}

// Client is a client for Stripe payment intents.
type Client struct {
	intents       intentBackend
	webhookSecret string
	breaker       *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	logger        *slog.Logger
}

// NewClient creates a Stripe client with its own API handle.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, newBackends(cfg.httpClient()))
	return newClient(api.PaymentIntents, cfg, logger)
}

func newClient(intents intentBackend, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	logger = logger.With("component", "stripe_client")
	breaker := gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		intents:       intents,
		webhookSecret: cfg.WebhookSecret,
		breaker:       breaker,
		logger:        logger,
	}
}

// CreatePaymentIntent creates an intent for the given amount in minor units.
// A non-empty idempotency key is forwarded so retried requests reuse the intent.
func (c *Client) CreatePaymentIntent(ctx context.Context, in domain.PaymentIntentInput) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return c.intents.New(params)
	})
	if err != nil {
		return nil, c.mapError("create", err)
	}
	return toDomain(pi), nil
}

// GetPaymentIntent re-reads an intent from the provider.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return c.intents.Get(id, params)
	})
	if err != nil {
		return nil, c.mapError("retrieve", err)
	}
	return toDomain(pi), nil
}

// WebhookEvent is a verified webhook notification about a payment intent.
type WebhookEvent struct {
	ID     string
	Type   string
	Intent *domain.PaymentIntent
}

// ParseWebhook verifies the signature header and decodes the event. Events
// that do not carry a payment intent return a nil Intent.
func (c *Client) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payment intent: %w", err)
	}
	out.Intent = toDomain(&pi)
	return out, nil
}

func toDomain(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func (c *Client) mapError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("payment provider call short-circuited", "operation", op)
		return &domain.ProviderError{
			Code:       "provider_unavailable",
			Type:       "api_error",
			Message:    "Payment provider temporarily unavailable",
			StatusCode: http.StatusServiceUnavailable,
		}
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		c.logger.Error("payment provider rejected request",
			"operation", op,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"status", stripeErr.HTTPStatusCode,
		)
		return &domain.ProviderError{
			Code:       string(stripeErr.Code),
			Type:       string(stripeErr.Type),
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
		}
	}

	c.logger.Error("payment provider call failed", "operation", op, "error", err)
	return &domain.ProviderError{
		Type:       "api_connection_error",
		Message:    err.Error(),
		StatusCode: http.StatusBadGateway,
	}
}

// isOutage reports whether err indicates the provider itself is unhealthy.
func isOutage(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
