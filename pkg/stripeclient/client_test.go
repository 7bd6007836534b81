package stripeclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
)

type fakeIntents struct {
	lastNew *stripe.PaymentIntentParams
	newErr  error
	getErr  error
	calls   int
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.calls++
	f.lastNew = params
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &stripe.PaymentIntent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		Amount:       *params.Amount,
		Currency:     stripe.Currency(*params.Currency),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Metadata:     params.Metadata,
	}, nil
}

func (f *fakeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &stripe.PaymentIntent{ID: id, Amount: 199900, Currency: "inr", Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func TestCreatePaymentIntentForwardsParams(t *testing.T) {
	fake := &fakeIntents{}
	c := newClient(fake, Config{}, nil)

	pi, err := c.CreatePaymentIntent(context.Background(), domain.PaymentIntentInput{
		AmountMinor:    19900,
		Currency:       "INR",
		IdempotencyKey: "key-1",
		Metadata:       map[string]string{"integration_check": "tree_adoption"},
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_test_secret", pi.ClientSecret)
	assert.Equal(t, int64(19900), pi.Amount)
	assert.Equal(t, "inr", pi.Currency)
	require.NotNil(t, fake.lastNew.IdempotencyKey)
	assert.Equal(t, "key-1", *fake.lastNew.IdempotencyKey)
	assert.Equal(t, "tree_adoption", fake.lastNew.Metadata["integration_check"])
	assert.NotNil(t, fake.lastNew.Context)
}

func TestCreatePaymentIntentMapsProviderError(t *testing.T) {
	fake := &fakeIntents{newErr: &stripe.Error{
		Code:           stripe.ErrorCodeAmountTooSmall,
		Type:           stripe.ErrorTypeInvalidRequest,
		Msg:            "Amount must be at least ₹0.50 inr",
		HTTPStatusCode: http.StatusBadRequest,
	}}
	c := newClient(fake, Config{}, nil)

	_, err := c.CreatePaymentIntent(context.Background(), domain.PaymentIntentInput{AmountMinor: 1, Currency: "INR"})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "amount_too_small", perr.Code)
	assert.Equal(t, "invalid_request_error", perr.Type)
	assert.Equal(t, "Amount must be at least ₹0.50 inr", perr.Message)
}

func TestBreakerIgnoresClientErrorsAndTripsOnOutages(t *testing.T) {
	declined := &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired, Msg: "declined"}
	fake := &fakeIntents{getErr: declined}
	c := newClient(fake, Config{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := c.GetPaymentIntent(context.Background(), "pi_1")
		require.Error(t, err)
	}
	assert.Equal(t, 3, fake.calls)

	fake.getErr = errors.New("connection reset")
	for i := 0; i < 2; i++ {
		_, _ = c.GetPaymentIntent(context.Background(), "pi_1")
	}
	_, err := c.GetPaymentIntent(context.Background(), "pi_1")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "provider_unavailable", perr.Code)
	assert.Equal(t, 5, fake.calls)
}

func TestParseWebhook(t *testing.T) {
	c := newClient(&fakeIntents{}, Config{WebhookSecret: "whsec_test"}, nil)

	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        EventPaymentSucceeded,
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "pi_42",
				"object":   "payment_intent",
				"amount":   199900,
				"currency": "inr",
				"status":   "succeeded",
			},
		},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := c.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	require.NotNil(t, event.Intent)
	assert.Equal(t, "pi_42", event.Intent.ID)
	assert.True(t, event.Intent.Succeeded())

	_, err = c.ParseWebhook(payload, "t=1,v1=bad")
	assert.Error(t, err)
}

func TestParseWebhookAcceptsOtherAPIVersions(t *testing.T) {
	c := newClient(&fakeIntents{}, Config{WebhookSecret: "whsec_test"}, nil)

	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","api_version":"2020-08-27",` +
		`"data":{"object":{"id":"pi_7","object":"payment_intent","amount":49900,"currency":"inr","status":"requires_payment_method"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := c.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, event.Type)
	require.NotNil(t, event.Intent)
	assert.Equal(t, "pi_7", event.Intent.ID)
	assert.Equal(t, int64(49900), event.Intent.Amount)
}

func TestHTTPClientTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{}.httpClient().Timeout)
	assert.Equal(t, 5*time.Second, Config{HTTPTimeout: 5 * time.Second}.httpClient().Timeout)

	backends := newBackends(Config{}.httpClient())
	assert.NotNil(t, backends.API)
	assert.NotNil(t, backends.Connect)
	assert.NotNil(t, backends.Uploads)
}

func TestParseWebhookRequiresSecret(t *testing.T) {
	c := newClient(&fakeIntents{}, Config{}, nil)
	_, err := c.ParseWebhook([]byte(`{}`), "")
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}
