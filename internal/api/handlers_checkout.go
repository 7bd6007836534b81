package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Samarth40/tree-adoption-sub000/internal/app"
	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/pkg/stripeclient"
)

type createPaymentIntentRequest struct {
	Amount *float64 `json:"amount"`
}

type createPaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type providerErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
	Code  string `json:"code,omitempty"`
}

// CreatePaymentIntentHandler creates a payment intent for an amount in major units.
func (h *Handlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req createPaymentIntentRequest
	if err := decodeJSON(r, &req); err != nil || req.Amount == nil || *req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, app.ErrInvalidAmount.Error())
		return
	}

	if !h.allowPayment(w, r, app.ThrottlePaymentIntent, app.ClientSubject(clientIP(r))) {
		return
	}

	intent, err := h.checkout.CreatePaymentIntent(r.Context(), *req.Amount, r.Header.Get("Idempotency-Key"))
	if err != nil {
		var providerErr *domain.ProviderError
		if errors.As(err, &providerErr) {
			h.logger.Warn("payment intent rejected by provider", "type", providerErr.Type, "code", providerErr.Code, "error", providerErr.Message)
			writeJSON(w, http.StatusInternalServerError, providerErrorResponse{
				Error: providerErr.Message,
				Type:  providerErr.Type,
				Code:  providerErr.Code,
			})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createPaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	})
}

// allowPayment counts one payment attempt. Throttle failures are logged and let
// the request through.
func (h *Handlers) allowPayment(w http.ResponseWriter, r *http.Request, scope, subject string) bool {
	if h.throttle == nil {
		return true
	}
	decision, err := h.throttle.Allow(r.Context(), scope, subject)
	if err != nil {
		h.logger.Warn("payment throttle unavailable", "scope", scope, "error", err)
		return true
	}
	if !decision.Allowed() {
		h.logger.Info("payment attempt throttled", "scope", scope, "subject", subject, "attempts", decision.Attempts)
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
		writeError(w, http.StatusTooManyRequests, "Too many payment attempts, please try again shortly")
		return false
	}
	return true
}

// StartCheckoutHandler reserves a checkout attempt and returns the client secret.
func (h *Handlers) StartCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req domain.AdoptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.allowPayment(w, r, app.ThrottleCheckout, app.UserSubject(s.UserID)) {
		return
	}

	started, err := h.checkout.StartCheckout(r.Context(), app.StartCheckoutInput{
		UserID:         s.UserID,
		Email:          s.Email,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Request:        req,
	})
	if err != nil {
		var providerErr *domain.ProviderError
		if errors.As(err, &providerErr) {
			writeJSON(w, http.StatusInternalServerError, providerErrorResponse{
				Error: providerErr.Message,
				Type:  providerErr.Type,
				Code:  providerErr.Code,
			})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	resp := struct {
		*app.CheckoutStarted
		PublishableKey string `json:"publishableKey,omitempty"`
	}{started, h.publishableKey}
	writeJSON(w, http.StatusOK, resp)
}

type confirmCheckoutRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// ConfirmCheckoutHandler records the adoption once the payment has succeeded.
func (h *Handlers) ConfirmCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	checkoutID, err := uuid.Parse(chi.URLParam(r, "checkoutID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid checkout id")
		return
	}
	var req confirmCheckoutRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
		writeError(w, http.StatusBadRequest, "paymentIntentId is required")
		return
	}

	result, err := h.checkout.ConfirmCheckout(r.Context(), s.UserID, checkoutID, strings.TrimSpace(req.PaymentIntentID))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(w, status, result.Summary())
}

// StripeWebhookHandler applies signed payment intent notifications.
func (h *Handlers) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil || h.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, stripeclient.ErrWebhookNotConfigured.Error())
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	event, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripeclient.ErrWebhookNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Warn("rejected webhook", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	if err := h.reconciler.HandlePaymentEvent(r.Context(), event.Type, event.Intent); err != nil {
		// A non-2xx makes the provider redeliver.
		h.logger.Error("webhook processing failed", "event_id", event.ID, "event_type", event.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
