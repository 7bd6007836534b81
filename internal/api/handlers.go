package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Samarth40/tree-adoption-sub000/internal/app"
	"github.com/Samarth40/tree-adoption-sub000/internal/domain"
	"github.com/Samarth40/tree-adoption-sub000/internal/session"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/stripeclient"
)

// WebhookParser verifies and decodes provider webhooks.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*stripeclient.WebhookEvent, error)
}

// Deps are the services behind the HTTP handlers. Optional integrations may be nil.
type Deps struct {
	Checkout   *app.CheckoutService
	Reconciler *app.Reconciler
	Community  *app.CommunityService
	Dashboard  *app.DashboardService
	Sessions   *session.Manager
	Gate       *app.Gate
	Throttle   app.PaymentThrottle
	Webhooks   WebhookParser
	Logger     *slog.Logger

	StripePublishableKey string
}

// Handlers holds the dependencies for the HTTP handlers.
type Handlers struct {
	checkout   *app.CheckoutService
	reconciler *app.Reconciler
	community  *app.CommunityService
	dashboard  *app.DashboardService
	sessions   *session.Manager
	gate       *app.Gate
	throttle   app.PaymentThrottle
	webhooks   WebhookParser
	logger     *slog.Logger

	publishableKey string
}

func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := d.Gate
	if gate == nil {
		gate = &app.Gate{}
	}
	return &Handlers{
		checkout:       d.Checkout,
		reconciler:     d.Reconciler,
		community:      d.Community,
		dashboard:      d.Dashboard,
		sessions:       d.Sessions,
		gate:           gate,
		throttle:       d.Throttle,
		webhooks:       d.Webhooks,
		logger:         logger.With("component", "api"),
		publishableKey: d.StripePublishableKey,
	}
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

// mapError converts a service error to a status and client message.
func mapError(err error) (int, string) {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, validation.Error()
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return http.StatusBadGateway, providerErr.Message
	}

	switch {
	case errors.Is(err, app.ErrRecordFailed):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrIntentMismatch):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionNotFound), errors.Is(err, app.ErrGateLocked):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, app.ErrPaymentNotCompleted):
		return http.StatusPaymentRequired, app.ErrPaymentNotCompleted.Error()
	case errors.Is(err, app.ErrCheckoutForbidden), errors.Is(err, app.ErrAdoptionForbidden), errors.Is(err, store.ErrNotAuthor):
		return http.StatusForbidden, err.Error()
	case app.IsNotFound(err), errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, app.ErrTreeUnavailable), errors.Is(err, app.ErrCheckoutFailed), errors.Is(err, store.ErrTreeAlreadyAdopted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, app.ErrNFTUnverified):
		return http.StatusUnprocessableEntity, app.ErrNFTUnverified.Error()
	case errors.Is(err, app.ErrInsightFailed):
		return http.StatusBadGateway, app.ErrInsightFailed.Error()
	case errors.Is(err, app.ErrInsightNotConfigured), errors.Is(err, app.ErrNFTNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, app.ErrPaymentNotConfigured):
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, message)
}

// currentSession returns the session placed by SessionMiddleware.
func (h *Handlers) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := session.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Session required")
		return nil, false
	}
	return s, true
}

func authorOf(s *session.Session) app.Author {
	name := s.DisplayName
	if name == "" {
		name = s.Email
	}
	return app.Author{UserID: s.UserID, Name: name}
}
