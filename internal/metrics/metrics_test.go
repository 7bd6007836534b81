package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PaymentIntent("created")
	m.CheckoutOutcome("recorded")
	m.RecorderStepFailed("aggregate")
	m.ReconcileAction("finalised")
	m.OutboxRelayed("published")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.PaymentIntent("created")
	m.CheckoutOutcome("recorded")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/trees/{treeID}", func(w http.ResponseWriter, r *http.Request) {})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trees/abc", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `tree_adoption_payment_intents_total{result="created"} 1`)
	assert.Contains(t, text, `tree_adoption_checkout_outcomes_total{outcome="recorded"} 1`)
	assert.Contains(t, text, `route="/trees/{treeID}"`)
}
