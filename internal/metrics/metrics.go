// Package metrics exposes the service's Prometheus collectors. A nil *Metrics
// is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tree_adoption"

// Metrics holds the service collectors.
type Metrics struct {
	registry         *prometheus.Registry
	paymentIntents   *prometheus.CounterVec
	checkoutOutcomes *prometheus.CounterVec
	recorderFailures *prometheus.CounterVec
	reconcileRuns    *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		paymentIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_total",
			Help:      "Payment intents requested from the provider, by result.",
		}, []string{"result"}),
		checkoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_outcomes_total",
			Help:      "Checkout confirmations, by outcome.",
		}, []string{"outcome"}),
		recorderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_step_failures_total",
			Help:      "Adoption recorder step failures, by step.",
		}, []string{"step"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_actions_total",
			Help:      "Reconciler actions on checkout attempts, by action.",
		}, []string{"action"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages relayed to the broker, by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.paymentIntents,
		m.checkoutOutcomes,
		m.recorderFailures,
		m.reconcileRuns,
		m.outboxPublished,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PaymentIntent(result string) {
	if m == nil {
		return
	}
	m.paymentIntents.WithLabelValues(result).Inc()
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.checkoutOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecorderStepFailed(step string) {
	if m == nil {
		return
	}
	m.recorderFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) ReconcileAction(action string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(action).Inc()
}

func (m *Metrics) OutboxRelayed(result string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled with the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
