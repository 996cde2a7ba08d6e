// Package metrics holds the Prometheus collectors shared by the API and the webhook engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	WebhookAttempts   *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	WebhookRetries    prometheus.Gauge
	RateLimitDecision *prometheus.CounterVec
	AuthFailures      prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "webhook",
			Name:      "attempts_total",
			Help:      "Webhook HTTP attempts by outcome (success, http_error, transport_error).",
		}, []string{"outcome"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by terminal state (delivered, exhausted, dropped).",
		}, []string{"state"}),
		WebhookRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dealflow",
			Subsystem: "webhook",
			Name:      "scheduled_retries",
			Help:      "Retries currently waiting on a timer. Lost if the process exits.",
		}),
		RateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions (allowed, denied, fail_open).",
		}, []string{"result"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "apikey",
			Name:      "auth_failures_total",
			Help:      "Rejected API key authentications.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		m.WebhookAttempts,
		m.WebhookDeliveries,
		m.WebhookRetries,
		m.RateLimitDecision,
		m.AuthFailures,
		m.HTTPRequests,
	)
	return m
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
