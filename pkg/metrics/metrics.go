// Package metrics holds the Prometheus collectors shared by the server and
// the background worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Webhook metrics
	WebhookEventsTotal *prometheus.CounterVec
	WebhookDuration    *prometheus.HistogramVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec

	// Background jobs
	JobsTotal *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meetai"
	}

	registry := prometheus.NewRegistry()

	webhookEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events handled, by event kind and response status",
		},
		[]string{"event", "status"},
	)

	webhookDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Webhook handling duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"event"},
	)

	llmRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Chat completion requests, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	llmRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Chat completion latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs processed, by job name and outcome",
		},
		[]string{"name", "outcome"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	registry.MustRegister(
		webhookEventsTotal,
		webhookDuration,
		llmRequestsTotal,
		llmRequestDuration,
		jobsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:           registry,
		WebhookEventsTotal: webhookEventsTotal,
		WebhookDuration:    webhookDuration,
		LLMRequestsTotal:   llmRequestsTotal,
		LLMRequestDuration: llmRequestDuration,
		JobsTotal:          jobsTotal,
		ErrorsTotal:        errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWebhook records one handled webhook event.
func (m *Metrics) RecordWebhook(event string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(event, strconv.Itoa(status)).Inc()
	m.WebhookDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordLLM records a completed chat completion call.
func (m *Metrics) RecordLLM(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordJob records a processed background job.
func (m *Metrics) RecordJob(name, outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(name, outcome).Inc()
}

// RecordError records an error.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
