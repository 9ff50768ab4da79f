package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maidlink"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Applied state machine transitions.",
		},
		[]string{"entity", "to"},
	)

	reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconciles_total",
			Help:      "Payment reconciliations by outcome.",
		},
		[]string{"source", "outcome"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries by event type and result.",
		},
		[]string{"type", "result"},
	)

	backgroundChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_checks_total",
			Help:      "Background check observations by normalized status.",
		},
		[]string{"status"},
	)

	collaboratorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Failures talking to external systems.",
		},
		[]string{"collaborator"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, reconciles, webhooks, backgroundChecks, collaboratorErrors)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncTransition(entity, to string) {
	transitions.WithLabelValues(entity, to).Inc()
}

func IncReconcile(source, outcome string) {
	reconciles.WithLabelValues(source, outcome).Inc()
}

func IncWebhook(eventType, result string) {
	webhooks.WithLabelValues(eventType, result).Inc()
}

func IncBackgroundCheck(status string) {
	backgroundChecks.WithLabelValues(status).Inc()
}

func IncCollaboratorError(name string) {
	collaboratorErrors.WithLabelValues(name).Inc()
}
