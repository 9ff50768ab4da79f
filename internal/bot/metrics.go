package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	UpdatesProcessed     *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics registers the bot collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "maidlink_operator_bot_updates_total",
			Help: "Telegram updates handled by the operator bot, by kind",
		}, []string{"kind"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "maidlink_operator_bot_errors_total",
			Help: "Panics recovered while handling updates",
		}),
		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "maidlink_operator_bot_update_processing_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
