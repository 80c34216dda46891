package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "talos"
)

// Metrics holds all Prometheus metrics for the autoscaler
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	EvaluationErrors   *prometheus.CounterVec

	// Worker metrics
	WorkersActive  prometheus.Gauge
	WorkersDesired prometheus.Gauge

	// Scaling metrics
	ScaleUpEvents     prometheus.Counter
	ScaleDownEvents   prometheus.Counter
	CooldownDeferrals prometheus.Counter

	// Queue metrics
	QueueDepth        prometheus.Gauge
	QueueDepthSamples prometheus.Histogram

	// Broker API metrics
	BrokerAPIRequests *prometheus.CounterVec
	BrokerAPIDuration prometheus.Histogram

	// Provider metrics
	ProviderOperations *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec

	// System metrics
	ControllerInfo *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		// Evaluation metrics
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of autoscaler evaluation ticks",
			},
			[]string{"status"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of autoscaler evaluation ticks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		EvaluationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Total number of evaluation errors",
			},
			[]string{"error_type"},
		),

		// Worker metrics
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_active",
				Help:      "Number of workers currently provisioned",
			},
		),
		WorkersDesired: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_desired",
				Help:      "Worker count computed by the sizing policy",
			},
		),

		// Scaling metrics
		ScaleUpEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scale_up_events_total",
				Help:      "Total number of grow actuations",
			},
		),
		ScaleDownEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scale_down_events_total",
				Help:      "Total number of shrink actuations",
			},
		),
		CooldownDeferrals: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cooldown_deferrals_total",
				Help:      "Ticks where a desired change was deferred by cooldown",
			},
		),

		// Queue metrics
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current queue depth (pending tasks)",
			},
		),
		QueueDepthSamples: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_depth_samples",
				Help:      "Distribution of queue depth samples",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		// Broker API metrics
		BrokerAPIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_api_requests_total",
				Help:      "Total number of broker admin API requests",
			},
			[]string{"status"},
		),
		BrokerAPIDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "broker_api_duration_seconds",
				Help:      "Duration of broker admin API requests",
				Buckets:   prometheus.DefBuckets,
			},
		),

		// Provider metrics
		ProviderOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_operations_total",
				Help:      "Total number of provider operations",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_operation_duration_seconds",
				Help:      "Duration of provider operations",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"provider", "operation"},
		),

		// System metrics
		ControllerInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "controller_info",
				Help:      "Information about the controller",
			},
			[]string{"version", "pool", "mode"},
		),
	}

	return m
}
