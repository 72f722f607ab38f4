// Package metrics provides the Prometheus metrics of the harvester.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all harvester metrics.
	MetricsNamespace = "harvester"

	subsystemIngest    = "ingest"
	subsystemNotifier  = "notifier"
	subsystemScheduler = "scheduler"
)

// Loop states exported by LoopState.
var loopStates = []string{"idle_waiting", "checking", "disabled", "stopped"}

// Metrics holds all Prometheus metrics for the harvester.
type Metrics struct {
	// Ingest metrics
	CyclesTotal          *prometheus.CounterVec
	CycleDurationSeconds *prometheus.HistogramVec
	CandidatesTotal      *prometheus.CounterVec

	// Notifier metrics
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryAttempts *prometheus.HistogramVec

	// Scheduler metrics
	LoopState            *prometheus.GaugeVec
	LastSuccessTimestamp *prometheus.GaugeVec
	LastNewRecords       *prometheus.GaugeVec
}

// NewMetrics creates and registers all harvester metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initIngestMetrics(factory)
	m.initNotifierMetrics(factory)
	m.initSchedulerMetrics(factory)

	return m
}

func (m *Metrics) initIngestMetrics(factory promauto.Factory) {
	m.CyclesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemIngest,
			Name:      "cycles_total",
			Help:      "Total number of ingestion cycles",
		},
		[]string{"source", "status"},
	)

	m.CycleDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemIngest,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~3.4min
		},
		[]string{"source"},
	)

	m.CandidatesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemIngest,
			Name:      "candidates_total",
			Help:      "Candidates processed by outcome",
		},
		[]string{"source", "outcome"},
	)
}

func (m *Metrics) initNotifierMetrics(factory promauto.Factory) {
	m.DeliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemNotifier,
			Name:      "deliveries_total",
			Help:      "Notification deliveries by result",
		},
		[]string{"family", "status"},
	)

	m.DeliveryAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemNotifier,
			Name:      "delivery_attempts",
			Help:      "Attempts used per delivery",
			Buckets:   []float64{1, 2, 3, 5, 10},
		},
		[]string{"family"},
	)
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.LoopState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "loop_state",
			Help:      "Current loop state (1 for the active state)",
		},
		[]string{"source", "state"},
	)

	m.LastSuccessTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		},
		[]string{"source"},
	)

	m.LastNewRecords = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: subsystemScheduler,
			Name:      "last_new_records",
			Help:      "Records inserted by the last completed cycle",
		},
		[]string{"source"},
	)
}

// RecordCycle counts a finished cycle.
func (m *Metrics) RecordCycle(source string, duration time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(source, status).Inc()
	m.CycleDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCandidate counts one candidate outcome.
func (m *Metrics) RecordCandidate(source, outcome string) {
	m.CandidatesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordDelivery counts one delivery.
func (m *Metrics) RecordDelivery(family string, delivered bool, attempts int) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	m.DeliveriesTotal.WithLabelValues(family, status).Inc()
	m.DeliveryAttempts.WithLabelValues(family).Observe(float64(attempts))
}

// SetLoopState marks state as the active state of source's loop.
func (m *Metrics) SetLoopState(source, state string) {
	for _, s := range loopStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.LoopState.WithLabelValues(source, s).Set(value)
	}
}

// SetLastCycle records the outcome of a completed cycle.
func (m *Metrics) SetLastCycle(source string, at time.Time, newRecords int) {
	m.LastSuccessTimestamp.WithLabelValues(source).Set(float64(at.Unix()))
	m.LastNewRecords.WithLabelValues(source).Set(float64(newRecords))
}
