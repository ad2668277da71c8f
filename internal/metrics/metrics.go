// Package metrics provides the Prometheus metrics of the bloom service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for identification attempts.
const (
	OutcomeSuccess    = "success"
	OutcomeParseError = "parse_error"
	OutcomeModelError = "model_error"
)

// BloomMetrics contains the metrics of the capture workflow and journal.
type BloomMetrics struct {
	Identifications     *prometheus.CounterVec
	IdentifyLatency     prometheus.Histogram
	WorkflowTransitions *prometheus.CounterVec
	DiscoveriesSaved    prometheus.Counter
	DiscoveriesDeleted  prometheus.Counter
}

// NewBloomMetrics creates the metrics and registers them on registry.
func NewBloomMetrics(registry prometheus.Registerer) (*BloomMetrics, error) {
	m := &BloomMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register bloom metrics: %w", err)
	}
	return m, nil
}

func (m *BloomMetrics) initMetrics() {
	m.Identifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloom_identifications_total",
		Help: "Total number of identification attempts by outcome",
	}, []string{"outcome"})

	m.IdentifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bloom_identify_latency_seconds",
		Help:    "Latency of vision model identification calls in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	m.WorkflowTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloom_workflow_transitions_total",
		Help: "Total number of capture workflow transitions by target step",
	}, []string{"step"})

	m.DiscoveriesSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bloom_discoveries_saved_total",
		Help: "Total number of discoveries saved",
	})

	m.DiscoveriesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bloom_discoveries_deleted_total",
		Help: "Total number of discoveries deleted",
	})
}

// ObserveIdentification records one identification attempt.
func (m *BloomMetrics) ObserveIdentification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Identifications.WithLabelValues(outcome).Inc()
	m.IdentifyLatency.Observe(d.Seconds())
}

func (m *BloomMetrics) ObserveTransition(step string) {
	if m == nil {
		return
	}
	m.WorkflowTransitions.WithLabelValues(step).Inc()
}

func (m *BloomMetrics) IncSaved() {
	if m == nil {
		return
	}
	m.DiscoveriesSaved.Inc()
}

func (m *BloomMetrics) AddDeleted(n int) {
	if m == nil {
		return
	}
	m.DiscoveriesDeleted.Add(float64(n))
}

// Collect implements the prometheus.Collector interface.
func (m *BloomMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Identifications.Collect(ch)
	ch <- m.IdentifyLatency
	m.WorkflowTransitions.Collect(ch)
	ch <- m.DiscoveriesSaved
	ch <- m.DiscoveriesDeleted
}

// Describe implements the prometheus.Collector interface.
func (m *BloomMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Identifications.Describe(ch)
	ch <- m.IdentifyLatency.Desc()
	m.WorkflowTransitions.Describe(ch)
	ch <- m.DiscoveriesSaved.Desc()
	ch <- m.DiscoveriesDeleted.Desc()
}
