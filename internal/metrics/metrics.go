// Package metrics provides Prometheus metrics for report notification dispatch.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics groups the collectors for the notification pipeline.
// All methods are safe to call on a nil receiver, which records nothing.
type DispatchMetrics struct {
	EventsTotal         *prometheus.CounterVec // Handled change events by final state
	InvocationErrors    *prometheus.CounterVec // Failed invocations by stage
	DeliveriesTotal     *prometheus.CounterVec // Per-token send results by error code
	PrunedTokensTotal   *prometheus.CounterVec // Token deletions by result
	DispatchDuration    prometheus.Histogram   // Latency of the batched send
	InflightInvocations prometheus.Gauge       // Invocations currently running
}

// NewDispatchMetrics creates the collectors and registers them on registry.
func NewDispatchMetrics(registry prometheus.Registerer) (*DispatchMetrics, error) {
	m := &DispatchMetrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_notifier_events_total",
				Help: "Report status change events handled, by final invocation state",
			},
			[]string{"state"},
		),
		InvocationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_notifier_invocation_errors_total",
				Help: "Invocations that ended in an error, by failing stage",
			},
			[]string{"stage"}, // stage: token_lookup, dispatch, timeout
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_notifier_deliveries_total",
				Help: "Per-token delivery results reported by FCM",
			},
			[]string{"result", "error_code"}, // result: success, failure
		),
		PrunedTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_notifier_pruned_tokens_total",
				Help: "Invalid push token deletions by result",
			},
			[]string{"result"}, // result: deleted, failed
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "report_notifier_dispatch_duration_seconds",
				Help:    "Time taken to load tokens and send one multicast notification",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
		),
		InflightInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "report_notifier_inflight_invocations",
				Help: "Number of change events currently being handled",
			},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
	}

	return m, nil
}

// Describe implements prometheus.Collector.
func (m *DispatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.EventsTotal.Describe(ch)
	m.InvocationErrors.Describe(ch)
	m.DeliveriesTotal.Describe(ch)
	m.PrunedTokensTotal.Describe(ch)
	m.DispatchDuration.Describe(ch)
	m.InflightInvocations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *DispatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.EventsTotal.Collect(ch)
	m.InvocationErrors.Collect(ch)
	m.DeliveriesTotal.Collect(ch)
	m.PrunedTokensTotal.Collect(ch)
	m.DispatchDuration.Collect(ch)
	m.InflightInvocations.Collect(ch)
}

// RecordEvent counts an invocation that finished in state.
func (m *DispatchMetrics) RecordEvent(state string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(state).Inc()
}

// RecordInvocationError counts an invocation that failed at stage.
func (m *DispatchMetrics) RecordInvocationError(stage string) {
	if m == nil {
		return
	}
	m.InvocationErrors.WithLabelValues(stage).Inc()
}

// RecordDelivery counts one per-token result. errorCode is empty on success.
func (m *DispatchMetrics) RecordDelivery(success bool, errorCode string) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.DeliveriesTotal.WithLabelValues(result, errorCode).Inc()
}

// RecordPrune counts token deletions.
func (m *DispatchMetrics) RecordPrune(deleted, failed int) {
	if m == nil {
		return
	}
	m.PrunedTokensTotal.WithLabelValues("deleted").Add(float64(deleted))
	m.PrunedTokensTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveDispatch records how long a dispatch took.
func (m *DispatchMetrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

// InvocationStarted increments the in-flight gauge and returns a func that
// decrements it.
func (m *DispatchMetrics) InvocationStarted() func() {
	if m == nil {
		return func() {}
	}
	m.InflightInvocations.Inc()
	return m.InflightInvocations.Dec
}
