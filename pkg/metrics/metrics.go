// Package metrics exposes the daemon's prometheus collectors: resource
// utilization per path, booking outcomes, sync-session duration, EXC
// state population and trigger firings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private prometheus.Registry and every metric the
// daemon records through. It is passed by reference to the scheduling loop
// in cmd/bbqued; pkg/accounter, pkg/appmanager and pkg/policy do not record
// metrics themselves. Nil-safe methods let callers hold a *Collector that
// is nil in tests that don't care about metrics.
type Collector struct {
	registry *prometheus.Registry

	resourceUtilization *prometheus.GaugeVec
	resourceTotal       *prometheus.GaugeVec

	bookingOutcomes *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	syncOutcomes    *prometheus.CounterVec

	excState    *prometheus.GaugeVec
	excRequests *prometheus.CounterVec

	triggerFired *prometheus.CounterVec
}

// New builds a Collector with namespace/subsystem prefixes applied to
// every metric name.
func New(namespace, subsystem string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		resourceUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "resource_used",
			Help: "Amount of a resource path currently booked in the system view.",
		}, []string{"path"}),
		resourceTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "resource_total",
			Help: "Total capacity of a resource path.",
		}, []string{"path"}),
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "booking_outcomes_total",
			Help: "Outcomes of resource booking attempts, by result code.",
		}, []string{"code"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "sync_session_duration_seconds",
			Help:    "Wall-clock duration of a scheduling round's sync session.",
			Buckets: prometheus.DefBuckets,
		}),
		syncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "sync_session_outcomes_total",
			Help: "Outcomes of sync sessions, by result code.",
		}, []string{"code"}),
		excState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "exc_count",
			Help: "Number of EXCs currently in a given lifecycle state.",
		}, []string{"state"}),
		excRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "exc_schedule_requests_total",
			Help: "EXC schedule_request calls, by outcome code.",
		}, []string{"code"}),
		triggerFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "trigger_fired_total",
			Help: "Trigger evaluations whose action fired, by tag.",
		}, []string{"tag"}),
	}

	registry.MustRegister(
		c.resourceUtilization,
		c.resourceTotal,
		c.bookingOutcomes,
		c.syncDuration,
		c.syncOutcomes,
		c.excState,
		c.excRequests,
		c.triggerFired,
	)
	return c
}

// Registry returns the underlying prometheus registry, for wiring into a
// promhttp handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// SetResourceLevel records a path's current booked amount and total
// capacity in the system view.
func (c *Collector) SetResourceLevel(path string, used, total uint64) {
	if c == nil {
		return
	}
	c.resourceUtilization.WithLabelValues(path).Set(float64(used))
	c.resourceTotal.WithLabelValues(path).Set(float64(total))
}

// RecordBookingOutcome increments the booking counter for the given
// result code's string form (e.g. "success", "usage_exc").
func (c *Collector) RecordBookingOutcome(code string) {
	if c == nil {
		return
	}
	c.bookingOutcomes.WithLabelValues(code).Inc()
}

// ObserveSyncDuration records one sync session's wall-clock duration and
// its result code.
func (c *Collector) ObserveSyncDuration(seconds float64, code string) {
	if c == nil {
		return
	}
	c.syncDuration.Observe(seconds)
	c.syncOutcomes.WithLabelValues(code).Inc()
}

// SetEXCStateCounts replaces the exc_count gauge for every state with the
// given snapshot, typically taken from an ApplicationManager's state
// queues.
func (c *Collector) SetEXCStateCounts(counts map[string]int) {
	if c == nil {
		return
	}
	for state, n := range counts {
		c.excState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordScheduleRequest increments the schedule-request counter for a
// result code.
func (c *Collector) RecordScheduleRequest(code string) {
	if c == nil {
		return
	}
	c.excRequests.WithLabelValues(code).Inc()
}

// RecordTriggerFired increments the trigger-fired counter for a tag.
func (c *Collector) RecordTriggerFired(tag string) {
	if c == nil {
		return
	}
	c.triggerFired.WithLabelValues(tag).Inc()
}
