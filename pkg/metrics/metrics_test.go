package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	c := New("bbque", "rtrm")
	require.NotNil(t, c)
	require.NotNil(t, c.Registry())
}

func TestSetResourceLevelExposedOverHTTP(t *testing.T) {
	c := New("bbque", "rtrm")
	c.SetResourceLevel("sys.cpu.pe", 50, 100)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `bbque_rtrm_resource_used{path="sys.cpu.pe"} 50`)
	assert.Contains(t, body, `bbque_rtrm_resource_total{path="sys.cpu.pe"} 100`)
}

func TestRecordBookingOutcomeIncrementsByCode(t *testing.T) {
	c := New("bbque", "rtrm")
	c.RecordBookingOutcome("success")
	c.RecordBookingOutcome("success")
	c.RecordBookingOutcome("usage_exc")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `bbque_rtrm_booking_outcomes_total{code="success"} 2`)
	assert.Contains(t, body, `bbque_rtrm_booking_outcomes_total{code="usage_exc"} 1`)
}

func TestSetEXCStateCountsReflectsSnapshot(t *testing.T) {
	c := New("bbque", "rtrm")
	c.SetEXCStateCounts(map[string]int{"running": 3, "ready": 1})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `bbque_rtrm_exc_count{state="running"} 3`)
	assert.Contains(t, body, `bbque_rtrm_exc_count{state="ready"} 1`)
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetResourceLevel("p", 1, 2)
		c.RecordBookingOutcome("success")
		c.ObserveSyncDuration(0.1, "success")
		c.SetEXCStateCounts(map[string]int{"running": 1})
		c.RecordScheduleRequest("success")
		c.RecordTriggerFired("over_threshold")
	})
	assert.Nil(t, c.Registry())
}
