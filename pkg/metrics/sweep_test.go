package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSweepMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSweepMetrics(reg)
	job := "clearance-sweep"

	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.AddProcessed(job, 7)

	if got := testutil.ToFloat64(metrics.success.WithLabelValues(job)); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.failure.WithLabelValues(job)); got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.processed.WithLabelValues(job)); got != 7 {
		t.Fatalf("expected processed=7, got %f", got)
	}
}

func TestSweepMetricsNilSafe(t *testing.T) {
	var metrics *SweepMetrics
	metrics.IncSuccess("x")
	metrics.IncFailure("x")
	metrics.ObserveDuration("x", time.Second)
	metrics.AddProcessed("x", 1)

	empty := NewSweepMetrics(nil)
	empty.IncSuccess("x")
	empty.AddProcessed("x", -1)
}
