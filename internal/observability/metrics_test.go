package observability

import (
	"testing"
	"time"
)

func TestPrometheusMetricsClient_RecordOperations(t *testing.T) {
	metrics := NewPrometheusMetricsClient("recengine", "test", nil)

	metrics.RecordCounter("custom_total", 1, map[string]string{"label": "value"})
	metrics.RecordGauge("custom_gauge", 2, map[string]string{"label": "value"})
	metrics.RecordHistogram("custom_histogram", 0.5, map[string]string{"label": "value"})
	metrics.RecordTimer("custom_timer", 10*time.Millisecond, map[string]string{"label": "value"})

	metrics.RecordCacheOperation("l1", "get", true, time.Millisecond)
	metrics.RecordCacheOperation("l2", "get", false, time.Millisecond)
	metrics.RecordVectorOperation("find_similar_entities", true, 5*time.Millisecond)
	metrics.RecordRecommendationRequest("acme", "hybrid", true, 20*time.Millisecond)

	if err := metrics.Close(); err != nil {
		t.Errorf("expected no error from Close, got: %v", err)
	}
}

func TestPrometheusMetricsClient_StartTimerRecordsDuration(t *testing.T) {
	metrics := NewPrometheusMetricsClient("recengine", "test", nil)

	stop := metrics.StartTimer("operation_duration_seconds", map[string]string{"operation": "lookup"})
	time.Sleep(time.Millisecond)
	stop()
}

func TestPrometheusMetricsClient_IndependentRegistriesDoNotCollide(t *testing.T) {
	// Two clients sharing namespace/subsystem but private registries must
	// not panic on duplicate collector registration.
	a := NewPrometheusMetricsClient("recengine", "test", nil)
	b := NewPrometheusMetricsClient("recengine", "test", nil)

	a.RecordCounter("vector_operations_total", 1, map[string]string{"operation": "x", "result": "success"})
	b.RecordCounter("vector_operations_total", 1, map[string]string{"operation": "x", "result": "success"})
}

func TestNoopMetricsClient_DoesNotPanic(t *testing.T) {
	metrics := NewNoopMetricsClient()

	metrics.RecordCounter("x", 1, nil)
	metrics.RecordGauge("x", 1, nil)
	metrics.RecordHistogram("x", 1, nil)
	metrics.RecordTimer("x", time.Second, nil)
	metrics.RecordCacheOperation("l1", "get", true, time.Millisecond)
	metrics.RecordVectorOperation("find_similar_entities", true, time.Millisecond)
	metrics.RecordRecommendationRequest("acme", "hybrid", false, time.Millisecond)

	stop := metrics.StartTimer("x", nil)
	stop()

	if err := metrics.Close(); err != nil {
		t.Errorf("expected no error from Close, got: %v", err)
	}
}
