package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsClient implements MetricsClient on top of a Prometheus
// registry, lazily creating collectors per metric name so call sites never
// need to pre-declare them.
type PrometheusMetricsClient struct {
	namespace string
	subsystem string
	factory   promauto.Factory

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsClient creates a metrics client registered against reg
// and pre-registers the handful of series every component touches. Passing
// nil registers against a fresh, private registry rather than the global
// default one, which keeps concurrent tests and multiple instances from
// colliding on duplicate collector registration.
func NewPrometheusMetricsClient(namespace, subsystem string, reg *prometheus.Registry) *PrometheusMetricsClient {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &PrometheusMetricsClient{
		namespace:  namespace,
		subsystem:  subsystem,
		factory:    promauto.With(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	c.getOrCreateCounter("cache_operations_total", []string{"tier", "operation", "result"})
	c.getOrCreateHistogram("cache_operation_duration_seconds", []string{"tier", "operation"})
	c.getOrCreateCounter("vector_operations_total", []string{"operation", "result"})
	c.getOrCreateHistogram("vector_operation_duration_seconds", []string{"operation"})
	c.getOrCreateCounter("recommendation_requests_total", []string{"tenant_id", "strategy", "cache_hit"})
	c.getOrCreateHistogram("recommendation_request_duration_seconds", []string{"tenant_id", "strategy"})
	return c
}

func (c *PrometheusMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	counter := c.getOrCreateCounter(name, labelNames(labels))
	counter.With(prometheus.Labels(labels)).Add(value)
}

func (c *PrometheusMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	gauge := c.getOrCreateGauge(name, labelNames(labels))
	gauge.With(prometheus.Labels(labels)).Set(value)
}

func (c *PrometheusMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	histogram := c.getOrCreateHistogram(name, labelNames(labels))
	histogram.With(prometheus.Labels(labels)).Observe(value)
}

func (c *PrometheusMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(name, duration.Seconds(), labels)
}

func (c *PrometheusMetricsClient) RecordCacheOperation(tier, operation string, hit bool, duration time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	labels := map[string]string{"tier": tier, "operation": operation, "result": result}
	c.RecordCounter("cache_operations_total", 1, labels)
	c.RecordHistogram("cache_operation_duration_seconds", duration.Seconds(), map[string]string{"tier": tier, "operation": operation})
}

func (c *PrometheusMetricsClient) RecordVectorOperation(operation string, success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "success"
	}
	c.RecordCounter("vector_operations_total", 1, map[string]string{"operation": operation, "result": result})
	c.RecordHistogram("vector_operation_duration_seconds", duration.Seconds(), map[string]string{"operation": operation})
}

func (c *PrometheusMetricsClient) RecordRecommendationRequest(tenantID, strategy string, cacheHit bool, duration time.Duration) {
	c.RecordCounter("recommendation_requests_total", 1, map[string]string{
		"tenant_id": tenantID,
		"strategy":  strategy,
		"cache_hit": fmt.Sprintf("%t", cacheHit),
	})
	c.RecordHistogram("recommendation_request_duration_seconds", duration.Seconds(), map[string]string{
		"tenant_id": tenantID,
		"strategy":  strategy,
	})
}

func (c *PrometheusMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.RecordTimer(name, time.Since(start), labels)
	}
}

func (c *PrometheusMetricsClient) Close() error { return nil }

func (c *PrometheusMetricsClient) getOrCreateCounter(name string, labels []string) *prometheus.CounterVec {
	c.mu.RLock()
	if counter, ok := c.counters[name]; ok {
		c.mu.RUnlock()
		return counter
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter := c.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      fmt.Sprintf("Counter for %s", name),
	}, labels)
	c.counters[name] = counter
	return counter
}

func (c *PrometheusMetricsClient) getOrCreateGauge(name string, labels []string) *prometheus.GaugeVec {
	c.mu.RLock()
	if gauge, ok := c.gauges[name]; ok {
		c.mu.RUnlock()
		return gauge
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gauge, ok := c.gauges[name]; ok {
		return gauge
	}
	gauge := c.factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      fmt.Sprintf("Gauge for %s", name),
	}, labels)
	c.gauges[name] = gauge
	return gauge
}

func (c *PrometheusMetricsClient) getOrCreateHistogram(name string, labels []string) *prometheus.HistogramVec {
	c.mu.RLock()
	if histogram, ok := c.histograms[name]; ok {
		c.mu.RUnlock()
		return histogram
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if histogram, ok := c.histograms[name]; ok {
		return histogram
	}
	histogram := c.factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Subsystem: c.subsystem,
		Name:      name,
		Help:      fmt.Sprintf("Histogram for %s", name),
		Buckets:   prometheus.DefBuckets,
	}, labels)
	c.histograms[name] = histogram
	return histogram
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}
