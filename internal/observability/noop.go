package observability

import "time"

// noopMetricsClient discards every metric. Used as the default in unit
// tests that do not assert on metrics output.
type noopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that does nothing.
func NewNoopMetricsClient() MetricsClient { return &noopMetricsClient{} }

func (noopMetricsClient) RecordCounter(string, float64, map[string]string)   {}
func (noopMetricsClient) RecordGauge(string, float64, map[string]string)    {}
func (noopMetricsClient) RecordHistogram(string, float64, map[string]string) {}
func (noopMetricsClient) RecordTimer(string, time.Duration, map[string]string) {}
func (noopMetricsClient) RecordCacheOperation(string, string, bool, time.Duration)    {}
func (noopMetricsClient) RecordVectorOperation(string, bool, time.Duration)           {}
func (noopMetricsClient) RecordRecommendationRequest(string, string, bool, time.Duration) {}
func (noopMetricsClient) StartTimer(string, map[string]string) func() {
	return func() {}
}
func (noopMetricsClient) Close() error { return nil }
