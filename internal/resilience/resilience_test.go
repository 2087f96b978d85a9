package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

func testDeps() (observability.Logger, observability.MetricsClient) {
	return observability.NewNoopLogger(), observability.NewNoopMetricsClient()
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter("test", RateLimiterConfig{Limit: 10, Period: time.Second, BurstFactor: 2})
	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow() {
			allowed++
		}
	}
	if allowed == 0 {
		t.Error("expected at least one request to be allowed within burst")
	}
	if allowed > 20 {
		t.Errorf("allowed more requests than attempted: %d", allowed)
	}
}

func TestRateLimiter_AllowNConsumesMultipleTokens(t *testing.T) {
	rl := NewRateLimiter("batch", RateLimiterConfig{Limit: 100, Period: time.Second, BurstFactor: 1})
	if !rl.AllowN(50) {
		t.Error("expected a 50-token batch to be allowed against a 100 burst")
	}
	if rl.AllowN(1000) {
		t.Error("expected an oversized batch request to be denied")
	}
}

func TestRateLimiterManager_CreatesLazilyWithDefaults(t *testing.T) {
	manager := NewRateLimiterManager(nil)
	a := manager.GetRateLimiter("vector_search")
	b := manager.GetRateLimiter("vector_search")
	if a != b {
		t.Error("expected the same limiter instance to be returned for the same name")
	}
}

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	logger, metrics := testDeps()
	cb := NewCircuitBreaker("vector_store_db", CircuitBreakerConfig{
		FailureThreshold:    3,
		FailureRatio:        0.5,
		ResetTimeout:        time.Minute,
		SuccessThreshold:    1,
		TimeoutThreshold:    time.Second,
		MaxRequestsHalfOpen: 1,
		MinimumRequestCount: 1,
	}, logger, metrics)

	failing := func() (interface{}, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(context.Background(), failing)
	}

	if cb.getState() != CircuitBreakerOpen {
		t.Errorf("expected circuit breaker to be open after repeated failures, got %s", cb.getState())
	}

	_, err := cb.Execute(context.Background(), failing)
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestCircuitBreaker_AllowsSuccessesWhenClosed(t *testing.T) {
	logger, metrics := testDeps()
	cb := NewCircuitBreaker("cache_redis", CircuitBreakerConfig{}, logger, metrics)

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("unexpected result: %v", result)
	}
	if cb.getState() != CircuitBreakerClosed {
		t.Errorf("expected circuit breaker to remain closed, got %s", cb.getState())
	}
}

func TestCircuitBreakerManager_ReusesNamedBreakers(t *testing.T) {
	logger, metrics := testDeps()
	manager := NewCircuitBreakerManager(logger, metrics, nil)
	_, err := manager.Execute(context.Background(), "webhook_delivery", func() (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	metricsAll := manager.GetAllMetrics()
	if _, ok := metricsAll["webhook_delivery"]; !ok {
		t.Error("expected metrics for the lazily created webhook_delivery breaker")
	}
}

func TestCounts_RecordSuccessAndFailureTrackConsecutiveStreaks(t *testing.T) {
	c := NewCounts()
	c.RecordSuccess()
	c.RecordSuccess()
	if c.ConsecutiveSuccesses != 2 {
		t.Errorf("expected 2 consecutive successes, got %d", c.ConsecutiveSuccesses)
	}

	c.RecordFailure()
	if c.ConsecutiveSuccesses != 0 {
		t.Error("expected consecutive successes to reset after a failure")
	}
	if c.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", c.ConsecutiveFailures)
	}
	if c.Requests != 3 {
		t.Errorf("expected 3 total requests, got %d", c.Requests)
	}
}

func TestBulkhead_RejectsWhenFullWithoutQueue(t *testing.T) {
	logger, metrics := testDeps()
	bh := NewBulkhead("hybrid_engine", BulkheadConfig{MaxConcurrentCalls: 1, MaxQueueDepth: 0}, logger, metrics)
	defer bh.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = bh.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	_, err := bh.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "should not run", nil
	})
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	close(release)
}

func TestBulkhead_QueuesAndCompletesWithinCapacity(t *testing.T) {
	logger, metrics := testDeps()
	bh := NewBulkhead("vector_store_db", BulkheadConfig{
		MaxConcurrentCalls: 1,
		MaxQueueDepth:      5,
		QueueTimeout:       time.Second,
		EnableBackpressure: true,
	}, logger, metrics)
	defer bh.Close()

	result, err := bh.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("unexpected result: %v", result)
	}

	stats := bh.GetStats()
	if stats.CompletedRequests != 1 {
		t.Errorf("expected 1 completed request, got %d", stats.CompletedRequests)
	}
}

func TestBulkheadManager_UsesDomainDefaults(t *testing.T) {
	logger, metrics := testDeps()
	manager := NewBulkheadManager(DefaultBulkheadConfigs, logger, metrics)
	defer manager.Close()

	bh := manager.GetBulkhead("hybrid_engine")
	stats := bh.GetStats()
	if stats.MaxConcurrent != 100 {
		t.Errorf("expected hybrid_engine bulkhead to allow 100 concurrent calls, got %d", stats.MaxConcurrent)
	}
}
