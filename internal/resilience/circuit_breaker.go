package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	CircuitBreakerClosed   CircuitBreakerState = iota // Normal operation, requests allowed
	CircuitBreakerOpen                                // Tripped, requests blocked
	CircuitBreakerHalfOpen                            // Testing if the dependency recovered
)

var (
	ErrCircuitBreakerOpen    = errors.New("circuit breaker is open")
	ErrCircuitBreakerTimeout = errors.New("circuit breaker timeout")
	ErrMaxRequestsExceeded   = errors.New("max requests exceeded in half-open state")
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the tripping/recovery thresholds for a breaker.
type CircuitBreakerConfig struct {
	FailureThreshold    int           // Consecutive failures before tripping
	FailureRatio        float64       // Failure ratio threshold (0.0-1.0)
	ResetTimeout        time.Duration // Time in Open before probing Half-Open
	SuccessThreshold    int           // Consecutive successes needed to close
	TimeoutThreshold    time.Duration // Per-call timeout
	MaxRequestsHalfOpen int           // Concurrent probes allowed in Half-Open
	MinimumRequestCount int           // Requests needed before the failure ratio applies
}

// CircuitBreaker guards a single downstream dependency (the vector store
// database, the Redis cache, webhook delivery) from cascading failures.
type CircuitBreaker struct {
	name            string
	config          CircuitBreakerConfig
	state           atomic.Value // CircuitBreakerState
	counts          atomic.Value // *Counts
	lastFailureTime atomic.Value // time.Time
	lastStateChange atomic.Value // time.Time

	halfOpenRequests atomic.Int32

	mutex sync.RWMutex

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCircuitBreaker creates a circuit breaker, applying sane defaults for
// any zero-valued config field.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger observability.Logger, metrics observability.MetricsClient) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.TimeoutThreshold == 0 {
		config.TimeoutThreshold = 5 * time.Second
	}
	if config.MaxRequestsHalfOpen == 0 {
		config.MaxRequestsHalfOpen = 5
	}
	if config.MinimumRequestCount == 0 {
		config.MinimumRequestCount = 10
	}

	cb := &CircuitBreaker{name: name, config: config, logger: logger, metrics: metrics}
	cb.state.Store(CircuitBreakerClosed)
	initialCounts := NewCounts()
	cb.counts.Store(&initialCounts)
	cb.lastFailureTime.Store(time.Time{})
	cb.lastStateChange.Store(time.Now())
	cb.recordStateMetric(CircuitBreakerClosed)

	return cb
}

// Execute runs fn with circuit breaker protection: rejects immediately when
// Open, bounds concurrency when Half-Open, and enforces TimeoutThreshold.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	if err := cb.canExecute(); err != nil {
		cb.recordFailure()
		cb.recordMetrics("rejected", false, time.Since(start))
		cb.logger.Error("circuit breaker execution rejected", map[string]interface{}{
			"error": err.Error(),
			"state": cb.getState().String(),
			"name":  cb.name,
		})
		return nil, errors.Wrap(err, "circuit breaker execution failed")
	}

	if cb.getState() == CircuitBreakerHalfOpen {
		cb.halfOpenRequests.Add(1)
		defer cb.halfOpenRequests.Add(-1)
	}

	type result struct {
		value interface{}
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		value, err := fn()
		resultChan <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		cb.recordFailure()
		cb.recordMetrics("timeout", false, time.Since(start))
		return nil, errors.Wrap(ctx.Err(), "context cancelled")

	case <-time.After(cb.config.TimeoutThreshold):
		cb.recordFailure()
		cb.recordMetrics("timeout", false, time.Since(start))
		return nil, ErrCircuitBreakerTimeout

	case res := <-resultChan:
		if res.err != nil {
			cb.recordFailure()
			cb.recordMetrics("failure", false, time.Since(start))
			return nil, errors.Wrap(res.err, "circuit breaker execution failed")
		}
		cb.recordSuccess()
		cb.recordMetrics("success", true, time.Since(start))
		return res.value, nil
	}
}

func (cb *CircuitBreaker) canExecute() error {
	switch state := cb.getState(); state {
	case CircuitBreakerClosed:
		return nil

	case CircuitBreakerOpen:
		lastFailure := cb.lastFailureTime.Load().(time.Time)
		if time.Since(lastFailure) > cb.config.ResetTimeout {
			cb.transitionTo(CircuitBreakerHalfOpen)
			return nil
		}
		return ErrCircuitBreakerOpen

	case CircuitBreakerHalfOpen:
		if int(cb.halfOpenRequests.Load()) >= cb.config.MaxRequestsHalfOpen {
			return ErrMaxRequestsExceeded
		}
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", state)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	counts := cb.getCounts()
	counts.RecordSuccess()
	cb.counts.Store(counts)

	if cb.getState() == CircuitBreakerHalfOpen && counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.transitionTo(CircuitBreakerClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	counts := cb.getCounts()
	counts.RecordFailure()
	cb.counts.Store(counts)
	cb.lastFailureTime.Store(time.Now())

	switch cb.getState() {
	case CircuitBreakerClosed:
		if counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitBreakerOpen)
		} else if counts.Requests >= cb.config.MinimumRequestCount {
			if failureRatio := float64(counts.Failures) / float64(counts.Requests); failureRatio >= cb.config.FailureRatio {
				cb.transitionTo(CircuitBreakerOpen)
			}
		}
	case CircuitBreakerHalfOpen:
		cb.transitionTo(CircuitBreakerOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	oldState := cb.getState()
	if oldState == newState {
		return
	}

	cb.state.Store(newState)
	cb.lastStateChange.Store(time.Now())

	if newState == CircuitBreakerHalfOpen {
		newCounts := NewCounts()
		cb.counts.Store(&newCounts)
		cb.halfOpenRequests.Store(0)
	}

	cb.logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.name,
		"from": oldState.String(),
		"to":   newState.String(),
	})

	cb.recordStateChangeMetric(oldState, newState)
	cb.recordStateMetric(newState)
}

func (cb *CircuitBreaker) getState() CircuitBreakerState {
	return cb.state.Load().(CircuitBreakerState)
}

func (cb *CircuitBreaker) getCounts() *Counts {
	counts := cb.counts.Load().(*Counts)
	snapshot := *counts
	return &snapshot
}

func (cb *CircuitBreaker) recordMetrics(result string, success bool, duration time.Duration) {
	labels := map[string]string{"name": cb.name, "state": cb.getState().String(), "status": result}
	cb.metrics.RecordCounter("circuit_breaker_requests_total", 1, labels)
	cb.metrics.RecordHistogram("circuit_breaker_request_duration_seconds", duration.Seconds(), labels)
	if success {
		cb.metrics.RecordCounter("circuit_breaker_successes_total", 1, labels)
	} else {
		cb.metrics.RecordCounter("circuit_breaker_failures_total", 1, labels)
	}
}

func (cb *CircuitBreaker) recordStateChangeMetric(from, to CircuitBreakerState) {
	cb.metrics.RecordCounter("circuit_breaker_state_changes_total", 1, map[string]string{
		"name": cb.name, "from": from.String(), "to": to.String(),
	})
}

func (cb *CircuitBreaker) recordStateMetric(state CircuitBreakerState) {
	cb.metrics.RecordGauge("circuit_breaker_current_state", float64(state), map[string]string{"name": cb.name})
}

// GetMetrics returns a point-in-time snapshot for diagnostics/health checks.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	counts := cb.getCounts()
	lastFailure := cb.lastFailureTime.Load().(time.Time)

	return map[string]interface{}{
		"name":                    cb.name,
		"state":                   cb.getState().String(),
		"requests":                counts.Requests,
		"successes":               counts.Successes,
		"failures":                counts.Failures,
		"consecutive_successes":   counts.ConsecutiveSuccesses,
		"consecutive_failures":    counts.ConsecutiveFailures,
		"last_state_change":       cb.lastStateChange.Load().(time.Time),
		"last_failure":            lastFailure,
		"time_since_last_failure": time.Since(lastFailure).Seconds(),
	}
}

// Reset forces the breaker back to Closed, e.g. from an operator endpoint.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.transitionTo(CircuitBreakerClosed)
	resetCounts := NewCounts()
	cb.counts.Store(&resetCounts)
	cb.halfOpenRequests.Store(0)

	cb.logger.Info("circuit breaker manually reset", map[string]interface{}{"name": cb.name})
}

// CircuitBreakerManager lazily creates and tracks named circuit breakers.
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewCircuitBreakerManager creates a manager seeded with the given named
// configurations.
func NewCircuitBreakerManager(logger observability.Logger, metrics observability.MetricsClient, defaultConfigs map[string]CircuitBreakerConfig) *CircuitBreakerManager {
	manager := &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker), logger: logger, metrics: metrics}
	for name, config := range defaultConfigs {
		manager.breakers[name] = NewCircuitBreaker(name, config, logger, metrics)
	}
	return manager
}

// GetCircuitBreaker returns the named breaker, creating one with the
// package defaults if it does not exist yet.
func (m *CircuitBreakerManager) GetCircuitBreaker(name string) *CircuitBreaker {
	m.mutex.RLock()
	breaker, exists := m.breakers[name]
	m.mutex.RUnlock()
	if exists {
		return breaker
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if breaker, exists = m.breakers[name]; exists {
		return breaker
	}

	breaker = NewCircuitBreaker(name, CircuitBreakerConfig{}, m.logger, m.metrics)
	m.breakers[name] = breaker
	return breaker
}

// Execute runs fn through the named circuit breaker.
func (m *CircuitBreakerManager) Execute(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	return m.GetCircuitBreaker(name).Execute(ctx, fn)
}

// GetAllMetrics returns a snapshot of every managed breaker.
func (m *CircuitBreakerManager) GetAllMetrics() map[string]map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metrics := make(map[string]map[string]interface{}, len(m.breakers))
	for name, breaker := range m.breakers {
		metrics[name] = breaker.GetMetrics()
	}
	return metrics
}

// ResetAll resets every managed breaker to Closed.
func (m *CircuitBreakerManager) ResetAll() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, breaker := range m.breakers {
		breaker.Reset()
	}
}
