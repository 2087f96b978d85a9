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

var (
	ErrBulkheadFull            = errors.New("bulkhead is full, cannot acquire resource")
	ErrBulkheadQueueFull       = errors.New("bulkhead queue is full, request rejected")
	ErrBulkheadTimeout         = errors.New("timeout waiting for bulkhead resource")
	ErrBulkheadContextCanceled = errors.New("context canceled while waiting for bulkhead resource")
)

// BulkheadConfig bounds concurrent access to a shared resource.
type BulkheadConfig struct {
	// MaxConcurrentCalls is the maximum number of concurrent calls allowed.
	MaxConcurrentCalls int

	// MaxQueueDepth is the maximum number of calls that can wait when all
	// resources are in use. Zero disables queueing.
	MaxQueueDepth int

	// QueueTimeout bounds how long a queued call may wait.
	QueueTimeout time.Duration

	// RateLimitConfig, if set, additionally rate-limits admission.
	RateLimitConfig *RateLimiterConfig

	// EnableBackpressure rejects immediately when the queue is full rather
	// than blocking the caller until a queue slot frees up.
	EnableBackpressure bool
}

// Bulkhead implements the bulkhead isolation pattern: it caps how many
// concurrent operations may run against a shared resource, queueing or
// rejecting the rest. The hybrid recommendation engine uses one of these
// (capacity 100) to bound fan-out into the collaborative and content
// engines.
type Bulkhead struct {
	name   string
	config BulkheadConfig

	semaphore chan struct{}
	queue     chan *queuedOperation

	rateLimiter *RateLimiter

	activeRequests    atomic.Int64
	queuedRequests    atomic.Int64
	totalRequests     atomic.Int64
	rejectedRequests  atomic.Int64
	completedRequests atomic.Int64
	timedOutRequests  atomic.Int64

	logger  observability.Logger
	metrics observability.MetricsClient

	closed atomic.Bool
	wg     sync.WaitGroup
}

type queuedOperation struct {
	ctx       context.Context
	operation func(context.Context) (interface{}, error)
	result    chan operationResult
	queuedAt  time.Time
}

type operationResult struct {
	value interface{}
	err   error
}

// NewBulkhead creates a bulkhead, applying sane defaults for any
// zero-valued config field.
func NewBulkhead(name string, config BulkheadConfig, logger observability.Logger, metrics observability.MetricsClient) *Bulkhead {
	if config.MaxConcurrentCalls <= 0 {
		config.MaxConcurrentCalls = 10
	}
	if config.MaxQueueDepth < 0 {
		config.MaxQueueDepth = 0
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 30 * time.Second
	}

	b := &Bulkhead{
		name:      name,
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrentCalls),
		logger:    logger,
		metrics:   metrics,
	}

	if config.MaxQueueDepth > 0 {
		b.queue = make(chan *queuedOperation, config.MaxQueueDepth)
		b.wg.Add(1)
		go b.processQueue()
	}

	if config.RateLimitConfig != nil {
		b.rateLimiter = NewRateLimiter(name, *config.RateLimitConfig)
	}

	return b
}

// Execute runs operation with bulkhead protection: admits immediately if a
// slot is free, otherwise queues (if configured) or rejects.
func (b *Bulkhead) Execute(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	if b.closed.Load() {
		return nil, errors.New("bulkhead is closed")
	}

	b.totalRequests.Add(1)
	b.recordMetric("bulkhead_requests_total", 1, map[string]string{"bulkhead": b.name})

	if b.rateLimiter != nil && !b.rateLimiter.Allow() {
		b.rejectedRequests.Add(1)
		b.recordMetric("bulkhead_rate_limited_total", 1, map[string]string{"bulkhead": b.name})
		return nil, fmt.Errorf("rate limit exceeded for bulkhead %s", b.name)
	}

	select {
	case b.semaphore <- struct{}{}:
		return b.executeWithResource(ctx, operation)
	default:
		return b.handleResourceUnavailable(ctx, operation)
	}
}

func (b *Bulkhead) executeWithResource(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	defer func() {
		<-b.semaphore
		b.activeRequests.Add(-1)
		b.recordMetric("bulkhead_active_requests", float64(b.activeRequests.Load()), map[string]string{"bulkhead": b.name})
	}()

	b.activeRequests.Add(1)
	b.recordMetric("bulkhead_active_requests", float64(b.activeRequests.Load()), map[string]string{"bulkhead": b.name})

	start := time.Now()
	result, err := operation(ctx)
	duration := time.Since(start)

	b.completedRequests.Add(1)
	b.recordMetric("bulkhead_completed_total", 1, map[string]string{"bulkhead": b.name})
	b.recordMetric("bulkhead_execution_duration_seconds", duration.Seconds(), map[string]string{"bulkhead": b.name})
	if err != nil {
		b.recordMetric("bulkhead_errors_total", 1, map[string]string{"bulkhead": b.name})
	}

	return result, err
}

func (b *Bulkhead) handleResourceUnavailable(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	if b.config.MaxQueueDepth == 0 {
		b.rejectedRequests.Add(1)
		b.recordMetric("bulkhead_rejected_total", 1, map[string]string{"bulkhead": b.name, "reason": "no_queue"})
		return nil, ErrBulkheadFull
	}

	queuedOp := &queuedOperation{
		ctx:       ctx,
		operation: operation,
		result:    make(chan operationResult, 1),
		queuedAt:  time.Now(),
	}

	if b.config.EnableBackpressure {
		select {
		case b.queue <- queuedOp:
			b.queuedRequests.Add(1)
			b.recordMetric("bulkhead_queued_requests", float64(b.queuedRequests.Load()), map[string]string{"bulkhead": b.name})
		default:
			b.rejectedRequests.Add(1)
			b.recordMetric("bulkhead_rejected_total", 1, map[string]string{"bulkhead": b.name, "reason": "queue_full"})
			return nil, ErrBulkheadQueueFull
		}
	} else {
		select {
		case b.queue <- queuedOp:
			b.queuedRequests.Add(1)
			b.recordMetric("bulkhead_queued_requests", float64(b.queuedRequests.Load()), map[string]string{"bulkhead": b.name})
		case <-ctx.Done():
			b.rejectedRequests.Add(1)
			b.recordMetric("bulkhead_rejected_total", 1, map[string]string{"bulkhead": b.name, "reason": "context_canceled"})
			return nil, ErrBulkheadContextCanceled
		}
	}

	timeout := time.NewTimer(b.config.QueueTimeout)
	defer timeout.Stop()

	select {
	case result := <-queuedOp.result:
		b.recordMetric("bulkhead_queue_wait_seconds", time.Since(queuedOp.queuedAt).Seconds(), map[string]string{"bulkhead": b.name})
		return result.value, result.err
	case <-timeout.C:
		b.timedOutRequests.Add(1)
		b.recordMetric("bulkhead_timeouts_total", 1, map[string]string{"bulkhead": b.name})
		return nil, ErrBulkheadTimeout
	case <-ctx.Done():
		b.rejectedRequests.Add(1)
		b.recordMetric("bulkhead_rejected_total", 1, map[string]string{"bulkhead": b.name, "reason": "context_canceled"})
		return nil, ctx.Err()
	}
}

func (b *Bulkhead) processQueue() {
	defer b.wg.Done()

	for queuedOp := range b.queue {
		select {
		case b.semaphore <- struct{}{}:
			b.queuedRequests.Add(-1)
			b.recordMetric("bulkhead_queued_requests", float64(b.queuedRequests.Load()), map[string]string{"bulkhead": b.name})

			go func(op *queuedOperation) {
				result, err := b.executeWithResource(op.ctx, op.operation)
				op.result <- operationResult{value: result, err: err}
				close(op.result)
			}(queuedOp)
		case <-queuedOp.ctx.Done():
			b.queuedRequests.Add(-1)
			b.rejectedRequests.Add(1)
			queuedOp.result <- operationResult{err: ErrBulkheadContextCanceled}
			close(queuedOp.result)
		}
	}
}

// GetStats returns current bulkhead statistics for diagnostics.
func (b *Bulkhead) GetStats() BulkheadStats {
	return BulkheadStats{
		Name:              b.name,
		ActiveRequests:    b.activeRequests.Load(),
		QueuedRequests:    b.queuedRequests.Load(),
		TotalRequests:     b.totalRequests.Load(),
		RejectedRequests:  b.rejectedRequests.Load(),
		CompletedRequests: b.completedRequests.Load(),
		TimedOutRequests:  b.timedOutRequests.Load(),
		MaxConcurrent:     int64(b.config.MaxConcurrentCalls),
		MaxQueueDepth:     int64(b.config.MaxQueueDepth),
	}
}

// BulkheadStats is a point-in-time snapshot of a Bulkhead's counters.
type BulkheadStats struct {
	Name              string
	ActiveRequests    int64
	QueuedRequests    int64
	TotalRequests     int64
	RejectedRequests  int64
	CompletedRequests int64
	TimedOutRequests  int64
	MaxConcurrent     int64
	MaxQueueDepth     int64
}

// Close drains the queue and waits for in-flight operations to finish.
func (b *Bulkhead) Close() error {
	if b.closed.Swap(true) {
		return errors.New("bulkhead already closed")
	}
	if b.queue != nil {
		close(b.queue)
		b.wg.Wait()
	}
	return nil
}

func (b *Bulkhead) recordMetric(name string, value float64, labels map[string]string) {
	if b.metrics != nil {
		b.metrics.RecordGauge(name, value, labels)
	}
}

// BulkheadManager manages named bulkheads for different shared resources
// (the vector store connection pool, the hybrid engine's fan-out budget).
type BulkheadManager struct {
	bulkheads map[string]*Bulkhead
	configs   map[string]BulkheadConfig
	mutex     sync.RWMutex
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewBulkheadManager creates a manager seeded with the given named
// configurations.
func NewBulkheadManager(defaultConfigs map[string]BulkheadConfig, logger observability.Logger, metrics observability.MetricsClient) *BulkheadManager {
	manager := &BulkheadManager{
		bulkheads: make(map[string]*Bulkhead),
		configs:   make(map[string]BulkheadConfig),
		logger:    logger,
		metrics:   metrics,
	}
	for name, config := range defaultConfigs {
		manager.configs[name] = config
		manager.bulkheads[name] = NewBulkhead(name, config, logger, metrics)
	}
	return manager
}

// GetBulkhead returns the named bulkhead, creating one with a conservative
// default if it has no registered config.
func (m *BulkheadManager) GetBulkhead(name string) *Bulkhead {
	m.mutex.RLock()
	bulkhead, exists := m.bulkheads[name]
	m.mutex.RUnlock()
	if exists {
		return bulkhead
	}

	config, exists := m.configs[name]
	if !exists {
		config = BulkheadConfig{MaxConcurrentCalls: 10, MaxQueueDepth: 100, QueueTimeout: 30 * time.Second, EnableBackpressure: true}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if bulkhead, exists = m.bulkheads[name]; exists {
		return bulkhead
	}

	bulkhead = NewBulkhead(name, config, m.logger, m.metrics)
	m.bulkheads[name] = bulkhead
	return bulkhead
}

// Execute runs operation through the named bulkhead.
func (m *BulkheadManager) Execute(ctx context.Context, bulkheadName string, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	return m.GetBulkhead(bulkheadName).Execute(ctx, operation)
}

// GetAllStats returns statistics for every managed bulkhead.
func (m *BulkheadManager) GetAllStats() map[string]BulkheadStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := make(map[string]BulkheadStats, len(m.bulkheads))
	for name, bulkhead := range m.bulkheads {
		stats[name] = bulkhead.GetStats()
	}
	return stats
}

// Close closes every managed bulkhead.
func (m *BulkheadManager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var errs []error
	for name, bulkhead := range m.bulkheads {
		if err := bulkhead.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close bulkhead %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing bulkheads: %v", errs)
	}
	return nil
}

// DefaultBulkheadConfigs provides default configurations for the shared
// resources the recommendation engine fans out into.
var DefaultBulkheadConfigs = map[string]BulkheadConfig{
	// Bounds the hybrid engine's concurrent fan-out into the collaborative
	// and content engines, per the fixed capacity-100 requirement.
	"hybrid_engine": {
		MaxConcurrentCalls: 100,
		MaxQueueDepth:      0,
		QueueTimeout:       5 * time.Second,
		EnableBackpressure: true,
	},
	"vector_store_db": {
		MaxConcurrentCalls: 50,
		MaxQueueDepth:      200,
		QueueTimeout:       10 * time.Second,
		EnableBackpressure: true,
	},
	"cache_redis": {
		MaxConcurrentCalls: 200,
		MaxQueueDepth:      1000,
		QueueTimeout:       5 * time.Second,
		EnableBackpressure: true,
	},
	"webhook_delivery": {
		MaxConcurrentCalls: 10,
		MaxQueueDepth:      50,
		QueueTimeout:       30 * time.Second,
		EnableBackpressure: true,
		RateLimitConfig: &RateLimiterConfig{
			Limit:       60,
			Period:      time.Minute,
			BurstFactor: 1,
		},
	},
}
