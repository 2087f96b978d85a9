// Package updater runs the three background maintenance tasks that
// keep the vector store and its caches fresh: incremental
// preference/feature-vector recomputation, a periodic full rebuild
// scheduled for a low-traffic hour, and hourly trending recalculation.
// Grounded on
// original_source/crates/service/src/model_updater.rs's ModelUpdater
// and TaskScheduler.
package updater

import (
	"context"
	"sync"
	"time"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/engine"
	"github.com/vasilistotskas/recommendation-engine/internal/feature"
	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/recommendation"
	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
	"github.com/vasilistotskas/recommendation-engine/internal/webhook"
)

// trendingCacheCounts mirrors the original's {10, 20, 50, 100} — the
// result sizes actual recommendation requests ask trending for, so the
// trending task warms every one of them rather than just the count it
// happened to compute last.
var trendingCacheCounts = []int{10, 20, 50, 100}

// Config tunes the three tasks' run intervals and the full rebuild's
// preferred low-traffic hour (0-23, local time).
type Config struct {
	IncrementalInterval time.Duration
	FullRebuildInterval time.Duration
	TrendingInterval    time.Duration
	LowTrafficHour      int
}

// DefaultConfig matches the original's documented defaults: incremental
// every 10s, full rebuild every 24h (first run deferred to the next
// LowTrafficHour), trending every 1h.
func DefaultConfig() Config {
	return Config{
		IncrementalInterval: 10 * time.Second,
		FullRebuildInterval: 24 * time.Hour,
		TrendingInterval:    time.Hour,
		LowTrafficHour:      3,
	}
}

// WebhookEmitter is the subset of webhook.Delivery the updater needs,
// kept as an interface so tests can substitute a recording fake.
type WebhookEmitter interface {
	DispatchAsync(event webhook.Event)
}

// Updater runs the three maintenance tasks for one tenant.
type Updater struct {
	store         *vectorstore.Store
	collaborative *engine.CollaborativeEngine
	recommend     *recommendation.Service
	cache         *cache.TwoTier
	extractor     feature.Extractor
	webhooks      WebhookEmitter
	config        Config
	logger        observability.Logger
	metrics       observability.MetricsClient
}

func NewUpdater(
	store *vectorstore.Store,
	collaborative *engine.CollaborativeEngine,
	recommend *recommendation.Service,
	c *cache.TwoTier,
	extractor feature.Extractor,
	webhooks WebhookEmitter,
	config Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Updater {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Updater{
		store:         store,
		collaborative: collaborative,
		recommend:     recommend,
		cache:         c,
		extractor:     extractor,
		webhooks:      webhooks,
		config:        config,
		logger:        logger.WithPrefix("model-updater"),
		metrics:       metrics,
	}
}

// IncrementalUpdate recomputes preference vectors for users with recent
// interactions and feature vectors for recently modified entities,
// invalidates the caches they affect, and fires a model_updated webhook
// if anything actually changed.
func (u *Updater) IncrementalUpdate(ctx context.Context, tenantID string) error {
	start := time.Now()
	u.logger.Debug("starting incremental update", map[string]interface{}{"tenant_id": tenantID})

	usersUpdated, err := u.updateUserPreferenceVectors(ctx, tenantID)
	if err != nil {
		u.logger.Error("failed to update user preference vectors", map[string]interface{}{"error": err.Error()})
	}

	entitiesUpdated, err := u.updateEntityFeatureVectors(ctx, tenantID)
	if err != nil {
		u.logger.Error("failed to update entity feature vectors", map[string]interface{}{"error": err.Error()})
	}

	if err := u.collaborative.InvalidateTrending(ctx, tenantID); err != nil {
		u.logger.Warn("failed to invalidate trending cache", map[string]interface{}{"error": err.Error()})
	}

	duration := time.Since(start)
	u.metrics.RecordTimer("incremental_update_duration_seconds", duration, map[string]string{"tenant_id": tenantID})
	u.logger.Info("completed incremental update", map[string]interface{}{
		"tenant_id": tenantID, "users_updated": usersUpdated, "entities_updated": entitiesUpdated,
	})

	if (usersUpdated > 0 || entitiesUpdated > 0) && u.webhooks != nil {
		u.webhooks.DispatchAsync(webhook.NewModelUpdatedEvent(tenantID, usersUpdated, entitiesUpdated, duration.Milliseconds()))
	}

	return nil
}

func (u *Updater) updateUserPreferenceVectors(ctx context.Context, tenantID string) (int, error) {
	since := time.Now().Add(-u.config.IncrementalInterval)
	userIDs, err := u.store.GetUsersWithRecentInteractions(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, userID := range userIDs {
		if err := u.recomputeUserPreferenceVector(ctx, tenantID, userID); err != nil {
			u.logger.Warn("failed to update preference vector for user", map[string]interface{}{"user_id": userID, "error": err.Error()})
			continue
		}
		updated++
		if err := u.recommend.InvalidateUser(ctx, tenantID, userID); err != nil {
			u.logger.Warn("failed to invalidate recommendation cache for user", map[string]interface{}{"user_id": userID, "error": err.Error()})
		}
	}
	return updated, nil
}

func (u *Updater) recomputeUserPreferenceVector(ctx context.Context, tenantID, userID string) error {
	vec, err := u.store.ComputeUserPreferenceVector(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	count, lastTS, err := u.store.CountUserInteractions(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	_, err = u.store.UpsertUserProfile(ctx, tenantID, userID, vec, count, lastTS)
	return err
}

func (u *Updater) updateEntityFeatureVectors(ctx context.Context, tenantID string) (int, error) {
	since := time.Now().Add(-u.config.IncrementalInterval)
	refs, err := u.store.GetRecentlyModifiedEntities(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, ref := range refs {
		if err := u.recomputeEntityFeatureVector(ctx, tenantID, ref); err != nil {
			u.logger.Warn("failed to update feature vector for entity", map[string]interface{}{"entity_id": ref.EntityID, "error": err.Error()})
			continue
		}
		updated++
	}
	return updated, nil
}

func (u *Updater) recomputeEntityFeatureVector(ctx context.Context, tenantID string, ref vectorstore.EntityRef) error {
	entity, err := u.store.GetEntity(ctx, tenantID, ref.EntityID, ref.EntityType)
	if err != nil {
		return err
	}
	if entity == nil {
		return nil
	}
	vec, err := u.extractor.Extract(entity.Attributes)
	if err != nil {
		return err
	}
	_, err = u.store.UpdateEntity(ctx, tenantID, ref.EntityID, ref.EntityType, entity.Attributes, vec)
	return err
}

// FullRebuild recomputes every user's preference vector and every
// entity's feature vector from scratch, then clears every cache entry
// for the tenant so nothing stale survives the rebuild.
func (u *Updater) FullRebuild(ctx context.Context, tenantID string) error {
	start := time.Now()
	u.logger.Info("starting full rebuild", map[string]interface{}{"tenant_id": tenantID})

	usersUpdated := u.rebuildAllUserVectors(ctx, tenantID)
	entitiesUpdated := u.rebuildAllEntityVectors(ctx, tenantID)

	if err := u.store.RebuildIndices(ctx); err != nil {
		u.logger.Error("failed to rebuild vector indices", map[string]interface{}{"error": err.Error()})
	}

	if u.cache != nil {
		if err := u.cache.InvalidatePattern(ctx, "*:"+tenantID+":*"); err != nil {
			u.logger.Warn("failed to clear caches after full rebuild", map[string]interface{}{"error": err.Error()})
		}
	}

	duration := time.Since(start)
	u.metrics.RecordTimer("full_rebuild_duration_seconds", duration, map[string]string{"tenant_id": tenantID})
	u.logger.Info("completed full rebuild", map[string]interface{}{
		"tenant_id": tenantID, "users_updated": usersUpdated, "entities_updated": entitiesUpdated, "duration": duration.String(),
	})

	if u.webhooks != nil {
		u.webhooks.DispatchAsync(webhook.NewModelUpdatedEvent(tenantID, usersUpdated, entitiesUpdated, duration.Milliseconds()))
	}
	return nil
}

func (u *Updater) rebuildAllUserVectors(ctx context.Context, tenantID string) int {
	userIDs, err := u.store.GetAllUserIDs(ctx, tenantID)
	if err != nil {
		u.logger.Error("failed to list users for full rebuild", map[string]interface{}{"error": err.Error()})
		return 0
	}

	updated := 0
	for i, userID := range userIDs {
		if err := u.recomputeUserPreferenceVector(ctx, tenantID, userID); err != nil {
			u.logger.Warn("failed to rebuild preference vector for user", map[string]interface{}{"user_id": userID, "error": err.Error()})
			continue
		}
		updated++
		if i > 0 && i%100 == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return updated
}

func (u *Updater) rebuildAllEntityVectors(ctx context.Context, tenantID string) int {
	refs, err := u.store.GetAllEntityRefs(ctx, tenantID)
	if err != nil {
		u.logger.Error("failed to list entities for full rebuild", map[string]interface{}{"error": err.Error()})
		return 0
	}

	updated := 0
	for i, ref := range refs {
		if err := u.recomputeEntityFeatureVector(ctx, tenantID, ref); err != nil {
			u.logger.Warn("failed to rebuild feature vector for entity", map[string]interface{}{"entity_id": ref.EntityID, "error": err.Error()})
			continue
		}
		updated++
		if i > 0 && i%100 == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return updated
}

// UpdateTrending recomputes trending entity lists for every entity type
// present for the tenant, plus the type-agnostic "all" list, warming
// the cache at every size a recommendation request might ask for.
func (u *Updater) UpdateTrending(ctx context.Context, tenantID string) error {
	start := time.Now()
	u.logger.Debug("starting trending calculation", map[string]interface{}{"tenant_id": tenantID})

	types, err := u.store.GetAllEntityTypes(ctx, tenantID)
	if err != nil {
		return err
	}
	types = append(types, "all")

	total := 0
	for _, entityType := range types {
		count, err := u.collaborative.PrecomputeTrending(ctx, tenantID, entityType, trendingCacheCounts)
		if err != nil {
			u.logger.Error("failed to calculate trending for type", map[string]interface{}{"entity_type": entityType, "error": err.Error()})
			continue
		}
		total += count
		if count > 0 && u.webhooks != nil && entityType != "all" {
			u.webhooks.DispatchAsync(webhook.NewTrendingChangedEvent(tenantID, entityType, count))
		}
	}

	u.logger.Info("completed trending calculation", map[string]interface{}{
		"tenant_id": tenantID, "total_trending": total, "duration": time.Since(start).String(),
	})
	return nil
}

// TaskHandle stops one scheduled background task.
type TaskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop signals the task to exit and waits for it to return.
func (h *TaskHandle) Stop() {
	h.cancel()
	<-h.done
}

// TaskScheduler tracks every background task spawned for a tenant so
// they can all be stopped together at shutdown.
type TaskScheduler struct {
	mu      sync.Mutex
	handles []*TaskHandle
}

func NewTaskScheduler() *TaskScheduler {
	return &TaskScheduler{}
}

func (s *TaskScheduler) spawn(ctx context.Context, run func(ctx context.Context)) *TaskHandle {
	taskCtx, cancel := context.WithCancel(ctx)
	handle := &TaskHandle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		run(taskCtx)
	}()
	s.mu.Lock()
	s.handles = append(s.handles, handle)
	s.mu.Unlock()
	return handle
}

// StopAll stops every task this scheduler has spawned.
func (s *TaskScheduler) StopAll() {
	s.mu.Lock()
	handles := append([]*TaskHandle(nil), s.handles...)
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *TaskHandle) { defer wg.Done(); h.Stop() }(h)
	}
	wg.Wait()
}

// StartAllTasks spawns the incremental, full-rebuild, and trending
// tasks for tenantID and returns the scheduler managing all three.
func (u *Updater) StartAllTasks(ctx context.Context, tenantID string) *TaskScheduler {
	scheduler := NewTaskScheduler()
	scheduler.spawn(ctx, func(taskCtx context.Context) { u.runIncrementalLoop(taskCtx, tenantID) })
	scheduler.spawn(ctx, func(taskCtx context.Context) { u.runFullRebuildLoop(taskCtx, tenantID) })
	scheduler.spawn(ctx, func(taskCtx context.Context) { u.runTrendingLoop(taskCtx, tenantID) })
	u.logger.Info("started all background tasks", map[string]interface{}{"tenant_id": tenantID})
	return scheduler
}

func (u *Updater) runIncrementalLoop(ctx context.Context, tenantID string) {
	ticker := time.NewTicker(u.config.IncrementalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.IncrementalUpdate(ctx, tenantID); err != nil {
				u.logger.Error("incremental update failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func (u *Updater) runFullRebuildLoop(ctx context.Context, tenantID string) {
	delay := u.delayUntilLowTraffic(time.Now())
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	ticker := time.NewTicker(u.config.FullRebuildInterval)
	defer ticker.Stop()
	for {
		if err := u.FullRebuild(ctx, tenantID); err != nil {
			u.logger.Error("full rebuild failed", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// delayUntilLowTraffic returns the duration from now until the next
// occurrence of the configured LowTrafficHour, today if that hour
// hasn't passed yet or tomorrow otherwise.
func (u *Updater) delayUntilLowTraffic(now time.Time) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), u.config.LowTrafficHour, 0, 0, 0, now.Location())
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}

func (u *Updater) runTrendingLoop(ctx context.Context, tenantID string) {
	ticker := time.NewTicker(u.config.TrendingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.UpdateTrending(ctx, tenantID); err != nil {
				u.logger.Error("trending update failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
