// Command recommendation-engine runs the background recommendation
// service: vector store, collaborative/content/hybrid engines, model
// updater maintenance loops and webhook delivery. It exposes no HTTP
// surface (spec.md's serving transport is an external collaborator,
// out of scope per SPEC_FULL.md §1); it is a long-running worker
// process, grounded on the teacher's cmd/server/main.go wiring shape
// (config -> logger -> metrics -> store -> cache -> components ->
// signal-based graceful shutdown) trimmed of the AWS/IRSA/RDS-IAM
// branches this module has no component to exercise.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	mathrand "math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/config"
	"github.com/vasilistotskas/recommendation-engine/internal/engine"
	"github.com/vasilistotskas/recommendation-engine/internal/feature"
	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/recommendation"
	"github.com/vasilistotskas/recommendation-engine/internal/resilience"
	"github.com/vasilistotskas/recommendation-engine/internal/updater"
	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
	"github.com/vasilistotskas/recommendation-engine/internal/webhook"
)

func main() {
	initSecureRandom()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	environment := os.Getenv("ENVIRONMENT")
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config"
	}

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load(environment)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := config.Validate(cfg, cfg.Environment); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := observability.NewLogger("recommendation-engine")
	metrics := observability.NewPrometheusMetricsClient("recommendation_engine", "", nil)

	logger.Info("starting recommendation engine", map[string]interface{}{
		"environment": cfg.Environment,
		"tenants":     cfg.Updater.Tenants,
	})

	store, err := vectorstore.Open(ctx, storeConfig(cfg), logger)
	if err != nil {
		log.Fatalf("failed to open vector store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("error closing vector store", map[string]interface{}{"error": err.Error()})
		}
	}()
	if err := store.ApplyMigrations(ctx); err != nil {
		log.Fatalf("failed to apply database migrations: %v", err)
	}
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize vector store: %v", err)
	}

	var l2 cache.Cache
	if cfg.Cache.RedisAddress != "" {
		redisCfg := cache.NewRedisConfig(cfg.Cache.RedisAddress)
		redisCfg.Password = cfg.Cache.RedisPassword
		redisCfg.Database = cfg.Cache.RedisDatabase
		redisCache, err := cache.NewRedisCache(redisCfg, logger)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer func() { _ = redisCache.Close() }()
		l2 = redisCache
	} else {
		logger.Info("no cache.redis_address configured, running with L1-only cache", nil)
	}

	twoTierCfg := cache.NewTwoTierConfig()
	if cfg.Cache.L1Capacity > 0 {
		twoTierCfg.L1Capacity = cfg.Cache.L1Capacity
	}
	if cfg.Cache.L1TTL > 0 {
		twoTierCfg.L1TTL = cfg.Cache.L1TTL
	}
	if cfg.Cache.L2TTL > 0 {
		twoTierCfg.L2TTL = cfg.Cache.L2TTL
	}
	twoTier := cache.NewTwoTier(twoTierCfg, l2, logger, metrics)

	collabCfg := engine.DefaultCollaborativeConfig()
	if cfg.Algorithms.CollaborativeKNeighbors > 0 {
		collabCfg.KNeighbors = cfg.Algorithms.CollaborativeKNeighbors
	}
	if cfg.Algorithms.CollaborativeMinSim > 0 {
		collabCfg.MinSimilarity = float32(cfg.Algorithms.CollaborativeMinSim)
	}
	if cfg.Algorithms.DefaultCount > 0 {
		collabCfg.DefaultCount = cfg.Algorithms.DefaultCount
	}
	collaborative := engine.NewCollaborativeEngine(store, l2, collabCfg, logger, metrics)

	contentCfg := engine.DefaultContentConfig()
	content :=engine.NewContentEngine(store, l2, contentCfg, logger, metrics)

	hybridCfg := engine.DefaultHybridConfig()
	if cfg.Algorithms.HybridWeightCollab > 0 || cfg.Algorithms.HybridWeightContent > 0 {
		hybridCfg.CollaborativeWeight = float32(cfg.Algorithms.HybridWeightCollab)
		hybridCfg.ContentWeight = float32(cfg.Algorithms.HybridWeightContent)
	}
	hybridBulkhead := resilience.NewBulkhead("hybrid_engine", resilience.DefaultBulkheadConfigs["hybrid_engine"], logger, metrics)
	defer func() { _ = hybridBulkhead.Close() }()
	hybrid, err := engine.NewHybridEngine(collaborative, content, l2, hybridCfg, hybridBulkhead, logger, metrics)
	if err != nil {
		log.Fatalf("failed to build hybrid engine: %v", err)
	}

	recommendService := recommendation.NewService(collaborative, content, hybrid, twoTier, logger, metrics)

	var webhookDelivery *webhook.Delivery
	var emitter updater.WebhookEmitter
	if len(cfg.Webhook.Endpoints) > 0 {
		webhookCfg := webhook.DefaultConfig(cfg.Webhook.Endpoints, cfg.Webhook.Secret)
		if cfg.Webhook.MaxRetries > 0 {
			webhookCfg.MaxRetries = uint64(cfg.Webhook.MaxRetries)
		}
		if cfg.Webhook.InitialWait > 0 {
			webhookCfg.BaseDelay = cfg.Webhook.InitialWait
		}
		webhookDelivery = webhook.NewDelivery(webhookCfg, logger, metrics)
		emitter = webhookDelivery
	} else {
		logger.Info("no webhook.endpoints configured, model updater events will not be delivered", nil)
	}

	extractor := feature.NewDefaultExtractor(0)

	updaterCfg := updater.DefaultConfig()
	if cfg.Updater.IncrementalInterval > 0 {
		updaterCfg.IncrementalInterval = cfg.Updater.IncrementalInterval
	}
	if cfg.Updater.FullRebuildInterval > 0 {
		updaterCfg.FullRebuildInterval = cfg.Updater.FullRebuildInterval
	}
	if cfg.Updater.TrendingInterval > 0 {
		updaterCfg.TrendingInterval = cfg.Updater.TrendingInterval
	}
	if cfg.Updater.LowTrafficHour > 0 {
		updaterCfg.LowTrafficHour = cfg.Updater.LowTrafficHour
	}

	mu := updater.NewUpdater(store, collaborative, recommendService, twoTier, extractor, emitter, updaterCfg, logger, metrics)

	tenants := cfg.Updater.Tenants
	if len(tenants) == 0 {
		tenants = []string{"default"}
	}
	schedulers := make([]*updater.TaskScheduler, 0, len(tenants))
	for _, tenantID := range tenants {
		schedulers = append(schedulers, mu.StartAllTasks(ctx, tenantID))
	}

	logger.Info("recommendation engine ready", map[string]interface{}{"tenant_count": len(tenants)})

	<-ctx.Done()
	logger.Info("received shutdown signal, draining background tasks", nil)

	for _, s := range schedulers {
		s.StopAll()
	}

	logger.Info("recommendation engine stopped gracefully", nil)
}

// storeConfig maps the layered YAML config onto vectorstore.Config,
// grounded on the teacher's database-config translation step in
// cmd/server/main.go.
func storeConfig(cfg *config.Config) *vectorstore.Config {
	vc := vectorstore.NewConfig()
	vc.DSN = cfg.Database.DSN
	vc.Host = cfg.Database.Host
	vc.Port = cfg.Database.Port
	vc.Database = cfg.Database.Database
	vc.Username = cfg.Database.Username
	vc.Password = cfg.Database.Password
	vc.SSLMode = cfg.Database.SSLMode
	if cfg.Database.MaxOpenConns > 0 {
		vc.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		vc.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		vc.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return vc
}

// initSecureRandom seeds math/rand's global source from crypto/rand,
// matching the teacher's cmd/server/main.go startup step. No package in
// this module draws from math/rand.
func initSecureRandom() {
	max := big.NewInt(int64(1) << 62)
	val, err := rand.Int(rand.Reader, max)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to seed math/rand securely: %v\n", err)
		return
	}
	mathrand.Seed(val.Int64())
}
