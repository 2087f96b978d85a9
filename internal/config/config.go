// Package config loads and hot-reloads the recommendation engine's
// layered YAML configuration, grounded on the teacher's pkg/config
// (viper-based layered loading) and the edge-mcp app's
// internal/config/watcher.go (fsnotify-driven reload with callbacks).
package config

import "time"

// AlgorithmsConfig tunes the three recommendation engines.
type AlgorithmsConfig struct {
	CollaborativeKNeighbors int     `mapstructure:"collaborative_k_neighbors"`
	CollaborativeMinSim     float64 `mapstructure:"collaborative_min_similarity"`
	ContentKNeighbors       int     `mapstructure:"content_k_neighbors"`
	DefaultCount            int     `mapstructure:"default_count"`
	HybridWeightCollab      float64 `mapstructure:"hybrid_weight_collaborative"`
	HybridWeightContent     float64 `mapstructure:"hybrid_weight_content"`
}

// CacheConfig sizes the two-tier cache (internal/cache).
type CacheConfig struct {
	L1Capacity    int           `mapstructure:"l1_capacity"`
	L1TTL         time.Duration `mapstructure:"l1_ttl"`
	L2TTL         time.Duration `mapstructure:"l2_ttl"`
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDatabase int           `mapstructure:"redis_database"`
}

// ColdStartConfig governs fallback behavior when a user or entity has
// too little interaction history to recommend from directly.
type ColdStartConfig struct {
	MinInteractions int     `mapstructure:"min_interactions"`
	TrendingFallback bool   `mapstructure:"trending_fallback"`
	FallbackCount   int     `mapstructure:"fallback_count"`
}

// DatabaseConfig configures internal/vectorstore's connection.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ServerConfig configures the HTTP serving surface.
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// UpdaterConfig tunes the three model-updater tasks (spec.md §4.7).
type UpdaterConfig struct {
	IncrementalInterval time.Duration `mapstructure:"incremental_interval"`
	FullRebuildInterval time.Duration `mapstructure:"full_rebuild_interval"`
	TrendingInterval    time.Duration `mapstructure:"trending_interval"`
	LowTrafficHour      int           `mapstructure:"low_traffic_hour"`

	// Tenants lists the tenant ids the background maintenance loops run
	// for. A single process owns the full set; there is no per-tenant
	// process model.
	Tenants []string `mapstructure:"tenants"`
}

// WebhookConfig configures outbound webhook delivery (spec.md §4.8).
type WebhookConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Secret      string        `mapstructure:"secret"`
	MaxRetries  int           `mapstructure:"max_retries"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
}

// Config is the full, unmarshaled configuration tree.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Algorithms  AlgorithmsConfig `mapstructure:"algorithms"`
	ColdStart   ColdStartConfig  `mapstructure:"cold_start"`
	Updater     UpdaterConfig    `mapstructure:"updater"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
}

// Default returns the built-in defaults, applied before any config
// file is merged in.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			ListenAddress: ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			L1Capacity: 10_000,
			L1TTL:      30 * time.Second,
			L2TTL:      30 * time.Second,
		},
		Algorithms: AlgorithmsConfig{
			CollaborativeKNeighbors: 50,
			CollaborativeMinSim:     0.1,
			ContentKNeighbors:       50,
			DefaultCount:            10,
			HybridWeightCollab:      0.5,
			HybridWeightContent:     0.5,
		},
		ColdStart: ColdStartConfig{
			MinInteractions:  5,
			TrendingFallback: true,
			FallbackCount:    10,
		},
		Updater: UpdaterConfig{
			IncrementalInterval: 10 * time.Second,
			FullRebuildInterval: 24 * time.Hour,
			TrendingInterval:    time.Hour,
			LowTrafficHour:      3,
			Tenants:             []string{"default"},
		},
		Webhook: WebhookConfig{
			MaxRetries:  5,
			InitialWait: 500 * time.Millisecond,
		},
	}
}
