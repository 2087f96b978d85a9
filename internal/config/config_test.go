package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

func TestLoader_LayersBaseThenEnvThenLocal(t *testing.T) {
	dir := t.TempDir()
	writeConfigFiles(t, dir, map[string]string{
		"config.base.yaml": "server:\n  listen_address: \":8080\"\nalgorithms:\n  default_count: 10\n",
		"config.production.yaml": "algorithms:\n  default_count: 20\n",
		"config.production.local.yaml": "algorithms:\n  default_count: 25\n",
	})

	loader := NewLoader(dir)
	cfg, err := loader.Load("production")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 25, cfg.Algorithms.DefaultCount)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoader_FallsBackToDevelopmentWhenUnspecified(t *testing.T) {
	dir := t.TempDir()
	writeConfigFiles(t, dir, map[string]string{
		"config.base.yaml": "server:\n  listen_address: \":9090\"\n",
	})

	loader := NewLoader(dir)
	cfg, err := loader.Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
}

func TestValidate_RequiresDatabaseAndRedisInProduction(t *testing.T) {
	cfg := Default()
	cfg.Server.ListenAddress = ":8080"
	cfg.Database.Host = ""
	cfg.Database.DSN = ""

	err := Validate(cfg, "production")
	assert.Error(t, err)

	cfg.Database.Host = "db.internal"
	cfg.Database.Database = "recs"
	cfg.Cache.RedisAddress = "redis.internal:6379"
	assert.NoError(t, Validate(cfg, "production"))
}

func TestWatcher_HotReloadsOnlyScopedSections(t *testing.T) {
	dir := t.TempDir()
	writeConfigFiles(t, dir, map[string]string{
		"config.base.yaml": "server:\n  listen_address: \":8080\"\nalgorithms:\n  default_count: 10\n",
	})

	w, err := NewWatcher(dir, "development", nil)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	w.debounceTime = 20 * time.Millisecond
	w.Start()

	require.Equal(t, 10, w.Current().Algorithms.DefaultCount)
	require.Equal(t, ":8080", w.Current().Server.ListenAddress)

	writeConfigFiles(t, dir, map[string]string{
		"config.base.yaml": "server:\n  listen_address: \":9999\"\nalgorithms:\n  default_count: 99\n",
	})

	require.Eventually(t, func() bool {
		return w.Current().Algorithms.DefaultCount == 99
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, ":8080", w.Current().Server.ListenAddress, "server address is not hot-reloadable")
}
