package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// TestStore_ApplyMigrationsAgainstLiveDatabase mirrors the teacher's
// integration-style migration test: skipped in short mode and skipped
// outright if no reachable Postgres instance is configured, since
// golang-migrate's postgres driver needs a real connection (sqlmock
// cannot fake the schema_migrations bookkeeping it performs).
func TestStore_ApplyMigrationsAgainstLiveDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping migration test in short mode")
	}

	dsn := os.Getenv("RECOMMENDATION_ENGINE_TEST_DSN")
	if dsn == "" {
		host := os.Getenv("DATABASE_HOST")
		if host == "" {
			t.Skip("RECOMMENDATION_ENGINE_TEST_DSN and DATABASE_HOST both unset, skipping")
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
			envOr("DATABASE_USER", "dev"), envOr("DATABASE_PASSWORD", "dev"), host, envOr("DATABASE_NAME", "dev"))
	}

	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skip("cannot open database connection:", err)
	}
	defer rawDB.Close()
	if err := rawDB.Ping(); err != nil {
		t.Skip("cannot reach database:", err)
	}

	db := sqlx.NewDb(rawDB, "postgres")
	store := NewStoreForTesting(db, NewConfig(), nil)
	store.config.MigrationsPath = "migrations"
	store.initialized = false

	require.NoError(t, store.ApplyMigrations(context.Background()))
	require.NoError(t, store.Initialize(context.Background()))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
