package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
)

// setupMiniRedis creates a test Redis server, grounded on the
// teacher's internal/cache/cache_test.go helper of the same name.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type testItem struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestRedisCache_SetGetRoundTrips(t *testing.T) {
	_, client := setupMiniRedis(t)
	rc := NewRedisCacheFromClient(client, observability.NewNoopLogger())

	ctx := context.Background()
	want := testItem{ID: 1, Name: "widget", Value: 42}
	require.NoError(t, rc.Set(ctx, "item:1", want, time.Minute))

	var got testItem
	require.NoError(t, rc.Get(ctx, "item:1", &got))
	assert.Equal(t, want, got)
}

func TestRedisCache_GetMissingKeyReturnsErrNotFound(t *testing.T) {
	_, client := setupMiniRedis(t)
	rc := NewRedisCacheFromClient(client, observability.NewNoopLogger())

	var got testItem
	err := rc.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCache_DeletePatternRemovesMatchingKeys(t *testing.T) {
	_, client := setupMiniRedis(t)
	rc := NewRedisCacheFromClient(client, observability.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "rec:u1:a", 1, time.Minute))
	require.NoError(t, rc.Set(ctx, "rec:u1:b", 2, time.Minute))
	require.NoError(t, rc.Set(ctx, "rec:u2:a", 3, time.Minute))

	require.NoError(t, rc.DeletePattern(ctx, "rec:u1:*"))

	exists, err := rc.Exists(ctx, "rec:u1:a")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = rc.Exists(ctx, "rec:u2:a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTwoTier_GetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	_, client := setupMiniRedis(t)
	l2 := NewRedisCacheFromClient(client, observability.NewNoopLogger())
	tt := NewTwoTier(NewTwoTierConfig(), l2, observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return testItem{ID: 1, Name: "computed", Value: 7}, nil
	}

	const n = 20
	results := make(chan testItem, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			var out testItem
			err := tt.GetOrCompute(context.Background(), "rec:t1:u1:-:collab:10", &out, compute)
			errs <- err
			results <- out
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
		assert.Equal(t, testItem{ID: 1, Name: "computed", Value: 7}, <-results)
	}

	assert.LessOrEqual(t, calls, n)
}

func TestTwoTier_GetOrComputeServesFromL1OnSecondCall(t *testing.T) {
	_, client := setupMiniRedis(t)
	l2 := NewRedisCacheFromClient(client, observability.NewNoopLogger())
	tt := NewTwoTier(NewTwoTierConfig(), l2, observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return testItem{ID: 2, Value: calls}, nil
	}

	var first, second testItem
	require.NoError(t, tt.GetOrCompute(context.Background(), "k", &first, compute))
	require.NoError(t, tt.GetOrCompute(context.Background(), "k", &second, compute))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestTwoTier_InvalidateRemovesFromBothTiers(t *testing.T) {
	_, client := setupMiniRedis(t)
	l2 := NewRedisCacheFromClient(client, observability.NewNoopLogger())
	tt := NewTwoTier(NewTwoTierConfig(), l2, observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return testItem{ID: calls}, nil
	}

	var out testItem
	require.NoError(t, tt.GetOrCompute(context.Background(), "k", &out, compute))
	require.NoError(t, tt.Invalidate(context.Background(), "k"))

	require.NoError(t, tt.GetOrCompute(context.Background(), "k", &out, compute))
	assert.Equal(t, 2, calls)
}
