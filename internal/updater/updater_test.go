package updater

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intcache "github.com/vasilistotskas/recommendation-engine/internal/cache"
	"github.com/vasilistotskas/recommendation-engine/internal/engine"
	"github.com/vasilistotskas/recommendation-engine/internal/feature"
	"github.com/vasilistotskas/recommendation-engine/internal/recommendation"
	"github.com/vasilistotskas/recommendation-engine/internal/vectorstore"
	"github.com/vasilistotskas/recommendation-engine/internal/webhook"
)

type fakeCache struct{ entries map[string][]byte }

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string][]byte)} }

func (c *fakeCache) Get(ctx context.Context, key string, value interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return intcache.ErrNotFound
	}
	return json.Unmarshal(raw, value)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	for k := range c.entries {
		delete(c.entries, k)
	}
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.entries[key]
	return ok, nil
}

func (c *fakeCache) Close() error { return nil }

type recordingWebhookEmitter struct{ events []webhook.Event }

func (r *recordingWebhookEmitter) DispatchAsync(event webhook.Event) {
	r.events = append(r.events, event)
}

func newTestUpdater(t *testing.T) (*Updater, sqlmock.Sqlmock, *recordingWebhookEmitter) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	store := vectorstore.NewStoreForTesting(db, vectorstore.NewConfig(), nil)

	l2 := newFakeCache()
	collab := engine.NewCollaborativeEngine(store, l2, engine.DefaultCollaborativeConfig(), nil, nil)
	content := engine.NewContentEngine(store, l2, engine.DefaultContentConfig(), nil, nil)
	twoTier := intcache.NewTwoTier(intcache.NewTwoTierConfig(), l2, nil, nil)
	service := recommendation.NewService(collab, content, nil, twoTier, nil, nil)

	emitter := &recordingWebhookEmitter{}
	u := NewUpdater(store, collab, service, twoTier, feature.NewDefaultExtractor(0), emitter, DefaultConfig(), nil, nil)
	return u, mock, emitter
}

func TestUpdater_IncrementalUpdateRecomputesUserAndDispatchesWebhook(t *testing.T) {
	u, mock, emitter := newTestUpdater(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT DISTINCT user_id FROM interactions").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery("SELECT e.feature_vector, i.weight").
		WillReturnRows(sqlmock.NewRows([]string{"feature_vector", "weight"}))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "last_ts"}).AddRow(6, time.Now()))
	mock.ExpectExec("INSERT INTO user_profiles").WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT entity_id, entity_type FROM entities WHERE tenant_id = \\$1 AND updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "entity_type"}))

	err := u.IncrementalUpdate(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, emitter.events, 1)
	assert.Equal(t, webhook.EventModelUpdated, emitter.events[0].EventType)
	assert.Equal(t, 1, emitter.events[0].Data["users_updated"])
}

func TestUpdater_IncrementalUpdateSkipsWebhookWhenNothingChanged(t *testing.T) {
	u, mock, emitter := newTestUpdater(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT DISTINCT user_id FROM interactions").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectQuery("SELECT entity_id, entity_type FROM entities WHERE tenant_id = \\$1 AND updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "entity_type"}))

	err := u.IncrementalUpdate(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, emitter.events)
}

func TestUpdater_UpdateTrendingDispatchesWebhookPerType(t *testing.T) {
	u, mock, emitter := newTestUpdater(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT DISTINCT entity_type FROM entities").
		WillReturnRows(sqlmock.NewRows([]string{"entity_type"}).AddRow("product"))

	mock.ExpectQuery("SELECT entity_id, entity_type, SUM").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "entity_type", "weight_sum"}).AddRow("e1", "product", 3.0))
	mock.ExpectQuery("SELECT entity_id, entity_type, SUM").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "entity_type", "weight_sum"}))

	err := u.UpdateTrending(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, emitter.events, 1)
	assert.Equal(t, webhook.EventTrendingChanged, emitter.events[0].EventType)
	assert.Equal(t, "product", emitter.events[0].Data["entity_type"])
}

func TestUpdater_DelayUntilLowTrafficSchedulesNextOccurrence(t *testing.T) {
	u, _, _ := newTestUpdater(t)
	u.config.LowTrafficHour = 3

	beforeTarget := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	delay := u.delayUntilLowTraffic(beforeTarget)
	assert.Equal(t, 2*time.Hour, delay)

	afterTarget := time.Date(2026, 7, 31, 4, 0, 0, 0, time.UTC)
	delay = u.delayUntilLowTraffic(afterTarget)
	assert.Equal(t, 23*time.Hour, delay)
}
