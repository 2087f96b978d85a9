package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewStoreForTesting(db, NewConfig(), nil), mock
}

func TestStore_InitializeFailsFastWithoutPgvectorExtension(t *testing.T) {
	store, mock := newTestStore(t)
	store.initialized = false

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.Initialize(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InitializeSucceedsWhenExtensionPresent(t *testing.T) {
	store, mock := newTestStore(t)
	store.initialized = false

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.Initialize(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateEntityRejectsDuplicate(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO entities").
		WillReturnError(assertErrorf("duplicate key value violates unique constraint"))

	_, err := store.CreateEntity(context.Background(), "tenant-a", "sku-1", "product", AttributeBag{}, []float32{0.1, 0.2})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateEntityDefaultsTenant(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO entities").
		WithArgs("default", "sku-1", "product", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	e, err := store.CreateEntity(context.Background(), "", "sku-1", "product", AttributeBag{}, []float32{0.1, 0.2})
	require.NoError(t, err)
	assert.Equal(t, "default", e.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetEntityReturnsNilWhenMissing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "entity_id", "entity_type", "attributes", "feature_vector", "created_at", "updated_at"}))

	e, err := store.GetEntity(context.Background(), "tenant-a", "sku-1", "product")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateEntityNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE entities SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateEntity(context.Background(), "tenant-a", "sku-1", "product", AttributeBag{}, []float32{0.1})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteEntityNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM entities").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteEntity(context.Background(), "tenant-a", "sku-1", "product")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindSimilarEntitiesAppliesExcludeAndThreshold(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{
		"tenant_id", "entity_id", "entity_type", "attributes", "feature_vector", "created_at", "updated_at", "similarity",
	}).AddRow("tenant-a", "sku-2", "product", []byte(`{}`), "[0.1,0.2]", time.Now(), time.Now(), 0.95)

	mock.ExpectQuery("SELECT tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at").
		WillReturnRows(rows)

	out, err := store.FindSimilarEntities(context.Background(), "tenant-a", []float32{0.1, 0.2}, "product", 0.5, 10, "sku-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sku-2", out[0].Item.EntityID)
	assert.InDelta(t, 0.95, out[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordInteractionUpsertsOnDedupKey(t *testing.T) {
	store, mock := newTestStore(t)
	ts := time.Now().UTC()

	mock.ExpectExec("INSERT INTO interactions").
		WithArgs("tenant-a", "u1", "sku-1", "product", InteractionView, float32(WeightView), sqlmock.AnyArg(), ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	i, err := store.RecordInteraction(context.Background(), "tenant-a", "u1", "sku-1", "product", InteractionView, WeightView, nil, ts)
	require.NoError(t, err)
	assert.Equal(t, InteractionView, i.InteractionType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ComputeUserPreferenceVectorEmptyWhenNoInteractions(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT e.feature_vector, i.weight").
		WillReturnRows(sqlmock.NewRows([]string{"feature_vector", "weight"}))

	vec, err := store.ComputeUserPreferenceVector(context.Background(), "tenant-a", "u1")
	require.NoError(t, err)
	assert.Empty(t, vec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ComputeUserPreferenceVectorWeightsByInteraction(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"feature_vector", "weight"}).
		AddRow("[1,0]", float32(1)).
		AddRow("[0,1]", float32(3))

	mock.ExpectQuery("SELECT e.feature_vector, i.weight").
		WillReturnRows(rows)

	vec, err := store.ComputeUserPreferenceVector(context.Background(), "tenant-a", "u1")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.25, vec[0], 1e-6)
	assert.InDelta(t, 0.75, vec[1], 1e-6)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetInteractionWeightResolvesRegistryThenBuiltinThenDefault(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT tenant_id, interaction_type, weight, description").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "interaction_type", "weight", "description"}).
			AddRow("tenant-a", "vip_click", float32(9.5), "custom"))
	w, err := store.GetInteractionWeight(context.Background(), "tenant-a", "vip_click")
	require.NoError(t, err)
	assert.Equal(t, float32(9.5), w)

	mock.ExpectQuery("SELECT tenant_id, interaction_type, weight, description").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "interaction_type", "weight", "description"}))
	w, err = store.GetInteractionWeight(context.Background(), "tenant-a", InteractionPurchase)
	require.NoError(t, err)
	assert.Equal(t, float32(WeightPurchase), w)

	mock.ExpectQuery("SELECT tenant_id, interaction_type, weight, description").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "interaction_type", "weight", "description"}))
	w, err = store.GetInteractionWeight(context.Background(), "tenant-a", "some_custom_event")
	require.NoError(t, err)
	assert.Equal(t, float32(WeightCustomBase), w)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BatchInsertEntitiesCommitsOnSuccess(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entities := []*Entity{
		{TenantID: "tenant-a", EntityID: "sku-1", EntityType: "product", FeatureVector: []float32{0.1}},
		{TenantID: "tenant-a", EntityID: "sku-2", EntityType: "product", FeatureVector: []float32{0.2}},
	}
	n, err := store.BatchInsertEntities(context.Background(), entities)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BatchInsertEntitiesRollsBackOnError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnError(assertErrorf("connection reset"))
	mock.ExpectRollback()

	entities := []*Entity{{TenantID: "tenant-a", EntityID: "sku-1", EntityType: "product"}}
	_, err := store.BatchInsertEntities(context.Background(), entities)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BulkImportInteractionsCountsOnlyNewRows(t *testing.T) {
	store, mock := newTestStore(t)
	ts := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO interactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO interactions").WillReturnResult(sqlmock.NewResult(1, 0))
	mock.ExpectCommit()

	interactions := []*Interaction{
		{TenantID: "tenant-a", UserID: "u1", EntityID: "sku-1", EntityType: "product", InteractionType: InteractionView, Timestamp: ts},
		{TenantID: "tenant-a", UserID: "u1", EntityID: "sku-1", EntityType: "product", InteractionType: InteractionView, Timestamp: ts},
	}
	n, err := store.BulkImportInteractions(context.Background(), interactions)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetTrendingEntityStatsFiltersByType(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"entity_id", "entity_type", "weight_sum"}).
		AddRow("sku-1", "product", 42.0)

	mock.ExpectQuery("SELECT entity_id, entity_type, SUM\\(weight\\)").
		WillReturnRows(rows)

	out, err := store.GetTrendingEntityStats(context.Background(), "tenant-a", "product", 10, 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sku-1", out[0].EntityID)
	assert.Equal(t, 42.0, out[0].WeightSum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// assertErrorf constructs a plain error for WillReturnError without
// depending on fmt being imported solely for this purpose elsewhere.
type testErr string

func (e testErr) Error() string { return string(e) }

func assertErrorf(msg string) error { return testErr(msg) }
