package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	// Registers the "postgres" driver used by sqlx.Connect below.
	_ "github.com/lib/pq"

	"github.com/vasilistotskas/recommendation-engine/internal/observability"
	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
)

// Store is the tenant-scoped vector store: entity/interaction/profile
// CRUD, ANN search, batch operations, and the interaction-type registry.
// Grounded on pkg/repository/vector.RepositoryImpl and
// pkg/database.VectorDatabase, re-expressed for this domain's schema.
type Store struct {
	db     *sqlx.DB
	config *Config
	logger observability.Logger

	mu          sync.RWMutex
	initialized bool
}

// Open connects to Postgres, making up to 3 connection attempts (one
// try plus two retries) with exponential backoff (per spec.md §4.2's failure semantics),
// and returns a Store ready for Initialize.
func Open(ctx context.Context, cfg *Config, logger observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.GetDSN())
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to connect to vector store database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, config: cfg, logger: logger}, nil
}

// NewStoreForTesting wraps an already-open *sqlx.DB (e.g. a sqlmock
// connection) without going through Open's retrying dial.
func NewStoreForTesting(db *sqlx.DB, cfg *Config, logger observability.Logger) *Store {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Store{db: db, config: cfg, logger: logger, initialized: true}
}

// Initialize verifies the pgvector extension is installed, failing fast
// if absent (grounded on VectorDatabase.Initialize).
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	var extExists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&extExists)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to check for pgvector extension")
	}
	if !extExists {
		return rerrors.New(rerrors.KindConfigError, "pgvector extension is not installed")
	}

	s.initialized = true
	s.logger.Info("vector store initialized", nil)
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func resolveTenant(tenantID string) string {
	if tenantID == "" {
		return "default"
	}
	return tenantID
}

// --- Entity CRUD ---

// CreateEntity inserts a new entity. Fails InvalidRequest if
// (tenant, id, type) already exists.
func (s *Store) CreateEntity(ctx context.Context, tenantID, entityID, entityType string, attrs AttributeBag, vec []float32) (*Entity, error) {
	tenantID = resolveTenant(tenantID)
	now := time.Now().UTC()

	e := &Entity{
		TenantID:      tenantID,
		EntityID:      entityID,
		EntityType:    entityType,
		Attributes:    attrs,
		FeatureVector: vec,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.TenantID, e.EntityID, e.EntityType, e.Attributes, vectorParam(e.FeatureVector), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, rerrors.Newf(rerrors.KindInvalidRequest, "entity (%s, %s, %s) already exists", tenantID, entityID, entityType)
		}
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to create entity")
	}
	return e, nil
}

// GetEntity returns the entity or (nil, nil) if not found.
func (s *Store) GetEntity(ctx context.Context, tenantID, entityID, entityType string) (*Entity, error) {
	tenantID = resolveTenant(tenantID)
	var e Entity
	err := s.db.GetContext(ctx, &e, `
		SELECT tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at
		FROM entities WHERE tenant_id = $1 AND entity_id = $2 AND entity_type = $3
	`, tenantID, entityID, entityType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to get entity")
	}
	return &e, nil
}

// UpdateEntity recomputes attrs/vec for an existing entity. Fails
// EntityNotFound if it doesn't exist.
func (s *Store) UpdateEntity(ctx context.Context, tenantID, entityID, entityType string, attrs AttributeBag, vec []float32) (*Entity, error) {
	tenantID = resolveTenant(tenantID)
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET attributes = $4, feature_vector = $5, updated_at = $6
		WHERE tenant_id = $1 AND entity_id = $2 AND entity_type = $3
	`, tenantID, entityID, entityType, AttributeBag(attrs), vectorParam(vec), now)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to update entity")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, rerrors.Newf(rerrors.KindEntityNotFound, "entity (%s, %s, %s) not found", tenantID, entityID, entityType)
	}

	return &Entity{
		TenantID: tenantID, EntityID: entityID, EntityType: entityType,
		Attributes: attrs, FeatureVector: vec, UpdatedAt: now,
	}, nil
}

// DeleteEntity removes an entity. Interactions referencing it are left
// in place (they are the historical trace) and simply become
// unresolvable, dropped from future candidate sets at read time.
func (s *Store) DeleteEntity(ctx context.Context, tenantID, entityID, entityType string) error {
	tenantID = resolveTenant(tenantID)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM entities WHERE tenant_id = $1 AND entity_id = $2 AND entity_type = $3
	`, tenantID, entityID, entityType)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to delete entity")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return rerrors.Newf(rerrors.KindEntityNotFound, "entity (%s, %s, %s) not found", tenantID, entityID, entityType)
	}
	return nil
}

// FindSimilarEntities runs the HNSW cosine ANN query, returning up to k
// entities with similarity >= threshold, ordered by decreasing
// similarity, optionally excluding one anchor id.
func (s *Store) FindSimilarEntities(ctx context.Context, tenantID string, vec []float32, entityType string, threshold float64, k int, excludeID string) ([]Scored[*Entity], error) {
	tenantID = resolveTenant(tenantID)
	vecStr := FormatPgVector(vec)

	query := `
		SELECT tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at,
		       1 - (feature_vector <=> $1::vector) AS similarity
		FROM entities
		WHERE tenant_id = $2 AND entity_type = $3 AND feature_vector IS NOT NULL
		  AND 1 - (feature_vector <=> $1::vector) >= $4`
	args := []interface{}{vecStr, tenantID, entityType, threshold}

	if excludeID != "" {
		query += " AND entity_id != $5"
		args = append(args, excludeID)
	}
	query += " ORDER BY feature_vector <=> $1::vector LIMIT $" + fmt.Sprint(len(args)+1)
	args = append(args, k)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to search similar entities")
	}
	defer rows.Close()

	var out []Scored[*Entity]
	for rows.Next() {
		var e Entity
		var similarity float64
		if err := rows.Scan(&e.TenantID, &e.EntityID, &e.EntityType, &e.Attributes, &e.FeatureVector, &e.CreatedAt, &e.UpdatedAt, &similarity); err != nil {
			return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to scan similar entity row")
		}
		out = append(out, Scored[*Entity]{Item: &e, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "error iterating similar entities")
	}
	return out, nil
}

// --- Interactions ---

// RecordInteraction appends an interaction, upserting on the dedup key
// (tenant, user, entity, itype, ts): a repeat write updates weight and
// metadata rather than creating a duplicate row.
func (s *Store) RecordInteraction(ctx context.Context, tenantID, userID, entityID, entityType, interactionType string, weight float32, meta StringMap, ts time.Time) (*Interaction, error) {
	tenantID = resolveTenant(tenantID)
	i := &Interaction{
		TenantID: tenantID, UserID: userID, EntityID: entityID, EntityType: entityType,
		InteractionType: interactionType, Weight: weight, Metadata: meta, Timestamp: ts,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (tenant_id, user_id, entity_id, entity_type, interaction_type, weight, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, user_id, entity_id, interaction_type, ts)
		DO UPDATE SET weight = EXCLUDED.weight, metadata = EXCLUDED.metadata, entity_type = EXCLUDED.entity_type
	`, i.TenantID, i.UserID, i.EntityID, i.EntityType, i.InteractionType, i.Weight, i.Metadata, i.Timestamp)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to record interaction")
	}
	return i, nil
}

// GetUserInteractions lists a user's interactions newest-first.
func (s *Store) GetUserInteractions(ctx context.Context, tenantID, userID string, limit, offset int) ([]Interaction, error) {
	tenantID = resolveTenant(tenantID)
	var out []Interaction
	err := s.db.SelectContext(ctx, &out, `
		SELECT tenant_id, user_id, entity_id, entity_type, interaction_type, weight, metadata, ts
		FROM interactions WHERE tenant_id = $1 AND user_id = $2
		ORDER BY ts DESC LIMIT $3 OFFSET $4
	`, tenantID, userID, limit, offset)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to get user interactions")
	}
	return out, nil
}

// CountUserInteractions returns a user's total interaction count and
// most recent interaction timestamp, the bookkeeping fields
// UpsertUserProfile persists alongside a recomputed preference vector.
func (s *Store) CountUserInteractions(ctx context.Context, tenantID, userID string) (int, time.Time, error) {
	tenantID = resolveTenant(tenantID)
	var row struct {
		Count  int          `db:"count"`
		LastTS sql.NullTime `db:"last_ts"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS count, MAX(ts) AS last_ts FROM interactions WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
	if err != nil {
		return 0, time.Time{}, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to count user interactions")
	}
	return row.Count, row.LastTS.Time, nil
}

// --- User profiles ---

// FindSimilarUsers runs the HNSW cosine ANN query over preference
// vectors.
func (s *Store) FindSimilarUsers(ctx context.Context, tenantID string, vec []float32, k int, excludeUserID string) ([]Scored[*UserProfile], error) {
	tenantID = resolveTenant(tenantID)
	vecStr := FormatPgVector(vec)

	query := `
		SELECT tenant_id, user_id, preference_vector, interaction_count, last_interaction_at,
		       1 - (preference_vector <=> $1::vector) AS similarity
		FROM user_profiles
		WHERE tenant_id = $2 AND preference_vector IS NOT NULL`
	args := []interface{}{vecStr, tenantID}

	if excludeUserID != "" {
		query += " AND user_id != $3"
		args = append(args, excludeUserID)
	}
	query += " ORDER BY preference_vector <=> $1::vector LIMIT $" + fmt.Sprint(len(args)+1)
	args = append(args, k)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to search similar users")
	}
	defer rows.Close()

	var out []Scored[*UserProfile]
	for rows.Next() {
		var p UserProfile
		var similarity float64
		if err := rows.Scan(&p.TenantID, &p.UserID, &p.PreferenceVector, &p.InteractionCount, &p.LastInteractionAt, &similarity); err != nil {
			return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to scan similar user row")
		}
		out = append(out, Scored[*UserProfile]{Item: &p, Score: similarity})
	}
	return out, rows.Err()
}

// ComputeUserPreferenceVector computes the weighted mean over the
// user's ≤1000 most-recent interactions' entity vectors, renormalized
// by summed weight. Returns an empty slice if no interacted entities
// carry a feature vector.
func (s *Store) ComputeUserPreferenceVector(ctx context.Context, tenantID, userID string) ([]float32, error) {
	tenantID = resolveTenant(tenantID)

	type row struct {
		FeatureVector Vector  `db:"feature_vector"`
		Weight        float32 `db:"weight"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.feature_vector, i.weight
		FROM interactions i
		JOIN entities e ON e.tenant_id = i.tenant_id AND e.entity_id = i.entity_id AND e.entity_type = i.entity_type
		WHERE i.tenant_id = $1 AND i.user_id = $2 AND e.feature_vector IS NOT NULL
		ORDER BY i.ts DESC LIMIT 1000
	`, tenantID, userID)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to compute user preference vector")
	}

	if len(rows) == 0 {
		return []float32{}, nil
	}

	vectors := make([][]float32, len(rows))
	weights := make([]float32, len(rows))
	for i, r := range rows {
		vectors[i] = r.FeatureVector
		weights[i] = r.Weight
	}

	mean := WeightedMean(vectors, weights)
	if mean == nil {
		return []float32{}, nil
	}
	return mean, nil
}

// UpsertUserProfile writes a user's preference vector and bookkeeping
// fields.
func (s *Store) UpsertUserProfile(ctx context.Context, tenantID, userID string, vec []float32, count int, lastTS time.Time) (*UserProfile, error) {
	tenantID = resolveTenant(tenantID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (tenant_id, user_id, preference_vector, interaction_count, last_interaction_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			preference_vector = EXCLUDED.preference_vector,
			interaction_count = EXCLUDED.interaction_count,
			last_interaction_at = EXCLUDED.last_interaction_at
	`, tenantID, userID, vectorParam(vec), count, lastTS)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to upsert user profile")
	}
	return &UserProfile{TenantID: tenantID, UserID: userID, PreferenceVector: vec, InteractionCount: count, LastInteractionAt: lastTS}, nil
}

// GetUserProfile returns the user's profile, or (nil, nil) if absent.
func (s *Store) GetUserProfile(ctx context.Context, tenantID, userID string) (*UserProfile, error) {
	tenantID = resolveTenant(tenantID)
	var p UserProfile
	err := s.db.GetContext(ctx, &p, `
		SELECT tenant_id, user_id, preference_vector, interaction_count, last_interaction_at
		FROM user_profiles WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to get user profile")
	}
	return &p, nil
}

// --- Trending ---

// GetTrendingEntityStats aggregates interaction weight over the
// trending window grouped by (entity_id, entity_type), optionally
// filtered to one type.
func (s *Store) GetTrendingEntityStats(ctx context.Context, tenantID, entityType string, k int, windowDays int) ([]TrendingStat, error) {
	tenantID = resolveTenant(tenantID)

	query := `
		SELECT entity_id, entity_type, SUM(weight) AS weight_sum
		FROM interactions
		WHERE tenant_id = $1 AND ts >= $2`
	args := []interface{}{tenantID, time.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)}

	if entityType != "" && entityType != "all" {
		query += " AND entity_type = $3"
		args = append(args, entityType)
	}
	query += " GROUP BY entity_id, entity_type ORDER BY weight_sum DESC LIMIT $" + fmt.Sprint(len(args)+1)
	args = append(args, k)

	var out []TrendingStat
	err := s.db.SelectContext(ctx, &out, query, args...)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to get trending entity stats")
	}
	return out, nil
}

// --- Maintenance scans (model updater) ---

// GetUsersWithRecentInteractions returns the distinct users who
// recorded at least one interaction since `since`, used by the
// incremental updater to limit preference-vector recomputation to
// users with new signal.
func (s *Store) GetUsersWithRecentInteractions(ctx context.Context, tenantID string, since time.Time) ([]string, error) {
	tenantID = resolveTenant(tenantID)
	var userIDs []string
	err := s.db.SelectContext(ctx, &userIDs, `
		SELECT DISTINCT user_id FROM interactions WHERE tenant_id = $1 AND ts >= $2
	`, tenantID, since)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list users with recent interactions")
	}
	return userIDs, nil
}

// GetAllUserIDs returns every distinct user with a profile, used by the
// full-rebuild task.
func (s *Store) GetAllUserIDs(ctx context.Context, tenantID string) ([]string, error) {
	tenantID = resolveTenant(tenantID)
	var userIDs []string
	err := s.db.SelectContext(ctx, &userIDs, `
		SELECT user_id FROM user_profiles WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list all user ids")
	}
	return userIDs, nil
}

// GetRecentlyModifiedEntities returns entities updated since `since`,
// used by the incremental updater to limit feature re-extraction to
// entities whose attributes actually changed.
func (s *Store) GetRecentlyModifiedEntities(ctx context.Context, tenantID string, since time.Time) ([]EntityRef, error) {
	tenantID = resolveTenant(tenantID)
	var refs []EntityRef
	err := s.db.SelectContext(ctx, &refs, `
		SELECT entity_id, entity_type FROM entities WHERE tenant_id = $1 AND updated_at >= $2
	`, tenantID, since)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list recently modified entities")
	}
	return refs, nil
}

// GetAllEntityRefs returns every entity for the tenant, used by the
// full-rebuild task to re-extract every feature vector from scratch.
func (s *Store) GetAllEntityRefs(ctx context.Context, tenantID string) ([]EntityRef, error) {
	tenantID = resolveTenant(tenantID)
	var refs []EntityRef
	err := s.db.SelectContext(ctx, &refs, `
		SELECT entity_id, entity_type FROM entities WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list all entity refs")
	}
	return refs, nil
}

// GetAllEntityTypes returns the distinct entity types present for a
// tenant, used by the trending task to compute per-type trending lists
// without the caller having to know the type taxonomy up front.
func (s *Store) GetAllEntityTypes(ctx context.Context, tenantID string) ([]string, error) {
	tenantID = resolveTenant(tenantID)
	var types []string
	err := s.db.SelectContext(ctx, &types, `
		SELECT DISTINCT entity_type FROM entities WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list entity types")
	}
	return types, nil
}

// RebuildIndices drops and recreates the HNSW ANN indices on both
// vector columns, used by the full-rebuild task after every preference
// and feature vector has been recomputed so the graph reflects the new
// vectors rather than degrading under repeated in-place updates.
// Deliberately not transactional (spec.md §5): DROP/CREATE INDEX on
// Postgres cannot run inside the same transaction as other DDL/DML
// without locking the table for the whole rebuild, and a half-rebuilt
// index pair is recoverable by simply re-running this method.
func (s *Store) RebuildIndices(ctx context.Context) error {
	m := s.config.HNSWM
	ef := s.config.HNSWEfConstruction

	if _, err := s.db.ExecContext(ctx, `DROP INDEX IF EXISTS entities_feature_vector_hnsw`); err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to drop entity feature vector index")
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE INDEX entities_feature_vector_hnsw ON entities
			USING hnsw (feature_vector vector_cosine_ops) WITH (m = %d, ef_construction = %d)
	`, m, ef)); err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to rebuild entity feature vector index")
	}

	if _, err := s.db.ExecContext(ctx, `DROP INDEX IF EXISTS user_profiles_pref_vector_hnsw`); err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to drop user preference vector index")
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE INDEX user_profiles_pref_vector_hnsw ON user_profiles
			USING hnsw (preference_vector vector_cosine_ops) WITH (m = %d, ef_construction = %d)
	`, m, ef)); err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to rebuild user preference vector index")
	}

	s.logger.Info("rebuilt vector ANN indices", map[string]interface{}{"m": m, "ef_construction": ef})
	return nil
}

// --- Batch operations ---

// BatchInsertEntities writes a batch of entities in a single
// transaction, returning the count written.
func (s *Store) BatchInsertEntities(ctx context.Context, entities []*Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to begin batch insert transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	written := 0
	for _, e := range entities {
		tenantID := resolveTenant(e.TenantID)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (tenant_id, entity_id, entity_type, attributes, feature_vector, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (tenant_id, entity_id, entity_type) DO UPDATE SET
				attributes = EXCLUDED.attributes, feature_vector = EXCLUDED.feature_vector, updated_at = EXCLUDED.updated_at
		`, tenantID, e.EntityID, e.EntityType, e.Attributes, vectorParam(e.FeatureVector), now)
		if err != nil {
			return written, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to batch insert entity")
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return written, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to commit batch insert")
	}
	return written, nil
}

// BulkImportInteractions writes a batch of interactions in a single
// transaction with ON CONFLICT DO NOTHING semantics under the dedup
// key, returning the count newly written.
func (s *Store) BulkImportInteractions(ctx context.Context, interactions []*Interaction) (int, error) {
	if len(interactions) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to begin bulk import transaction")
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for _, i := range interactions {
		tenantID := resolveTenant(i.TenantID)
		result, err := tx.ExecContext(ctx, `
			INSERT INTO interactions (tenant_id, user_id, entity_id, entity_type, interaction_type, weight, metadata, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, user_id, entity_id, interaction_type, ts) DO NOTHING
		`, tenantID, i.UserID, i.EntityID, i.EntityType, i.InteractionType, i.Weight, i.Metadata, i.Timestamp)
		if err != nil {
			return written, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to bulk import interaction")
		}
		if n, _ := result.RowsAffected(); n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return written, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to commit bulk import")
	}
	return written, nil
}

// --- Interaction-type registry ---

func (s *Store) RegisterInteractionType(ctx context.Context, tenantID, itype string, weight float32, description string) (*RegisteredInteractionType, error) {
	tenantID = resolveTenant(tenantID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interaction_types (tenant_id, interaction_type, weight, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, interaction_type) DO UPDATE SET weight = EXCLUDED.weight, description = EXCLUDED.description
	`, tenantID, itype, weight, description)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to register interaction type")
	}
	return &RegisteredInteractionType{TenantID: tenantID, InteractionType: itype, Weight: weight, Description: description}, nil
}

func (s *Store) GetInteractionType(ctx context.Context, tenantID, itype string) (*RegisteredInteractionType, error) {
	tenantID = resolveTenant(tenantID)
	var r RegisteredInteractionType
	err := s.db.GetContext(ctx, &r, `
		SELECT tenant_id, interaction_type, weight, description FROM interaction_types
		WHERE tenant_id = $1 AND interaction_type = $2
	`, tenantID, itype)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to get interaction type")
	}
	return &r, nil
}

func (s *Store) ListInteractionTypes(ctx context.Context, tenantID string) ([]RegisteredInteractionType, error) {
	tenantID = resolveTenant(tenantID)
	var out []RegisteredInteractionType
	err := s.db.SelectContext(ctx, &out, `
		SELECT tenant_id, interaction_type, weight, description FROM interaction_types WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to list interaction types")
	}
	return out, nil
}

func (s *Store) UpdateInteractionType(ctx context.Context, tenantID, itype string, weight float32, description string) error {
	tenantID = resolveTenant(tenantID)
	result, err := s.db.ExecContext(ctx, `
		UPDATE interaction_types SET weight = $3, description = $4 WHERE tenant_id = $1 AND interaction_type = $2
	`, tenantID, itype, weight, description)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to update interaction type")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return rerrors.Newf(rerrors.KindEntityNotFound, "interaction type %q not registered for tenant %q", itype, tenantID)
	}
	return nil
}

func (s *Store) DeleteInteractionType(ctx context.Context, tenantID, itype string) error {
	tenantID = resolveTenant(tenantID)
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM interaction_types WHERE tenant_id = $1 AND interaction_type = $2
	`, tenantID, itype)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to delete interaction type")
	}
	return nil
}

// GetInteractionWeight resolves registry -> built-in default ->
// value-of-rating, for a given interaction type string. "rating(4.5)"
// style values carry their own weight verbatim.
func (s *Store) GetInteractionWeight(ctx context.Context, tenantID, itype string) (float32, error) {
	if registered, err := s.GetInteractionType(ctx, tenantID, itype); err != nil {
		return 0, err
	} else if registered != nil {
		return registered.Weight, nil
	}

	var rating float32
	if _, err := fmt.Sscanf(itype, "rating(%g)", &rating); err == nil {
		return rating, nil
	}

	if w, ok := BuiltinWeight(itype); ok {
		return w, nil
	}

	return WeightCustomBase, nil
}

func vectorParam(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return FormatPgVector(v)
}

func isUniqueViolation(err error) bool {
	// lib/pq surfaces unique_violation as SQLSTATE 23505; checked via
	// string match rather than importing lib/pq's error type directly,
	// since sqlmock-driven tests never produce a *pq.Error.
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "23505", "duplicate key", "unique constraint")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
