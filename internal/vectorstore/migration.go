package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/vasilistotskas/recommendation-engine/internal/rerrors"
)

// ApplyMigrations runs every pending migration under Config.MigrationsPath
// against the store's connection, grounded on the teacher's
// pkg/database/migration.Manager.RunMigrations. Called once at process
// startup, before Initialize's pgvector check, since migration 0001
// is what creates the extension and the entities/interactions/
// user_profiles tables in the first place.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to create postgres migration driver")
	}

	sourceURL := fmt.Sprintf("file://%s", s.config.MigrationsPath)
	migrator, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to construct migrator")
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return rerrors.Wrap(err, rerrors.KindDatabaseError, "failed to apply migrations")
	}

	s.logger.Info("applied pending migrations", map[string]interface{}{"path": s.config.MigrationsPath})
	return nil
}
