package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/database"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// SetupDatabase connects to PostgreSQL and, when enabled, applies pending migrations.
func SetupDatabase(ctx context.Context, cfg *config.Config, log logger.Logger) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if !cfg.Database.AutoMigrate {
		return db, nil
	}

	migrator, err := database.NewMigrator(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if upErr := migrator.Up(); upErr != nil {
		_ = db.Close()
		return nil, upErr
	}

	return db, nil
}
