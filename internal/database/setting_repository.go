package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
)

const settingSelectColumns = `key, value, updated_by, updated_at`

// SettingRepository stores runtime settings as key/value rows.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository creates a new setting repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the setting for key, or domain.ErrNotFound.
func (r *SettingRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	query := `SELECT ` + settingSelectColumns + ` FROM settings WHERE key = $1`

	var setting domain.Setting
	if err := r.db.GetContext(ctx, &setting, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStoreError("get setting", err)
	}

	return &setting, nil
}

// Set upserts key with value, recording actor as the writer.
func (r *SettingRepository) Set(ctx context.Context, key, value, actor string) error {
	query := `
		INSERT INTO settings (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, key, value, actor); err != nil {
		return domain.NewStoreError("set setting", err)
	}
	return nil
}

// ConsumeFlag atomically flips a "true" flag back to "false" and reports
// whether it was set. Concurrent consumers observe at most one true.
func (r *SettingRepository) ConsumeFlag(ctx context.Context, key, actor string) (bool, error) {
	query := `
		UPDATE settings
		SET value = 'false', updated_by = $2, updated_at = NOW()
		WHERE key = $1 AND value = 'true'
	`

	result, err := r.db.ExecContext(ctx, query, key, actor)
	if err != nil {
		return false, domain.NewStoreError("consume flag", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewStoreError("consume flag", err)
	}

	return n > 0, nil
}

// List returns all settings ordered by key.
func (r *SettingRepository) List(ctx context.Context) ([]*domain.Setting, error) {
	query := `SELECT ` + settingSelectColumns + ` FROM settings ORDER BY key`

	var settings []*domain.Setting
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, domain.NewStoreError("list settings", err)
	}

	if settings == nil {
		settings = []*domain.Setting{}
	}

	return settings, nil
}
