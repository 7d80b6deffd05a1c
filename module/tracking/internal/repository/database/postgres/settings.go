package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/database"
)

var _ database.SettingsRepository = (*SettingsRepo)(nil)

type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) GetSetting(ctx context.Context, key string) (string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = $1 AND enabled = TRUE LIMIT 1`,
		key,
	)

	var value sql.NullString
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	if !value.Valid || value.String == "" {
		return "", database.ErrSettingNotFound
	}
	return value.String, nil
}
