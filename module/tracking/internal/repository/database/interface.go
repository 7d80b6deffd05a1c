package database

import (
	"context"
	"errors"
)

var ErrSettingNotFound = errors.New("setting not found")

type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
}
