package service

import (
	"context"
	"errors"
	"log"

	"github.com/nandanugg/courier-tracking/module/tracking/internal/repository/database"
)

const MapsAPIKeySetting = "google_maps_api_key"

var ErrMissingAPIKey = errors.New("maps api key not configured")

// KeyService resolves the maps provider key, preferring the settings table
// and falling back to the statically configured value.
type KeyService struct {
	repo     database.SettingsRepository
	fallback string
}

func NewKeyService(repo database.SettingsRepository, fallback string) *KeyService {
	return &KeyService{repo: repo, fallback: fallback}
}

func (s *KeyService) MapsAPIKey(ctx context.Context) (string, error) {
	if s.repo != nil {
		key, err := s.repo.GetSetting(ctx, MapsAPIKeySetting)
		switch {
		case err == nil:
			return key, nil
		case !errors.Is(err, database.ErrSettingNotFound):
			log.Printf("maps api key lookup error: %v", err)
		}
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	return "", ErrMissingAPIKey
}
