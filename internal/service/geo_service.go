package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type geoRepository interface {
	ListCountries(ctx context.Context) ([]models.Country, error)
	ListCities(ctx context.Context, countryID string) ([]models.City, error)
}

type lookupCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// GeoService serves the country and city lookups, cached when a cache is
// configured.
type GeoService struct {
	repo   geoRepository
	cache  lookupCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewGeoService constructs GeoService. cache may be nil.
func NewGeoService(repo geoRepository, cache lookupCache, ttl time.Duration, logger *zap.Logger) *GeoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &GeoService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Countries lists every country.
func (s *GeoService) Countries(ctx context.Context) ([]models.Country, error) {
	var countries []models.Country
	if s.cached(ctx, "geo:countries", &countries) {
		return countries, nil
	}
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list countries")
	}
	s.store(ctx, "geo:countries", countries)
	return countries, nil
}

// Cities lists cities, optionally restricted to one country.
func (s *GeoService) Cities(ctx context.Context, countryID string) ([]models.City, error) {
	key := "geo:cities:" + countryID
	var cities []models.City
	if s.cached(ctx, key, &cities) {
		return cities, nil
	}
	cities, err := s.repo.ListCities(ctx, countryID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list cities")
	}
	s.store(ctx, key, cities)
	return cities, nil
}

func (s *GeoService) cached(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("geo cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *GeoService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("geo cache write failed", zap.String("key", key), zap.Error(err))
	}
}
