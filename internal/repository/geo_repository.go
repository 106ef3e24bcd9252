package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// GeoRepository serves the city and country lookups.
type GeoRepository struct {
	db *sqlx.DB
}

// NewGeoRepository constructs the repository.
func NewGeoRepository(db *sqlx.DB) *GeoRepository {
	return &GeoRepository{db: db}
}

// ListCountries returns all countries ordered by name.
func (r *GeoRepository) ListCountries(ctx context.Context) ([]models.Country, error) {
	var countries []models.Country
	if err := r.db.SelectContext(ctx, &countries, "SELECT id, code, name FROM countries ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return countries, nil
}

// ListCities returns cities, optionally limited to one country.
func (r *GeoRepository) ListCities(ctx context.Context, countryID string) ([]models.City, error) {
	query := "SELECT id, name, country_id FROM cities"
	var args []interface{}
	if countryID != "" {
		query += " WHERE country_id = $1"
		args = append(args, countryID)
	}
	query += " ORDER BY name"
	var cities []models.City
	if err := r.db.SelectContext(ctx, &cities, query, args...); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}
