package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// SiteRepository reads per-site mail configuration.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository constructs the repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// FindBySiteID returns the configuration of an enabled site.
func (r *SiteRepository) FindBySiteID(ctx context.Context, siteID string) (*models.SiteConfiguration, error) {
	const query = `SELECT site_id, domain, smtp_host, smtp_port, smtp_username, smtp_password, use_tls, use_ssl, from_email, from_name, enabled
FROM site_configurations WHERE site_id = $1 AND enabled = TRUE`
	var site models.SiteConfiguration
	if err := r.db.GetContext(ctx, &site, query, siteID); err != nil {
		return nil, err
	}
	return &site, nil
}
