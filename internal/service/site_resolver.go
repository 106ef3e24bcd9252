package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
)

type siteRepository interface {
	FindBySiteID(ctx context.Context, siteID string) (*models.SiteConfiguration, error)
}

// SiteResolver returns the mail identity of a site at send time.
type SiteResolver interface {
	Resolve(ctx context.Context, siteID string) (*models.SiteConfiguration, error)
}

// CachedSiteResolver reads site configurations through the cache. Unknown
// or disabled sites fall back to the default site. The shared cache holds
// configurations without the SMTP password; passwords are kept in process
// and a cache hit without a known password reloads from the repository.
type CachedSiteResolver struct {
	repo          siteRepository
	cache         lookupCache
	ttl           time.Duration
	defaultSiteID string
	logger        *zap.Logger

	mu        sync.RWMutex
	passwords map[string]string
}

// NewCachedSiteResolver constructs CachedSiteResolver. cache may be nil.
func NewCachedSiteResolver(repo siteRepository, cache lookupCache, ttl time.Duration, defaultSiteID string, logger *zap.Logger) *CachedSiteResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSiteResolver{repo: repo, cache: cache, ttl: ttl, defaultSiteID: defaultSiteID, logger: logger, passwords: make(map[string]string)}
}

// Resolve implements SiteResolver.
func (r *CachedSiteResolver) Resolve(ctx context.Context, siteID string) (*models.SiteConfiguration, error) {
	if siteID == "" {
		siteID = r.defaultSiteID
	}
	site, err := r.lookup(ctx, siteID)
	if err == nil {
		return site, nil
	}
	if errors.Is(err, sql.ErrNoRows) && siteID != r.defaultSiteID && r.defaultSiteID != "" {
		r.logger.Warn("site configuration missing, using default", zap.String("site_id", siteID))
		return r.lookup(ctx, r.defaultSiteID)
	}
	return nil, err
}

func (r *CachedSiteResolver) lookup(ctx context.Context, siteID string) (*models.SiteConfiguration, error) {
	if siteID == "" {
		return nil, fmt.Errorf("resolve site: %w", sql.ErrNoRows)
	}
	key := "site-config:" + siteID
	if r.cache != nil {
		var cached models.SiteConfiguration
		hit, err := r.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			r.mu.RLock()
			password, ok := r.passwords[siteID]
			r.mu.RUnlock()
			if ok {
				cached.SMTPPassword = password
				return &cached, nil
			}
		}
	}
	site, err := r.repo.FindBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.passwords[siteID] = site.SMTPPassword
	r.mu.Unlock()
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, site, r.ttl); err != nil {
			r.logger.Debug("site configuration not cached", zap.String("site_id", siteID), zap.Error(err))
		}
	}
	return site, nil
}
