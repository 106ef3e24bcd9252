package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
)

type countingSiteRepo struct {
	sites map[string]models.SiteConfiguration
	calls int
}

func (r *countingSiteRepo) FindBySiteID(ctx context.Context, siteID string) (*models.SiteConfiguration, error) {
	r.calls++
	site, ok := r.sites[siteID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &site, nil
}

func newSiteRepo() *countingSiteRepo {
	return &countingSiteRepo{sites: map[string]models.SiteConfiguration{
		"north": {SiteID: "north", SMTPHost: "smtp.north", SMTPPort: 587, SMTPUsername: "mailer", SMTPPassword: "n0rth-secret", Enabled: true},
		"south": {SiteID: "south", SMTPHost: "smtp.south", SMTPPort: 465, SMTPPassword: "s0uth-secret", Enabled: true},
	}}
}

func TestSiteResolverKeepsPasswordOutOfCache(t *testing.T) {
	repo := newSiteRepo()
	cache := jsonLookupCache{}
	resolver := NewCachedSiteResolver(repo, cache, time.Minute, "north", nil)
	ctx := context.Background()

	site, err := resolver.Resolve(ctx, "south")
	require.NoError(t, err)
	assert.Equal(t, "s0uth-secret", site.SMTPPassword)

	raw, ok := cache["site-config:south"]
	require.True(t, ok)
	assert.NotContains(t, string(raw), "s0uth-secret")
	assert.Contains(t, string(raw), "smtp.south")

	site, err = resolver.Resolve(ctx, "south")
	require.NoError(t, err)
	assert.Equal(t, "s0uth-secret", site.SMTPPassword)
	assert.Equal(t, 1, repo.calls)
}

func TestSiteResolverReloadsPasswordOnForeignCacheHit(t *testing.T) {
	repo := newSiteRepo()
	cache := jsonLookupCache{}
	ctx := context.Background()

	// Another replica filled the shared cache.
	_, err := NewCachedSiteResolver(repo, cache, time.Minute, "", nil).Resolve(ctx, "north")
	require.NoError(t, err)

	fresh := NewCachedSiteResolver(repo, cache, time.Minute, "", nil)
	site, err := fresh.Resolve(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, "n0rth-secret", site.SMTPPassword)
	assert.Equal(t, 2, repo.calls)
}

func TestSiteResolverFallsBackToDefault(t *testing.T) {
	resolver := NewCachedSiteResolver(newSiteRepo(), nil, time.Minute, "north", nil)

	site, err := resolver.Resolve(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "north", site.SiteID)

	_, err = NewCachedSiteResolver(newSiteRepo(), nil, time.Minute, "", nil).Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
