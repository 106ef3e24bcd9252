package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "@every 5m", cfg.Dispatch.AssignmentSchedule)
	assert.Equal(t, "@every 1m", cfg.Dispatch.MailQueueSchedule)
	assert.Equal(t, "@weekly", cfg.Dispatch.CleanupSchedule)
	assert.Equal(t, 9, cfg.Dispatch.AutumnStartMonth)
	assert.Equal(t, 1, cfg.Dispatch.SpringStartMonth)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.LockTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Token.Expiration)
	assert.False(t, cfg.Dispatch.Enabled)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ENABLE_DISPATCH", "true")
	t.Setenv("DISPATCH_BATCH_SIZE", "50")
	t.Setenv("DISPATCH_SEND_COOLDOWN", "2s")
	t.Setenv("TOKEN_EXPIRATION", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", " https://lms.example , ,https://admin.example")
	t.Setenv("MAIL_DEFAULT_SITE_ID", "site-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Dispatch.Enabled)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.SendCooldown)
	assert.Equal(t, 30*24*time.Hour, cfg.Token.Expiration)
	assert.Equal(t, []string{"https://lms.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "site-1", cfg.Mail.DefaultSiteID)
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Empty(t, splitAndTrim(" , "))
}
