package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCleanDir keeps a developer's .env out of the test.
func withCleanDir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	withCleanDir(t)
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadDefaults(t *testing.T) {
	withCleanDir(t)
	for _, key := range []string{"PORT", "CART_TTL", "CHECKOUT_LOCK_TTL", "INVOICE_RENDERER", "INVOICE_STORAGE", "RUN_MIGRATIONS", "ACCESS_TOKEN_TTL_MINUTES", "REDIS_DB"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 12*time.Hour, cfg.CartTTL)
	assert.Equal(t, 60*time.Second, cfg.CheckoutLockTTL)
	assert.Equal(t, "html", cfg.InvoiceRenderer)
	assert.Equal(t, "fs", cfg.InvoiceStorage)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoadOverrides(t *testing.T) {
	withCleanDir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CART_TTL", "45m")
	t.Setenv("CHECKOUT_LOCK_TTL", "not-a-duration")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("INVOICE_RENDERER", "CHROMEDP")
	t.Setenv("INVOICE_STORAGE", "s3")
	t.Setenv("S3_BUCKET", "invoices")
	t.Setenv("S3_USE_PATH_STYLE", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 45*time.Minute, cfg.CartTTL)
	assert.Equal(t, 60*time.Second, cfg.CheckoutLockTTL)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "chromedp", cfg.InvoiceRenderer)
	assert.True(t, cfg.S3UsePathStyle)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	withCleanDir(t)
	t.Setenv("INVOICE_STORAGE", "")
	t.Setenv("INVOICE_RENDERER", "wkhtmltopdf")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("INVOICE_RENDERER", "html")
	t.Setenv("INVOICE_STORAGE", "s3")
	t.Setenv("S3_BUCKET", "")
	_, err = Load()
	assert.Error(t, err)
}
