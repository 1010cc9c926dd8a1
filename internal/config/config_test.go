package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"STORE", "CORS_ORIGINS", "REDIS_ADDR", "DB_RETRY_MAX_ELAPSED", "RECONCILE_CONCURRENCY"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "", cfg.Server.Store)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.Database.RetryMaxElapsed)
	assert.Equal(t, 8, cfg.Reconcile.Concurrency)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE", StoreMemory)
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("DB_RETRY_MAX_ELAPSED", "500ms")
	t.Setenv("RECONCILE_CONCURRENCY", "3")
	t.Setenv("RECONCILE_REPAIR", "false")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "polls")

	cfg := FromEnv()
	assert.Equal(t, StoreMemory, cfg.Server.Store)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.RetryMaxElapsed)
	assert.Equal(t, 3, cfg.Reconcile.Concurrency)
	assert.False(t, cfg.Reconcile.Repair)
	assert.Equal(t, "postgres://u:p@db:6543/polls?sslmode=disable", cfg.Database.ConnString())
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RECONCILE_CONCURRENCY", "many")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	cfg := FromEnv()
	assert.Equal(t, 8, cfg.Reconcile.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}
