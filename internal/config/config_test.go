package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("RECONCILE_INTERVAL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg := LoadConfig()
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Worker.Interval)
	assert.Equal(t, 5*time.Hour, cfg.Worker.AutoDischargeWindow)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("RECONCILE_CONCURRENCY", "not-a-number")
	t.Setenv("SLOT_CACHE_TTL", "-1m")
	t.Setenv("ALLOWED_ORIGINS", " https://clinic.example , ,https://ops.example")

	cfg := LoadConfig()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Redis.SlotCacheTTL)
	assert.Equal(t, []string{"https://clinic.example", "https://ops.example"}, cfg.CORS.AllowedOrigins)
}
