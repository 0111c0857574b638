package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Platform.MaxPages)
	assert.Equal(t, 400, cfg.Persistence.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 15*time.Second, cfg.Platform.Timeout())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INSIGHTS_CACHE_TTL_MINUTES", "5")
	t.Setenv("INSIGHTS_PLATFORM_MAX_PAGES", "40")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 40, cfg.Platform.MaxPages)
}

func TestReportingLocation(t *testing.T) {
	assert.Equal(t, time.UTC, ReportingConfig{}.Location())
	assert.Equal(t, time.UTC, ReportingConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "America/Mexico_City", ReportingConfig{Timezone: "America/Mexico_City"}.Location().String())
}

func TestInitLogger_BadLevel(t *testing.T) {
	_, err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
