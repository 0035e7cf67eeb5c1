package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/stellar-map/pkg/logger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stellar-map", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)

	assert.EqualValues(t, 50, cfg.Engine.DefaultReward)
	assert.False(t, cfg.Engine.EnforceNodeUnlockXP)
	assert.True(t, cfg.Engine.ShowConstellationLinks)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.PickCacheWindow)
	assert.Equal(t, 16*time.Millisecond, cfg.Engine.FrameInterval)
	assert.Equal(t, 5*time.Minute, cfg.Engine.HierarchyCacheTTL)
	assert.Equal(t, "0 * * * *", cfg.Worker.AuditSchedule)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/stellar")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("ENFORCE_NODE_UNLOCK_XP", "true")
	t.Setenv("CONSTELLATION_ALIASES", "Wheel Harmonisers:Wheel Harmonizers,Shel:Shell")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://localhost/stellar", cfg.Database.URL)
	assert.EqualValues(t, 20, cfg.Database.PoolSettings().MaxConns)
	assert.Equal(t, "localhost:6380", cfg.Redis.CacheConfig().Addr())
	assert.True(t, cfg.Engine.EnforceNodeUnlockXP)
	assert.Equal(t, map[string]string{
		"Wheel Harmonisers": "Wheel Harmonizers",
		"Shel":              "Shell",
	}, cfg.Engine.ConstellationAliases)
	assert.Equal(t, logger.LevelWarn, cfg.LoggerOptions().Level)
}

func TestDebugForcesDebugLevel(t *testing.T) {
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	opts := cfg.LoggerOptions()
	assert.Equal(t, logger.LevelDebug, opts.Level)
	assert.True(t, opts.Development)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Setenv("APP_ENV", "qa")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DEFAULT_REWARD", "-5")
	t.Setenv("TRACING_SAMPLE_RATIO", "2")
	t.Setenv("WORKER_AUDIT_SCHEDULE", "not a cron")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "configuration errors:")
	assert.Contains(t, msg, "APP_ENV")
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "DEFAULT_REWARD")
	assert.Contains(t, msg, "TRACING_SAMPLE_RATIO")
	assert.Contains(t, msg, "WORKER_AUDIT_SCHEDULE")
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("FRAME_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestCoreTablePathMustExist(t *testing.T) {
	t.Setenv("CORE_TABLE_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORE_TABLE_PATH")

	path := filepath.Join(t.TempDir(), "cores.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cores: []\n"), 0o600))
	t.Setenv("CORE_TABLE_PATH", path)
	_, err = Load()
	require.NoError(t, err)
}

func TestOverridesApplyBeforeValidation(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg, err := Load(func(c *Config) {
		c.Database.Driver = DriverSQLite
		c.Database.SQLitePath = "local.sqlite"
	})
	require.NoError(t, err)
	assert.Equal(t, "local.sqlite", cfg.Database.SQLitePath)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, AppConfig{Timezone: "Nowhere/Land"}.Location())
	assert.Equal(t, "Asia/Almaty", AppConfig{Timezone: "Asia/Almaty"}.Location().String())
}
