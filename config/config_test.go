package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rankings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 60*time.Second, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, 20, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, "Asia/Almaty", cfg.Location().String())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeYAML(t, `
store:
  driver: sqlite
  sqlite_path: /var/lib/rankings/rankings.db
leaderboard:
  cache_ttl: 2m
  default_limit: 50
http:
  port: 9000
  allowed_origins: ["https://example.org"]
features:
  notify_new_follower: 25
`)
	t.Setenv("RANKINGS_HTTP__PORT", "9090")
	t.Setenv("RANKINGS_REDIS__ENABLED", "true")
	t.Setenv("RANKINGS_FEATURES__WARM_PAGES", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/rankings/rankings.db", cfg.Store.SQLitePath)
	assert.Equal(t, 2*time.Minute, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, 50, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 9090, cfg.HTTP.Port, "env overrides the file")
	assert.Equal(t, []string{"https://example.org"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost", cfg.Redis.Host, "unset keys keep their defaults")

	flags, err := NewFeatureFlags(cfg.Features)
	require.NoError(t, err)
	assert.False(t, flags.IsEnabled(FeatureWarmPages, ""))
	assert.Equal(t, 25, flags.GetAllFeatures()[FeatureNotifyNewFollower].RolloutPercent)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, writeYAML(t, "http:\n  port: 7070\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = DriverPostgres
	cfg.Leaderboard.DefaultLimit = 0
	cfg.Leaderboard.Timezone = "Mars/Olympus"
	cfg.HTTP.Port = 0
	cfg.Observability.TracingEnabled = true
	cfg.Features = map[string]any{"teleport": true}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"store.database_url",
		"leaderboard.default_limit",
		"leaderboard.timezone",
		"http.port",
		"observability.tracing_endpoint",
		"features.teleport: unknown feature",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ProductionRejectsMemoryStore(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = EnvProduction
	assert.ErrorContains(t, cfg.Validate(), "not allowed in production")

	cfg.Store.Driver = DriverPostgres
	cfg.Store.DatabaseURL = "postgres://localhost/rankings"
	assert.NoError(t, cfg.Validate())
}

func TestFeatureFlags(t *testing.T) {
	flags, err := NewFeatureFlags(map[string]any{
		FeatureNotifyNewFollower:  "50%",
		FeatureStandingRecorder:   false,
		FeatureReputationOnFollow: 100,
	})
	require.NoError(t, err)

	assert.True(t, flags.IsEnabled(FeatureReputationOnFollow, "alice"))
	assert.False(t, flags.IsEnabled(FeatureStandingRecorder, "alice"))
	assert.False(t, flags.IsEnabled("unknown", "alice"))

	// stable buckets: the same user always gets the same answer
	first := flags.IsEnabled(FeatureNotifyNewFollower, "alice")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, flags.IsEnabled(FeatureNotifyNewFollower, "alice"))
	}

	enabled := 0
	for i := 0; i < 1000; i++ {
		if flags.IsEnabled(FeatureNotifyNewFollower, "user-"+string(rune('a'+i%26))+string(rune('a'+i/26))) {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 150)

	require.NoError(t, flags.SetRolloutPercent(FeatureNotifyNewFollower, 0))
	assert.False(t, flags.IsEnabled(FeatureNotifyNewFollower, "alice"))
	assert.Error(t, flags.SetRolloutPercent(FeatureNotifyNewFollower, 101))
}

func TestFeatureFlags_RejectsBadValues(t *testing.T) {
	_, err := NewFeatureFlags(map[string]any{
		FeatureWarmPages:         "sometimes",
		FeatureNotifyNewFollower: 150,
	})
	var ffErr *FeatureFlagError
	require.ErrorAs(t, err, &ffErr)
	assert.Len(t, ffErr.Problems, 2)
}
