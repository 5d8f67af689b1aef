package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "ecoquest.db", cfg.SQLite.Path)
	assert.Equal(t, LockLocal, cfg.Ledger.LockBackend)
	assert.Equal(t, 5, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 20, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 100, cfg.Leaderboard.MaxLimit)
	assert.Equal(t, "@every 1m", cfg.Scheduler.WarmLeaderboardSchedule)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.False(t, cfg.UseRedisLock())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "eco")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("LEDGER_LOCK_BACKEND", "redis")
	t.Setenv("LEADERBOARD_CACHE_TTL", "30s")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://eco:pw@db:5432/ecoquest?sslmode=disable", cfg.Database.URL)
	assert.True(t, cfg.UseRedisLock())
	assert.Equal(t, 30*time.Second, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("LEADERBOARD_CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Leaderboard.CacheTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres without url",
			env:     map[string]string{"STORAGE_DRIVER": "postgres"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORAGE_DRIVER": "mongo"},
			wantErr: `STORAGE_DRIVER "mongo"`,
		},
		{
			name:    "redis lock without redis",
			env:     map[string]string{"LEDGER_LOCK_BACKEND": "redis"},
			wantErr: "requires REDIS_ENABLED",
		},
		{
			name:    "memory in production",
			env:     map[string]string{"STORAGE_DRIVER": "memory", "APP_ENV": "production", "ADMIN_TOKEN_HASH": "x"},
			wantErr: "memory driver is not allowed",
		},
		{
			name:    "admin endpoints in production without hash",
			env:     map[string]string{"APP_ENV": "production"},
			wantErr: "ADMIN_TOKEN_HASH is required",
		},
		{
			name:    "default limit above max",
			env:     map[string]string{"LEADERBOARD_DEFAULT_LIMIT": "500"},
			wantErr: "LEADERBOARD_DEFAULT_LIMIT",
		},
		{
			name:    "zero attempts",
			env:     map[string]string{"LEDGER_MAX_ATTEMPTS": "0"},
			wantErr: "LEDGER_MAX_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFeatureFlags_DefaultsAndEnvironment(t *testing.T) {
	t.Setenv("FEATURE_DISTRIBUTED_EVENTS", "true")
	t.Setenv("FEATURE_LEDGER_AUDIT_JOB", "false")

	ff := LoadFeatureFlags()
	assert.True(t, ff.Enabled(FeatureLeaderboardCache))
	assert.True(t, ff.Enabled(FeatureDistributedEvents))
	assert.False(t, ff.Enabled(FeatureLedgerAuditJob))
	assert.True(t, ff.Enabled(FeatureAdminEndpoints))
	assert.False(t, ff.Enabled("no_such_feature"))
	assert.Len(t, ff.All(), 4)
}

func TestFeatureFlags_PartialRolloutIsStablePerSubject(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureLeaderboardCache, 50))

	assert.False(t, ff.Enabled(FeatureLeaderboardCache))

	in, out := 0, 0
	for i := 0; i < 200; i++ {
		subject := "student-" + time.Duration(i).String()
		first := ff.IsEnabled(FeatureLeaderboardCache, subject)
		assert.Equal(t, first, ff.IsEnabled(FeatureLeaderboardCache, subject))
		if first {
			in++
		} else {
			out++
		}
	}
	assert.Positive(t, in)
	assert.Positive(t, out)

	ff.SetOverride("student-x", FeatureLeaderboardCache, true)
	assert.True(t, ff.IsEnabled(FeatureLeaderboardCache, "student-x"))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureLeaderboardCache, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("missing"), ErrFeatureNotFound)
}
