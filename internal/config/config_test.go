package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"BOT_TOKEN":    "token",
		"BACKEND_URL":  "http://localhost:8000",
		"DATABASE_URL": "postgres://localhost/companion",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ProactiveInterval)
	assert.Equal(t, 60*time.Second, cfg.FocusWindow)
	assert.Equal(t, 5*time.Second, cfg.NotificationTTL)
	assert.Equal(t, "best_friend", cfg.DefaultPersonality)
	assert.True(t, cfg.OpeningMessages)
	assert.Equal(t, 20, cfg.RateLimitPerMinute)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing token", map[string]string{"BOT_TOKEN": ""}, "BOT_TOKEN"},
		{"postgres without url", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "mongo"}, "STORAGE_DRIVER"},
		{"zero interval", map[string]string{"PROACTIVE_INTERVAL": "0s"}, "PROACTIVE_INTERVAL"},
		{"zero rate", map[string]string{"RATE_LIMIT_PER_MINUTE": "0"}, "RATE_LIMIT_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range tt.env {
				if v == "" {
					delete(env, k)
					continue
				}
				env[k] = v
			}
			_, err := LoadFrom(env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSQLiteAndMemoryNeedNoDatabaseURL(t *testing.T) {
	for _, driver := range []string{"sqlite", " Memory "} {
		env := baseEnv()
		delete(env, "DATABASE_URL")
		env["STORAGE_DRIVER"] = driver

		cfg, err := LoadFrom(env)
		require.NoError(t, err, driver)
		assert.NotEqual(t, DriverPostgres, cfg.StorageDriver)
	}
}

func TestAdminsAndLogLevel(t *testing.T) {
	env := baseEnv()
	env["ADMIN_IDS"] = "1,2"
	env["LOG_LEVEL"] = "debug"

	cfg, err := LoadFrom(env)
	require.NoError(t, err)
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	cfg.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
