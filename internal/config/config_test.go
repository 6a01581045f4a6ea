package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(false)
		require.NoError(t, err)
		require.Equal(t, "roominfo.db", cfg.DBFile)
		require.Equal(t, 24*time.Hour, cfg.TokenExpiry)
		require.Equal(t, time.Minute, cfg.PermissionTTL)
		require.Equal(t, "text", cfg.LogFormat)
		require.Equal(t, "https://meet.jit.si", cfg.JitsiBaseURL)
		require.False(t, cfg.UseRealName)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "JSON")
		t.Setenv("USE_REAL_NAME", "true")
		t.Setenv("JITSI_BASE_URL", "https://video.example.com/")
		t.Setenv("PERMISSION_TTL", "5s")

		cfg, err := Load(false)
		require.NoError(t, err)
		require.Equal(t, "json", cfg.LogFormat)
		require.True(t, cfg.UseRealName)
		require.Equal(t, "https://video.example.com", cfg.JitsiBaseURL)
		require.Equal(t, 5*time.Second, cfg.PermissionTTL)
	})

	t.Run("DotEnv", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ROOMINFO_DB=from-dotenv.db\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("ROOMINFO_DB") })

		cfg, err := Load(false)
		require.NoError(t, err)
		require.Equal(t, "from-dotenv.db", cfg.DBFile)
	})

	t.Run("BadDuration", func(t *testing.T) {
		t.Setenv("TOKEN_EXPIRY", "soon")
		_, err := Load(false)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{
		DBFile:        "db",
		AdminAddr:     "localhost:8081",
		APIAddr:       ":8080",
		TokenExpiry:   time.Hour,
		PermissionTTL: time.Minute,
		LogFormat:     "text",
		LogLevel:      "info",
		FeedBuffer:    1,
	}
	require.NoError(t, valid.Validate(false))

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero token expiry", func(c *Config) { c.TokenExpiry = 0 }},
		{"zero permission ttl", func(c *Config) { c.PermissionTTL = 0 }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }},
		{"empty feed buffer", func(c *Config) { c.FeedBuffer = 0 }},
		{"negative role concurrency", func(c *Config) { c.RoleConcurrency = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			require.Error(t, cfg.Validate(false))
			// CLI mode only needs the admin address
			require.NoError(t, cfg.Validate(true))
		})
	}
}
