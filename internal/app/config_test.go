package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.AccessTTL)
	require.Equal(t, 24*time.Hour, cfg.Auth.JWT.PurposeTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 32, cfg.Auth.Session.SecretLength)
	require.True(t, cfg.Housekeeping.Enabled)
	require.Equal(t, "@hourly", cfg.Housekeeping.Schedule)
	require.Equal(t, 30*24*time.Hour, cfg.Housekeeping.SessionAuditWindow)
	require.False(t, cfg.Email.SMTP.Enabled)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	contents := `
server:
  port: 9100
auth:
  jwt:
    secret: file-secret
  session:
    refresh_token_ttl: 24h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "file-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 24*time.Hour, cfg.Auth.Session.RefreshTTL)
	// Untouched keys keep their defaults.
	require.Equal(t, "santier", cfg.Auth.JWT.Issuer)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SANTIER_SERVER_PORT", "9200")
	t.Setenv("SANTIER_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}
