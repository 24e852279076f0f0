package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// keep any .env/config file in the repo root out of the picture
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "data/finbook.db", cfg.Database.Path)
	assert.Equal(t, 3600, cfg.Auth.TokenTTLSeconds)
	assert.False(t, cfg.Reports.AsyncImport)
	assert.Equal(t, 2, cfg.Reports.MaxConcurrentImports)
	assert.Equal(t, "finbook-reports", cfg.Storage.KeyPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FINBOOK_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("FINBOOK_AUTH_JWTSECRET", "super-secret")
	t.Setenv("FINBOOK_REPORTS_ASYNCIMPORT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Reports.AsyncImport)
}
