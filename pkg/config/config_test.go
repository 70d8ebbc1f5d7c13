package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatos-project/gatos/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns safe defaults when no
// GATOS_* environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATOS_REPO_PATH", "")
	t.Setenv("GATOS_LOG_LEVEL", "")
	t.Setenv("GATOS_RPC_SOCKET", "")
	t.Setenv("GATOS_MAX_MESSAGES_PER_SEGMENT", "")
	t.Setenv("GATOS_MAX_BYTES_PER_SEGMENT", "")
	t.Setenv("GATOS_JOURNAL_RETRY_ATTEMPTS", "")
	t.Setenv("GATOS_TEST_MODE", "")

	cfg := config.Load()

	assert.Equal(t, "./data/gatos.git", cfg.RepoPath)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "/run/gatosd.sock", cfg.RPCSocket)
	assert.Equal(t, 100_000, cfg.MaxMessagesPerSegment)
	assert.Equal(t, int64(192<<20), cfg.MaxBytesPerSegment)
	assert.Equal(t, 3, cfg.JournalRetryAttempts)
	assert.False(t, cfg.TestMode)
	assert.Equal(t, "./pkg/config/policyprofiles", cfg.PolicyProfilesDir)
	assert.Equal(t, "default", cfg.PolicyProfileCode)
	assert.Equal(t, "dev-insecure-secret-change-me", cfg.JWTHMACSecret)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTelEndpoint)
}

// TestLoad_Overrides verifies that GATOS_* environment variables override
// defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATOS_REPO_PATH", "/var/lib/gatos")
	t.Setenv("GATOS_LOG_LEVEL", "DEBUG")
	t.Setenv("GATOS_RPC_SOCKET", "/tmp/gatosd.sock")
	t.Setenv("GATOS_MAX_MESSAGES_PER_SEGMENT", "500")
	t.Setenv("GATOS_MAX_BYTES_PER_SEGMENT", "1024")
	t.Setenv("GATOS_JOURNAL_RETRY_ATTEMPTS", "5")
	t.Setenv("GATOS_TEST_MODE", "true")

	cfg := config.Load()

	assert.Equal(t, "/var/lib/gatos", cfg.RepoPath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/tmp/gatosd.sock", cfg.RPCSocket)
	assert.Equal(t, 500, cfg.MaxMessagesPerSegment)
	assert.Equal(t, int64(1024), cfg.MaxBytesPerSegment)
	assert.Equal(t, 5, cfg.JournalRetryAttempts)
	assert.True(t, cfg.TestMode)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("GATOS_MAX_MESSAGES_PER_SEGMENT", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 100_000, cfg.MaxMessagesPerSegment)
}
