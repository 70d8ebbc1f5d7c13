package config

import (
	"os"
	"strconv"
)

// Config holds gatosd's process-wide configuration, loaded from environment
// variables per the teacher's 12-factor Load() pattern (pkg/config.Load in
// the teacher repo).
type Config struct {
	RepoPath              string
	LogLevel              string
	RPCSocket             string
	MaxMessagesPerSegment int
	MaxBytesPerSegment    int64
	JournalRetryAttempts  int
	TestMode              bool
	PolicyProfilesDir     string
	PolicyProfileCode     string
	JWTHMACSecret         string
	OTelEnabled           bool
	OTelEndpoint          string
}

const (
	defaultRepoPath              = "./data/gatos.git"
	defaultLogLevel              = "INFO"
	defaultRPCSocket             = "/run/gatosd.sock"
	defaultMaxMessagesPerSegment = 100_000
	defaultMaxBytesPerSegment    = 192 << 20
	defaultJournalRetryAttempts  = 3
	defaultPolicyProfilesDir     = "./pkg/config/policyprofiles"
	defaultPolicyProfileCode     = "default"
	defaultJWTHMACSecret         = "dev-insecure-secret-change-me"
	defaultOTelEndpoint          = "localhost:4317"
)

// Load reads GATOS_* environment variables, falling back to safe
// development defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		RepoPath:             getEnvOr("GATOS_REPO_PATH", defaultRepoPath),
		LogLevel:             getEnvOr("GATOS_LOG_LEVEL", defaultLogLevel),
		RPCSocket:            getEnvOr("GATOS_RPC_SOCKET", defaultRPCSocket),
		MaxMessagesPerSegment: getEnvIntOr("GATOS_MAX_MESSAGES_PER_SEGMENT", defaultMaxMessagesPerSegment),
		MaxBytesPerSegment:    getEnvInt64Or("GATOS_MAX_BYTES_PER_SEGMENT", defaultMaxBytesPerSegment),
		JournalRetryAttempts:  getEnvIntOr("GATOS_JOURNAL_RETRY_ATTEMPTS", defaultJournalRetryAttempts),
		TestMode:              os.Getenv("GATOS_TEST_MODE") == "true",
		PolicyProfilesDir:     getEnvOr("GATOS_POLICY_PROFILES_DIR", defaultPolicyProfilesDir),
		PolicyProfileCode:     getEnvOr("GATOS_POLICY_PROFILE", defaultPolicyProfileCode),
		JWTHMACSecret:         getEnvOr("GATOS_JWT_HMAC_SECRET", defaultJWTHMACSecret),
		OTelEnabled:           os.Getenv("GATOS_OTEL_ENABLED") == "true",
		OTelEndpoint:          getEnvOr("GATOS_OTEL_ENDPOINT", defaultOTelEndpoint),
	}
	return cfg
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64Or(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
