// Package config loads service configuration from the environment so main
// stays lean. Network profiles and federation routing live in a JSON file
// loaded once at startup (see internal/network).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	JWTSigningKey string

	// LedgerBackend selects "memory" (dev/test) or "fabric".
	LedgerBackend string
	// IndexBackend selects "memory" or "postgres".
	IndexBackend string

	// WalletPath is the directory holding per-identity Fabric credentials.
	WalletPath string

	PostgresDSN string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	// NetworkProfilesPath points at the federation routing table. Empty means
	// built-in dev defaults.
	NetworkProfilesPath string

	SubmitTimeout   time.Duration
	EvaluateTimeout time.Duration
	IndexTimeout    time.Duration

	MirrorRetryLimit int
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:                envOr("LANDLEDGER_ADDR", ":8080"),
		JWTSigningKey:       envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		LedgerBackend:       envOr("LEDGER_BACKEND", "memory"),
		IndexBackend:        envOr("INDEX_BACKEND", "memory"),
		WalletPath:          envOr("FABRIC_WALLET_PATH", "wallet"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaTopic:          envOr("KAFKA_AUDIT_TOPIC", "landledger.audit"),
		NetworkProfilesPath: os.Getenv("NETWORK_PROFILES_PATH"),
		SubmitTimeout:       envDuration("SUBMIT_TIMEOUT", 2*time.Minute),
		EvaluateTimeout:     envDuration("EVALUATE_TIMEOUT", 5*time.Second),
		IndexTimeout:        envDuration("INDEX_TIMEOUT", 3*time.Second),
		MirrorRetryLimit:    envInt("MIRROR_RETRY_LIMIT", 5),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitComma(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
