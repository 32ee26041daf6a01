package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	TokenTTL      time.Duration

	// Simulated legacy sink knobs for environments where the real legacy
	// database is unreachable.
	LegacyMinLatency  time.Duration
	LegacyMaxLatency  time.Duration
	LegacyFailureRate float64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SCANHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:              addr,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSigningKey:     jwtSigningKey,
		TokenTTL:          durationFromEnv("TOKEN_TTL", 12*time.Hour),
		LegacyMinLatency:  durationFromEnv("LEGACY_MIN_LATENCY", 2*time.Second),
		LegacyMaxLatency:  durationFromEnv("LEGACY_MAX_LATENCY", 10*time.Second),
		LegacyFailureRate: floatFromEnv("LEGACY_FAILURE_RATE", 0.2),
	}
}

func durationFromEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func floatFromEnv(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}
