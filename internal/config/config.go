package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Embedding inference service (CLIP)
	EmbeddingServiceURL string
	EmbeddingAPIKey     string

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Redis (cache invalidation)
	RedisURL string

	// Pipeline tuning
	BatchConcurrency int
	BatchTimeout     time.Duration

	// Job reconciliation
	ReconcileInterval time.Duration
	RunningStaleAfter time.Duration
	PendingStaleAfter time.Duration

	// Server
	Port        string
	Environment string
}

func Load() (*Config, error) {
	cfg := &Config{
		EmbeddingServiceURL: getEnv("EMBEDDING_SERVICE_URL", ""),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "portfolio-images"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 3),
		BatchTimeout:     getEnvDuration("BATCH_TIMEOUT", 9*time.Minute),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		RunningStaleAfter: getEnvDuration("RUNNING_STALE_AFTER", 5*time.Minute),
		PendingStaleAfter: getEnvDuration("PENDING_STALE_AFTER", 30*time.Minute),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.EmbeddingServiceURL == "" {
		return fmt.Errorf("EMBEDDING_SERVICE_URL is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
