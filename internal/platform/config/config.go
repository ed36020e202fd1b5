// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures server-level configuration.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	JWTSigningKey string

	// StoreTimeout bounds every persistent-store and blob operation.
	StoreTimeout time.Duration
	// UploadMaxBytes is the document upload size ceiling.
	UploadMaxBytes int64
	// AllowedContentTypes is the upload MIME allow-list.
	AllowedContentTypes []string
	// SignedURLTTL is how long issued download URLs stay valid.
	SignedURLTTL time.Duration
}

// RedisConfig captures Redis client tuning.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:                getenv("CERTPORTAL_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("CERTPORTAL_DATABASE_URL"),
		RedisURL:            os.Getenv("CERTPORTAL_REDIS_URL"),
		JWTSigningKey:       getenv("CERTPORTAL_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		StoreTimeout:        getenvDuration("CERTPORTAL_STORE_TIMEOUT", 8*time.Second),
		UploadMaxBytes:      getenvInt64("CERTPORTAL_UPLOAD_MAX_BYTES", 10<<20),
		AllowedContentTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		SignedURLTTL:        getenvDuration("CERTPORTAL_SIGNED_URL_TTL", 15*time.Minute),
	}
	if brokers := os.Getenv("CERTPORTAL_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

// Redis derives the Redis client configuration.
func (c Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
