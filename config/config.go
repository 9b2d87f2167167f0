package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Cache configuration
	Cache CacheConfig

	// Gateway configuration
	Gateway GatewayConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Production toggles JSON logging
	Production bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration. An empty URL disables the shared
// cache tier and the gateway runs on the in-process tier alone.
type RedisConfig struct {
	URL string
}

// CacheConfig holds the rules cache windows
type CacheConfig struct {
	RulesFresh time.Duration
	RulesStale time.Duration
}

// GatewayConfig holds proxy behavior configuration
type GatewayConfig struct {
	// MasterSecret is the root secret for per-user credential encryption
	MasterSecret string
	// APIPrefix is the inbound path segment replaced when building upstream URLs
	APIPrefix string
	// UserAgent is sent upstream when the client supplied none
	UserAgent string
	// KeyLength is the number of random bytes in a generated virtual key
	KeyLength int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// oneYear is the default freshness and staleness window for the rules cache.
// Invalidation is event-driven, so entries effectively live until a ruleset
// or key changes.
const oneYear = 365 * 24 * time.Hour

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Cache: CacheConfig{
			RulesFresh: getEnvDuration("CACHE_RULES_FRESH", oneYear),
			RulesStale: getEnvDuration("CACHE_RULES_STALE", oneYear),
		},
		Gateway: GatewayConfig{
			MasterSecret: os.Getenv("ENCRYPTION_KEY"),
			APIPrefix:    getEnvString("GATEWAY_API_PREFIX", "/api/"),
			UserAgent:    getEnvString("GATEWAY_USER_AGENT", "modelrules/v0.0.0"),
			KeyLength:    getEnvInt("GATEWAY_KEY_LENGTH", 100),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
		Production: getEnvBool("PRODUCTION", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Gateway.MasterSecret == "" {
		return fmt.Errorf("ENCRYPTION_KEY must be set")
	}
	if c.Gateway.KeyLength <= 0 {
		return fmt.Errorf("GATEWAY_KEY_LENGTH must be positive, got %d", c.Gateway.KeyLength)
	}
	if c.Cache.RulesFresh <= 0 {
		return fmt.Errorf("CACHE_RULES_FRESH must be positive, got %s", c.Cache.RulesFresh)
	}
	if c.Cache.RulesStale <= 0 {
		return fmt.Errorf("CACHE_RULES_STALE must be positive, got %s", c.Cache.RulesStale)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasRedis returns true if Redis configuration is available
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		Redis: RedisConfig{
			URL: "",
		},
		Cache: CacheConfig{
			RulesFresh: oneYear,
			RulesStale: oneYear,
		},
		Gateway: GatewayConfig{
			MasterSecret: "test-master-secret",
			APIPrefix:    "/api/",
			UserAgent:    "modelrules/v0.0.0",
			KeyLength:    100,
		},
		HTTP: HTTPConfig{
			Addr:               ":8080",
			CORSAllowedOrigins: "*",
		},
		Production: false,
	}
}
