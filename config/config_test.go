package config

import (
	"os"
	"testing"
	"time"
)

// saveEnv saves current environment variables for restoration
func saveEnv(t *testing.T, keys []string) map[string]string {
	t.Helper()
	saved := make(map[string]string)
	for _, key := range keys {
		saved[key] = os.Getenv(key)
	}
	return saved
}

// restoreEnv restores previously saved environment variables
func restoreEnv(t *testing.T, saved map[string]string) {
	t.Helper()
	for key, val := range saved {
		if val == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, val)
		}
	}
}

// clearEnv clears environment variables
func clearEnv(t *testing.T, keys []string) {
	t.Helper()
	for _, key := range keys {
		os.Unsetenv(key)
	}
}

var allEnvKeys = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"CACHE_RULES_FRESH",
	"CACHE_RULES_STALE",
	"ENCRYPTION_KEY",
	"GATEWAY_API_PREFIX",
	"GATEWAY_USER_AGENT",
	"GATEWAY_KEY_LENGTH",
	"HTTP_ADDR",
	"CORS_ALLOWED_ORIGINS",
	"PRODUCTION",
}

func TestLoad_Defaults(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	os.Setenv("ENCRYPTION_KEY", "test-master-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	// Check defaults
	if cfg.Gateway.APIPrefix != "/api/" {
		t.Errorf("expected APIPrefix='/api/', got %s", cfg.Gateway.APIPrefix)
	}
	if cfg.Gateway.UserAgent != "modelrules/v0.0.0" {
		t.Errorf("expected UserAgent='modelrules/v0.0.0', got %s", cfg.Gateway.UserAgent)
	}
	if cfg.Gateway.KeyLength != 100 {
		t.Errorf("expected KeyLength=100, got %d", cfg.Gateway.KeyLength)
	}
	if cfg.Cache.RulesFresh != oneYear {
		t.Errorf("expected RulesFresh of one year, got %s", cfg.Cache.RulesFresh)
	}
	if cfg.Cache.RulesStale != oneYear {
		t.Errorf("expected RulesStale of one year, got %s", cfg.Cache.RulesStale)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected Addr=':8080', got %s", cfg.HTTP.Addr)
	}
	if cfg.HTTP.CORSAllowedOrigins != "*" {
		t.Errorf("expected CORSAllowedOrigins='*', got %s", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.Production {
		t.Error("expected Production=false by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	os.Setenv("ENCRYPTION_KEY", "another-secret")
	os.Setenv("DATABASE_URL", "postgres://localhost/modelrules")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("CACHE_RULES_FRESH", "30m")
	os.Setenv("CACHE_RULES_STALE", "2h")
	os.Setenv("GATEWAY_USER_AGENT", "custom/1.0")
	os.Setenv("GATEWAY_KEY_LENGTH", "64")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("PRODUCTION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.HasDatabase() {
		t.Error("expected HasDatabase to be true")
	}
	if !cfg.HasRedis() {
		t.Error("expected HasRedis to be true")
	}
	if cfg.Cache.RulesFresh != 30*time.Minute {
		t.Errorf("expected RulesFresh=30m, got %s", cfg.Cache.RulesFresh)
	}
	if cfg.Cache.RulesStale != 2*time.Hour {
		t.Errorf("expected RulesStale=2h, got %s", cfg.Cache.RulesStale)
	}
	if cfg.Gateway.UserAgent != "custom/1.0" {
		t.Errorf("expected UserAgent='custom/1.0', got %s", cfg.Gateway.UserAgent)
	}
	if cfg.Gateway.KeyLength != 64 {
		t.Errorf("expected KeyLength=64, got %d", cfg.Gateway.KeyLength)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected Addr=':9090', got %s", cfg.HTTP.Addr)
	}
	if !cfg.Production {
		t.Error("expected Production=true")
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	if _, err := Load(); err == nil {
		t.Error("Load() should fail without ENCRYPTION_KEY")
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	saved := saveEnv(t, allEnvKeys)
	defer restoreEnv(t, saved)
	clearEnv(t, allEnvKeys)

	os.Setenv("ENCRYPTION_KEY", "test-master-secret")
	os.Setenv("GATEWAY_KEY_LENGTH", "not-a-number")
	os.Setenv("CACHE_RULES_FRESH", "-5m")
	os.Setenv("PRODUCTION", "not-a-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Gateway.KeyLength != 100 {
		t.Errorf("expected fallback KeyLength=100, got %d", cfg.Gateway.KeyLength)
	}
	if cfg.Cache.RulesFresh != oneYear {
		t.Errorf("expected fallback RulesFresh of one year, got %s", cfg.Cache.RulesFresh)
	}
	if cfg.Production {
		t.Error("expected fallback Production=false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty master secret", mutate: func(c *Config) { c.Gateway.MasterSecret = "" }, wantErr: true},
		{name: "zero key length", mutate: func(c *Config) { c.Gateway.KeyLength = 0 }, wantErr: true},
		{name: "zero fresh window", mutate: func(c *Config) { c.Cache.RulesFresh = 0 }, wantErr: true},
		{name: "zero stale window", mutate: func(c *Config) { c.Cache.RulesStale = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTestConfig(t *testing.T) {
	cfg := NewTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("NewTestConfig() should validate: %v", err)
	}
	if cfg.HasDatabase() || cfg.HasRedis() {
		t.Error("test config should carry no external endpoints")
	}
}
