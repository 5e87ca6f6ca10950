package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		Storage:     StoragePostgres,
		DatabaseURL: "postgres://localhost/orders",
		Rates:       RatesConfig{Timeout: 5 * time.Second},
		RateLimit:   RateLimitConfig{Rate: 10, Burst: 20},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{name: "Valid", modify: func(*Config) {}, ok: true},
		{name: "MemoryWithoutDatabase", modify: func(c *Config) { c.Storage, c.DatabaseURL = StorageMemory, "" }, ok: true},
		{name: "PostgresWithoutDatabase", modify: func(c *Config) { c.DatabaseURL = "" }},
		{name: "UnknownStorage", modify: func(c *Config) { c.Storage = "sqlite" }},
		{name: "ZeroRate", modify: func(c *Config) { c.RateLimit.Rate = 0 }},
		{name: "ZeroBurst", modify: func(c *Config) { c.RateLimit.Burst = 0 }},
		{name: "ZeroTimeout", modify: func(c *Config) { c.Rates.Timeout = 0 }},
		{name: "NegativeTTL", modify: func(c *Config) { c.Rates.TTL = -time.Second }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr, Storage: " Memory "}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, StorageMemory, cfg.Storage)
}

func TestConfig_PlatformDefaultsKeepExplicit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "127.0.0.1:8081", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8081", cfg.Addr)
}
