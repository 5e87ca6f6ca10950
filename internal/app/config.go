package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TokenPepper string `usage:"HMAC pepper for bearer token hashing (ORDERS_TOKEN_PEPPER)" flag:"token-pepper"`
	// BootstrapToken is registered at startup when set. Intended for the
	// memory backend, which starts without any tokens.
	BootstrapToken string `usage:"Bearer token registered at startup" flag:"bootstrap-token"`
	Rates          RatesConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	Graceful       GracefulConfig
}

// RatesConfig controls the exchange rate provider.
type RatesConfig struct {
	URL     string        `default:"https://www.dolarsi.com/api/api.php?type=valoresprincipales" usage:"Quote source URL"`
	Name    string        `default:"Dolar Blue" usage:"Quote name to select"`
	Timeout time.Duration `default:"5s" usage:"Quote request timeout"`
	TTL     time.Duration `default:"0s" usage:"Cached rate lifetime, 0 keeps it forever"`
}

// RedisConfig enables the Redis rate cache when URL is set.
type RedisConfig struct {
	URL string `usage:"Redis URL (ORDERS_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// KafkaConfig enables the stock event feed when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"stock-events" usage:"Stock event topic"`
	Buffer  int      `default:"1024" usage:"Undelivered event buffer size"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Maximum request burst per client"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit rate and burst must be positive")
	}
	if c.Rates.Timeout <= 0 {
		return errors.New("rates timeout must be positive")
	}
	if c.Rates.TTL < 0 {
		return errors.New("rates TTL must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
}
