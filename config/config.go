package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `env:"GO_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// ServerURL is the upstream Confetti GraphQL endpoint.
	ServerURL      string        `env:"CONFETTI_SERVER_URL" envDefault:"https://confetti-app.dev/graphql"`
	Conference     string        `env:"CONFETTI_CONFERENCE" envDefault:"kotlinconf2023"`
	// Conferences lists further conferences the server may serve besides Conference.
	Conferences    []string      `env:"CONFETTI_CONFERENCES" envSeparator:","`
	RequestTimeout time.Duration `env:"CONFETTI_REQUEST_TIMEOUT" envDefault:"30s"`

	// CacheProvider is one of sqlite, postgres or memory.
	CacheProvider    string `env:"CACHE_PROVIDER" envDefault:"sqlite"`
	CacheDir         string `env:"CACHE_DIR" envDefault:"./data"`
	MemoryCacheBytes int    `env:"MEMORY_CACHE_BYTES" envDefault:"10000000"`
	MaxCacheEntries  int    `env:"MAX_CACHE_ENTRIES" envDefault:"256"`
	DBUrl            string `env:"DATABASE_URL"`

	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	OTelEndpoint       string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load loads configuration from environment variables
// It attempts to load from .env file if not in production
func Load() (*Config, error) {
	// In production the .env file is usually absent and the process environment is used.
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found or couldn't be loaded: %v", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheProvider {
	case "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(c.DBUrl) == "" {
			return fmt.Errorf("DATABASE_URL is required when CACHE_PROVIDER is postgres")
		}
	default:
		return fmt.Errorf("unknown CACHE_PROVIDER %q", c.CacheProvider)
	}
	if c.MemoryCacheBytes <= 0 {
		return fmt.Errorf("MEMORY_CACHE_BYTES must be positive, got %d", c.MemoryCacheBytes)
	}
	if c.MaxCacheEntries < 0 {
		return fmt.Errorf("MAX_CACHE_ENTRIES must not be negative, got %d", c.MaxCacheEntries)
	}
	if strings.TrimSpace(c.Conference) == "" {
		return fmt.Errorf("CONFETTI_CONFERENCE must not be empty")
	}
	return nil
}

// AllowedConferences returns Conference followed by the distinct non-empty entries of
// Conferences.
func (c *Config) AllowedConferences() []string {
	out := []string{c.Conference}
	seen := map[string]bool{c.Conference: true}
	for _, conf := range c.Conferences {
		conf = strings.TrimSpace(conf)
		if conf == "" || seen[conf] {
			continue
		}
		seen[conf] = true
		out = append(out, conf)
	}
	return out
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
