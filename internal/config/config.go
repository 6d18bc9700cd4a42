package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

// Config is the server configuration.
type Config struct {
	Port                     int    `env:"PORT" envDefault:"8080"`
	DatabaseURL              string `env:"DATABASE_URL,required"`
	RedisURL                 string `env:"REDIS_URL,required"`
	SessionSecret            string `env:"SESSION_SECRET" envDefault:"dev-secret-change-me"`
	SessionTTLHours          int    `env:"SESSION_TTL_HOURS" envDefault:"168"`
	DirectoryURL             string `env:"DIRECTORY_URL" envDefault:"https://68067bb5e81df7060eb74d1e.mockapi.io"`
	DirectoryCacheTTLSeconds int    `env:"DIRECTORY_CACHE_TTL_SECONDS" envDefault:"300"`
	LoginRateLimitPerMin     int    `env:"LOGIN_RATE_LIMIT_PER_MIN" envDefault:"10"`
	WriteRateLimitPerMin     int    `env:"WRITE_RATE_LIMIT_PER_MIN" envDefault:"120"`
	OTLPEndpoint             string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel                 string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) DirectoryCacheTTL() time.Duration {
	return time.Duration(c.DirectoryCacheTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if c.DirectoryURL == "" {
		return fmt.Errorf("DIRECTORY_URL must not be empty")
	}

	if isProduction {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
