package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ClientConfig configures hotelctl.
type ClientConfig struct {
	ServerURL        string `env:"STAYBOOK_SERVER_URL" envDefault:"http://localhost:8080"`
	DirectoryURL     string `env:"STAYBOOK_DIRECTORY_URL"`
	TokenFile        string `env:"STAYBOOK_TOKEN_FILE"`
	BackendTimeoutMs int    `env:"STAYBOOK_BACKEND_TIMEOUT_MS" envDefault:"5000"`
	CacheTTLSeconds  int    `env:"STAYBOOK_CACHE_TTL_SECONDS" envDefault:"300"`
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"warn"`
}

func (c *ClientConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMs) * time.Millisecond
}

func (c *ClientConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadClient reads an optional .env file and then the process environment.
// The hotel directory defaults to the server's proxy.
func LoadClient() (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = cfg.ServerURL + "/v1"
	}
	if cfg.TokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.TokenFile = filepath.Join(home, ".staybook", "token")
	}
	if cfg.BackendTimeoutMs <= 0 {
		cfg.BackendTimeoutMs = int(DefaultBackendTimeout / time.Millisecond)
	}

	return &cfg, nil
}
