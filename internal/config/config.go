package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	GRPCPort int    `envconfig:"GRPC_PORT" default:"9090"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	Issuer             string `envconfig:"ISSUER" default:"interchee"`
	Audience           string `envconfig:"AUDIENCE" default:"interchee-api"`
	SigningKey         string `envconfig:"SIGNING_KEY" required:"true"`
	AccessTokenMinutes int    `envconfig:"ACCESS_TOKEN_MINUTES" default:"30"`
	RefreshTokenDays   int    `envconfig:"REFRESH_TOKEN_DAYS" default:"7"`
	BcryptCost         int    `envconfig:"BCRYPT_COST" default:"12"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`
	MaxBodyBytes   int64   `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("config: SIGNING_KEY must be at least 32 bytes")
	}
	if cfg.AccessTokenMinutes <= 0 || cfg.RefreshTokenDays <= 0 {
		return nil, errors.New("config: token lifetimes must be positive")
	}
	return &cfg, nil
}

// AccessTTL is the configured access-token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// RefreshTTL is the configured refresh-credential lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}
