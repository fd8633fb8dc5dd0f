package config

import (
	"encoding/base64"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/jcowley/roomcast/internal/store"
)

type Config struct {
	ServerAddr     string   `envconfig:"SERVER_ADDR" default:"localhost:8000" validate:"required"`
	DatabaseDSN    string   `envconfig:"DATABASE_DSN" validate:"required"`
	SigningSecret  string   `envconfig:"SIGNING_SECRET" validate:"required,base64"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	HistoryLimit   int      `envconfig:"HISTORY_LIMIT" default:"50" validate:"min=0"`

	// SigningKey is the decoded SIGNING_SECRET.
	SigningKey []byte `ignored:"true"`
}

var validate = validator.New()

// FromEnv loads the configuration from ROOMCAST_-prefixed environment
// variables.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("roomcast", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = store.DefaultDSN
	}

	return newConfig(&cfg)
}

func newConfig(cfg *Config) (*Config, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	key, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = key

	return cfg, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	return base64.StdEncoding.DecodeString(base64Secret)
}
