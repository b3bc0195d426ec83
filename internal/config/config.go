package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/goldrush.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// IdentityURL is the external identity provider's verification
	// endpoint. When empty, every player credential is rejected, so
	// local setups must point this somewhere real.
	IdentityURL string `env:"IDENTITY_URL"`

	// AllowedEmailDomains restricts which verified emails may play.
	// Empty means no restriction.
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" envSeparator:","`

	// AdminEmail/AdminPassword bootstrap the first admin account on an
	// empty database.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
