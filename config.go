// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	envDevelopment = "development"
	envProduction  = "production"
)

// config holds everything read from the environment at startup.
//
// Values may come from a .env file in the working directory, which main loads
// before calling loadConfig.
type config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	// SigningKey is the HMAC secret for session tokens. Rotating it
	// invalidates every outstanding token.
	SigningKey string        `env:"TOKEN_SIGNING_KEY"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	DatabaseType string `env:"DATABASE_TYPE" envDefault:"sqlite"`
	SqlitePath   string `env:"SQLITE_DB_PATH" envDefault:"crm.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	RevocationPath string `env:"REVOCATION_DB_PATH" envDefault:":memory:"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"logfmt"`

	AllowPrivilegedSignup bool `env:"ALLOW_PRIVILEGED_SIGNUP" envDefault:"true"`

	Argon2MemoryKiB  uint32 `env:"ARGON2_MEMORY_KIB" envDefault:"65536"`
	Argon2Iterations uint32 `env:"ARGON2_ITERATIONS" envDefault:"1"`

	// ephemeralKey is set when SigningKey was generated at startup.
	ephemeralKey bool
}

var errMissingSigningKey = errors.New("TOKEN_SIGNING_KEY is required when APP_ENV=production")

// loadConfig parses the environment and validates the result.
//
// In production a missing signing key is fatal. Everywhere else we generate a
// random key for the life of the process, so tokens don't survive a restart.
func loadConfig() (*config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *config) validate() error {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.Environment == "" {
		cfg.Environment = envDevelopment
	}
	cfg.SigningKey = strings.TrimSpace(cfg.SigningKey)

	if cfg.SigningKey == "" {
		if cfg.Environment == envProduction {
			return errMissingSigningKey
		}
		key, err := randomKey()
		if err != nil {
			return err
		}
		cfg.SigningKey = key
		cfg.ephemeralKey = true
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %v", cfg.TokenTTL)
	}

	switch cfg.DatabaseType {
	case "sqlite":
		if cfg.SqlitePath == "" || strings.Contains(cfg.SqlitePath, "..") {
			// don't filepath.Abs to avoid full-fs reads
			cfg.SqlitePath = "crm.db"
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when DATABASE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unknown DATABASE_TYPE %q", cfg.DatabaseType)
	}

	switch cfg.LogFormat {
	case "logfmt", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", cfg.LogFormat)
	}
	return nil
}

// randomKey returns a random hex encoded 32 byte key.
func randomKey() (string, error) {
	bs := make([]byte, 32)
	if _, err := rand.Read(bs); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	return hex.EncodeToString(bs), nil
}
