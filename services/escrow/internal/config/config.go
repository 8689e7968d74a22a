// Package config loads the escrow server's own settings (not the on-ledger
// escrow parameters, which live in the store). YAML file with environment
// overrides; every field has a default so the server runs with no file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
	EnsureSchema bool  `yaml:"ensure_schema"`

	// DatabaseURL comes from the DATABASE_URL env var only; it carries
	// credentials and does not belong in a file.
	DatabaseURL string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		EnsureSchema: false,
	}
}

// Load reads the YAML file at path (missing file is fine) and then applies
// env overrides: ESCROW_LISTEN_ADDR, ESCROW_LOG_LEVEL, ESCROW_ENSURE_SCHEMA,
// DATABASE_URL.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults + env only
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if v := os.Getenv("ESCROW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ESCROW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ESCROW_ENSURE_SCHEMA"); v != "" {
		cfg.EnsureSchema = v == "1" || v == "true"
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	return cfg, nil
}
