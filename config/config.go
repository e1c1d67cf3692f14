// Package config composes the engine configurations and loads overrides
// from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pod-pricing/engine/adjust"
	"pod-pricing/engine/ledger"
	"pod-pricing/engine/market"
	"pod-pricing/engine/strategy"
)

// Server holds HTTP server settings.
type Server struct {
	Port           int      `yaml:"port"`
	ReadTimeoutS   int      `yaml:"read_timeout_seconds"`
	WriteTimeoutS  int      `yaml:"write_timeout_seconds"`
	MaxRequestSize int64    `yaml:"max_request_size"`
	CORSOrigins    []string `yaml:"cors_origins"`
}

// Config is the top-level configuration document.
type Config struct {
	DataDir  string          `yaml:"data_dir"`
	LogLevel string          `yaml:"log_level"`
	Server   Server          `yaml:"server"`
	Ledger   ledger.Config   `yaml:"ledger"`
	Market   market.Config   `yaml:"market"`
	Strategy strategy.Config `yaml:"strategy"`
	Adjust   adjust.Config   `yaml:"adjust"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		DataDir:  "data",
		LogLevel: "info",
		Server: Server{
			Port:           8080,
			ReadTimeoutS:   30,
			WriteTimeoutS:  60,
			MaxRequestSize: 10 * 1024 * 1024,
			CORSOrigins:    []string{"*"},
		},
		Ledger:   ledger.DefaultConfig(),
		Market:   market.DefaultConfig(),
		Strategy: strategy.DefaultConfig(),
		Adjust:   adjust.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file keeps defaults; a
// malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
