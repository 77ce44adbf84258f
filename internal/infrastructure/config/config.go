// Package config loads and validates service configuration from defaults,
// an optional YAML file, and RISK_-prefixed environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/riskcore/transaction-risk-engine/internal/domain/errors"
	"github.com/riskcore/transaction-risk-engine/internal/service/compliance"
	"github.com/riskcore/transaction-risk-engine/internal/service/risk"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

const (
	envPrefix       = "RISK_"
	defaultFilePath = "configs/config.yaml"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server     ServerConfig      `koanf:"server"`
	Velocity   velocity.Config   `koanf:"velocity"`
	Compliance compliance.Config `koanf:"compliance"`
	Risk       risk.Config       `koanf:"risk"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Velocity:   velocity.DefaultConfig(),
		Compliance: compliance.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
	}
}

// Load reads configuration from the default file path.
func Load() (*Config, error) {
	return LoadFromFile(defaultFilePath)
}

// LoadFromFile layers defaults, the YAML file at path (optional), and
// environment variables, then validates the result.
func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// The config file is optional; only a present-but-broken file is fatal.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	// RISK_SERVER_PORT=9090 -> server.port
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section. Configuration errors are fatal at startup
// and never surface per-transaction.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewConfigurationError("INVALID_PORT", "server port must be in (0, 65535]")
	}
	if c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.BurstSize <= 0 {
		return errors.NewConfigurationError("INVALID_RATE_LIMIT", "rate limit and burst must be positive")
	}
	if err := c.Velocity.Validate(); err != nil {
		return err
	}
	if err := c.Compliance.Validate(); err != nil {
		return err
	}
	return c.Risk.Validate()
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
