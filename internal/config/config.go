// ABOUTME: Gateway configuration loading: YAML with env expansion and durations
// ABOUTME: Validation catches missing required fields before anything starts

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete cohort-gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Responder ResponderConfig `yaml:"responder"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listen configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds the channel/REST token secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig holds message persistence configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ResponderConfig tunes the simulated colleague responder.
type ResponderConfig struct {
	ChunkDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ChunkDelayRaw string `yaml:"chunk_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a configuration file. ${VAR} references are
// expanded from the environment before parsing; duration strings are
// converted to time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Responder.ChunkDelayRaw != "" {
		cfg.Responder.ChunkDelay, err = time.ParseDuration(cfg.Responder.ChunkDelayRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk_delay %q: %w", cfg.Responder.ChunkDelayRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields, returning the first failure found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} patterns with environment values; unset
// variables become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
