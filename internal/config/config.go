// Package config loads the archive layer configuration from a YAML file
// with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Auth       AuthConfig       `yaml:"auth"`
	Anchor     AnchorConfig     `yaml:"anchor"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// StorageConfig selects the persistence backend: memory, file or postgres.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
}

type OracleConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
	Rubric         string `yaml:"rubric"`
}

type EvaluationConfig struct {
	Workers             int `yaml:"workers"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

type LedgerConfig struct {
	TotalSupply float64 `yaml:"total_supply"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type AnchorConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8090},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Storage: StorageConfig{Backend: "file", Dir: "data"},
		Oracle: OracleConfig{
			TimeoutSeconds: 120,
			RatePerMinute:  30,
		},
		Evaluation: EvaluationConfig{Workers: 4, PollIntervalSeconds: 5},
		Ledger:     LedgerConfig{},
	}
}

// Load reads config from path, falling back to defaults when the file does
// not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ARCHIVE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ARCHIVE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ARCHIVE_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ORACLE_ENDPOINT"); v != "" {
		cfg.Oracle.Endpoint = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ANCHOR_ENDPOINT"); v != "" {
		cfg.Anchor.Endpoint = v
	}
	if v := os.Getenv("ANCHOR_API_KEY"); v != "" {
		cfg.Anchor.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "memory", "file":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage backend postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Evaluation.Workers < 0 {
		return fmt.Errorf("evaluation workers must be non-negative")
	}
	return nil
}
