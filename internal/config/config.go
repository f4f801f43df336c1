package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Identity IdentityConfig `yaml:"identity"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutSec int    `yaml:"read_timeout_seconds"`
	IdleTimeoutSec int    `yaml:"idle_timeout_seconds"`
}

// RedisConfig holds the durable store connection settings
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// IdentityConfig holds the external identity service settings
type IdentityConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxRetries int    `yaml:"max_retries"`
}

// EngineConfig holds experiment engine tunables
type EngineConfig struct {
	AnalysisCacheTTLSec int  `yaml:"analysis_cache_ttl_seconds"`
	SweepIntervalSec    int  `yaml:"sweep_interval_seconds"`
	SweepLockTTLSec     int  `yaml:"sweep_lock_ttl_seconds"`
	SweepEnabled        bool `yaml:"sweep_enabled"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level          string `yaml:"level"`
	RedactSubjects bool   `yaml:"redact_subjects"`
}

// Load reads configuration from a YAML file and applies defaults. A missing
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutSec == 0 {
		cfg.Server.ReadTimeoutSec = 15
	}
	if cfg.Server.IdleTimeoutSec == 0 {
		cfg.Server.IdleTimeoutSec = 60
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "abtest:"
	}
	if cfg.Identity.MaxRetries == 0 {
		cfg.Identity.MaxRetries = 3
	}
	if cfg.Engine.AnalysisCacheTTLSec == 0 {
		cfg.Engine.AnalysisCacheTTLSec = 300
	}
	if cfg.Engine.SweepIntervalSec == 0 {
		cfg.Engine.SweepIntervalSec = 60
	}
	if cfg.Engine.SweepLockTTLSec == 0 {
		cfg.Engine.SweepLockTTLSec = 55
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if prefix := os.Getenv("REDIS_KEY_PREFIX"); prefix != "" {
		cfg.Redis.KeyPrefix = prefix
	}
	if baseURL := os.Getenv("IDENTITY_BASE_URL"); baseURL != "" {
		cfg.Identity.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if v := os.Getenv("SWEEP_ENABLED"); v != "" {
		cfg.Engine.SweepEnabled = v == "true" || v == "1"
	}

	return cfg, nil
}
