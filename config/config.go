// Package config loads probe settings from defaults, an optional YAML file,
// a .env file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for every probe command
type Config struct {
	SourceRoot     string          `yaml:"source_root" validate:"required"`
	Seed           int64           `yaml:"seed"`
	BatchSize      int             `yaml:"batch_size" validate:"gte=1,lte=10000"`
	ExecTimeout    time.Duration   `yaml:"exec_timeout" validate:"gt=0"`
	HTTPAddr       string          `yaml:"http_addr" validate:"required"`
	JaegerEndpoint string          `yaml:"jaeger_endpoint" validate:"omitempty,url"`
	Inference      InferenceConfig `yaml:"inference"`
	Sessions       SessionConfig   `yaml:"sessions"`
	Log            LogConfig       `yaml:"log"`
}

// InferenceConfig configures the external value generator. It is disabled
// unless an API key is set.
type InferenceConfig struct {
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint" validate:"omitempty,url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	RPS      float64       `yaml:"rps" validate:"gte=0"`
	Burst    int           `yaml:"burst" validate:"gte=0"`
}

func (c InferenceConfig) Enabled() bool { return c.APIKey != "" }

type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions" validate:"gte=1"`
	IdleTTL     time.Duration `yaml:"idle_ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SourceRoot:  ".",
		Seed:        1,
		BatchSize:   10,
		ExecTimeout: 10 * time.Second,
		HTTPAddr:    ":8080",
		Inference: InferenceConfig{
			Model:   "gpt-4o-mini",
			Timeout: 8 * time.Second,
			RPS:     2,
			Burst:   4,
		},
		Sessions: SessionConfig{
			MaxSessions: 64,
			IdleTTL:     30 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

var validate = validator.New()

// Load builds the configuration. path names an optional YAML file; a missing
// .env file is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.SourceRoot = getEnv("PROBE_SOURCE_ROOT", c.SourceRoot)
	c.Seed = getEnvInt64("PROBE_SEED", c.Seed)
	c.BatchSize = getEnvInt("PROBE_BATCH_SIZE", c.BatchSize)
	c.ExecTimeout = getEnvDuration("PROBE_EXEC_TIMEOUT", c.ExecTimeout)
	c.HTTPAddr = getEnv("PROBE_HTTP_ADDR", c.HTTPAddr)
	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)

	c.Inference.APIKey = getEnv("OPENAI_API_KEY", c.Inference.APIKey)
	c.Inference.Endpoint = getEnv("PROBE_INFERENCE_ENDPOINT", c.Inference.Endpoint)
	c.Inference.Model = getEnv("PROBE_INFERENCE_MODEL", c.Inference.Model)
	c.Inference.Timeout = getEnvDuration("PROBE_INFERENCE_TIMEOUT", c.Inference.Timeout)
	c.Inference.RPS = getEnvFloat("PROBE_INFERENCE_RPS", c.Inference.RPS)

	c.Sessions.MaxSessions = getEnvInt("PROBE_MAX_SESSIONS", c.Sessions.MaxSessions)
	c.Sessions.IdleTTL = getEnvDuration("PROBE_SESSION_TTL", c.Sessions.IdleTTL)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
