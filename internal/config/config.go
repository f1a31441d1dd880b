// Package config loads service settings from an optional YAML file, a .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Skufu/smarthealth/internal/model"
)

// Config holds the SmartHealth service configuration.
type Config struct {
	Env      string         `yaml:"env"`
	LogLevel string         `yaml:"log_level"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	// Labels overrides the built-in diagnosis table; position i is class i.
	Labels []string `yaml:"labels"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            string   `yaml:"port"`
	GinMode         string   `yaml:"gin_mode"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	AllowOrigins    []string `yaml:"allow_origins"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the optional tally database settings.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ModelConfig selects and configures the classifier artifact.
type ModelConfig struct {
	Kind       string `yaml:"kind"` // tree, onnx
	Path       string `yaml:"path"`
	ORTLibrary string `yaml:"ort_library"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
	NumClasses int    `yaml:"num_classes"`
}

// Load builds the configuration. path may be empty, in which case
// CONFIG_FILE is consulted; with neither set only the environment is used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.HTTP.GinMode = getEnv("GIN_MODE", c.HTTP.GinMode)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.HTTP.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("ENABLE_DB"); v != "" {
		c.Database.Enabled = strings.EqualFold(v, "true")
	}
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Model.Kind = getEnv("MODEL_KIND", c.Model.Kind)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.ORTLibrary = getEnv("ORT_LIBRARY", c.Model.ORTLibrary)
	c.Model.InputName = getEnv("MODEL_INPUT", c.Model.InputName)
	c.Model.OutputName = getEnv("MODEL_OUTPUT", c.Model.OutputName)

	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		c.HTTP.MaxBodyBytes = n
	}
	if v := os.Getenv("MODEL_CLASSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODEL_CLASSES: %w", err)
		}
		c.Model.NumClasses = n
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = "8080"
	}
	if c.HTTP.GinMode == "" {
		c.HTTP.GinMode = "release"
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"*"}
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 5
	}
	if c.Model.Kind == "" {
		c.Model.Kind = model.KindTree
	}
	if c.Model.Path == "" {
		c.Model.Path = filepath.Join("models", "smarthealth-tree.json")
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Env {
	case "local", "dev", "test", "prod":
	default:
		return fmt.Errorf("env must be one of local, dev, test, prod, got %q", c.Env)
	}
	port, err := strconv.Atoi(c.HTTP.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", c.HTTP.Port)
	}
	for _, origin := range c.HTTP.AllowOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin must be * or start with http:// or https://, got %q", origin)
		}
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	switch c.Model.Kind {
	case model.KindTree:
	case model.KindONNX:
		if c.Model.ORTLibrary == "" {
			return fmt.Errorf("ORT_LIBRARY is required when MODEL_KIND=onnx")
		}
	default:
		return fmt.Errorf("model kind must be %q or %q, got %q", model.KindTree, model.KindONNX, c.Model.Kind)
	}
	if c.Model.NumClasses < 0 {
		return fmt.Errorf("model num_classes must not be negative, got %d", c.Model.NumClasses)
	}
	return nil
}

// ModelOptions converts the model section to loader options.
func (c *Config) ModelOptions() model.Options {
	return model.Options{
		ORTLibrary: c.Model.ORTLibrary,
		InputName:  c.Model.InputName,
		OutputName: c.Model.OutputName,
		NumClasses: c.Model.NumClasses,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
