package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvBaseURL = "XRAYPERF_BASE_URL"
	EnvToken   = "XRAYPERF_TOKEN"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.json"

// Load reads the config at path, applies .env and environment overrides,
// fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := LoadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a config file without applying defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses config data. YAML is used for .yaml and .yml paths;
// anything else is read as JSON, which may contain comments and trailing
// commas. The document is checked against the embedded schema before it is
// decoded.
func ParseConfig(data []byte, path string) (*Config, error) {
	doc, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if errs := configSchema.ValidateBytes(doc); errs != nil {
		return nil, fmt.Errorf("%s: %w", displayName(path), errs)
	}

	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", displayName(path), err)
	}
	return &cfg, nil
}

func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return out, nil
	default:
		out := jsonc.ToJSON(data)
		if !json.Valid(out) {
			return nil, fmt.Errorf("failed to parse JSON config %s", displayName(path))
		}
		return out, nil
	}
}

func displayName(path string) string {
	if path == "" {
		return "config"
	}
	return path
}

// LoadDotEnv loads dir/.env into the process environment if it exists.
// Variables already set are left alone.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides the target with XRAYPERF_BASE_URL and XRAYPERF_TOKEN
// when they are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Token = v
	}
}
