// Package config loads the YAML config file and resolves AI credentials,
// which prefer environment variables over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AIConfig struct {
	Enabled          bool   `yaml:"enabled"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	ConnectTimeoutMs int64  `yaml:"connect_timeout_ms"`
	RequestTimeoutMs int64  `yaml:"request_timeout_ms"`
}

type Config struct {
	Listen string   `yaml:"listen"`
	DBPath string   `yaml:"db_path"`
	Debug  bool     `yaml:"debug"`
	AI     AIConfig `yaml:"ai"`
}

func Default() Config {
	return Config{
		Listen: ":8080",
		DBPath: "sitecheck.db",
		AI: AIConfig{
			ConnectTimeoutMs: 5000,
			RequestTimeoutMs: 12000,
		},
	}
}

// Load reads the YAML config at path on top of the defaults. A missing file
// is not an error; the defaults are returned unchanged.
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

// AIResolver answers AI credential lookups with ordered fallbacks:
// environment variables win, then the config file. Lookups happen per call
// so restarting is not needed to pick up env changes in tests.
type AIResolver struct {
	file AIConfig
}

func NewAIResolver(file AIConfig) *AIResolver {
	return &AIResolver{file: file}
}

var truthy = map[string]bool{"1": true, "true": true, "yes": true, "y": true, "on": true}

func (r *AIResolver) Enabled() bool {
	if v := firstEnv("APP_AI_ENABLED", "AI_ENABLED"); v != "" {
		return truthy[strings.ToLower(v)]
	}
	return r.file.Enabled
}

func (r *AIResolver) APIKey() string {
	if v := firstEnv("ARK_API_KEY", "DOUBAO_API_KEY"); v != "" {
		return v
	}
	return strings.TrimSpace(r.file.APIKey)
}

func (r *AIResolver) Model() string {
	if v := firstEnv("ARK_MODEL", "DOUBAO_MODEL", "DOUBAO_ENDPOINT_ID"); v != "" {
		return v
	}
	return strings.TrimSpace(r.file.Model)
}

func (r *AIResolver) BaseURL() string {
	if v := firstEnv("ARK_BASE_URL", "DOUBAO_BASE_URL"); v != "" {
		return v
	}
	return strings.TrimSpace(r.file.BaseURL)
}

func (r *AIResolver) ConnectTimeout() time.Duration {
	ms := r.file.ConnectTimeoutMs
	if ms <= 0 {
		ms = 5000
	}
	if ms < 500 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *AIResolver) RequestTimeout() time.Duration {
	ms := r.file.RequestTimeoutMs
	if ms <= 0 {
		ms = 12000
	}
	if ms < 1000 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}
