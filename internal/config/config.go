// Package config loads layered runtime configuration for the streaming
// client: default provider/model selection, per-provider base URLs and
// credentials, and the stream coordinator's resource-accounting knobs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix koanf strips from environment variable names when
// layering env overrides on top of a config file, e.g.
// AIGO_STREAM_WATERMARK -> stream.watermark.
const EnvPrefix = "AIGO_"

// Config is the top-level configuration for an aigo-based application.
type Config struct {
	Default  DefaultConfig             `koanf:"default"`
	Stream   StreamConfig              `koanf:"stream"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// DefaultConfig names the provider/model a client falls back to when a
// caller does not pin one explicitly.
type DefaultConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

// StreamConfig mirrors core/stream.Config's tunable fields so they can be
// set from a file or the environment instead of hardcoded at call sites.
type StreamConfig struct {
	Watermark     int           `koanf:"watermark"`
	SoftBufferCap int           `koanf:"soft_buffer_cap"`
	HardBufferCap int           `koanf:"hard_buffer_cap"`
	NextTimeout   time.Duration `koanf:"next_timeout"`
	AwaitTimeout  time.Duration `koanf:"await_timeout"`
	JSONObjectMode bool         `koanf:"json_object_mode"`
}

// ProviderConfig holds the settings needed to construct one ai.Provider.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Region  string `koanf:"region"` // bedrock
}

// Load reads configuration from a YAML file at path, layers environment
// variable overrides on top, and returns the resolved Config. An empty path
// skips the file, so callers relying solely on environment variables pass "";
// a non-empty path that cannot be loaded is an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := Config{
		Stream: StreamConfig{
			Watermark:     2,
			SoftBufferCap: 1 << 20,
			HardBufferCap: 16 << 20,
			NextTimeout:   30 * time.Second,
			AwaitTimeout:  60 * time.Second,
		},
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys so a config file
	// can be checked in without embedding secrets.
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			p.APIKey = os.Getenv(p.APIKey[2 : len(p.APIKey)-1])
			cfg.Providers[name] = p
		}
	}

	return &cfg, nil
}
