package ssr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/on-the-ground/effect_ive_ssr/effects"
)

const (
	// DefaultTimeout applies when Config.TimeoutSeconds is zero, negative or NaN.
	DefaultTimeout = time.Second

	// MaxTimeout caps timeouts too large for a time.Duration.
	MaxTimeout = time.Duration(math.MaxInt64)
)

// Config tunes one run.
type Config struct {
	// TimeoutSeconds is the single deadline for the whole run.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	// SharedKey makes runs with the same key reuse module stores. Shared stores
	// are never disposed by a run; see SharedCache.Teardown.
	SharedKey string `yaml:"shared_key"`

	// Providers override the registry's root providers for this run.
	Providers []effects.Provider `yaml:"-"`
}

// Timeout resolves TimeoutSeconds to a duration.
func (c Config) Timeout() time.Duration {
	if math.IsNaN(c.TimeoutSeconds) || c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	nanos := c.TimeoutSeconds * float64(time.Second)
	if nanos >= float64(math.MaxInt64) {
		return MaxTimeout
	}
	return time.Duration(nanos)
}

// LoadConfig decodes a YAML config. Unknown fields are rejected and an empty
// document yields the zero Config.
func LoadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config from path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}
