package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/risingape/producer-consumer/internal/session"
)

const (
	DefaultFrameCount     = 100
	DefaultIterationCount = 1000
	DefaultSlotCount      = 2
)

// Config is the startup configuration shared by the consumer and the
// reference producer. Both sides of a run must agree on FrameCount and
// Slots.
type Config struct {
	FrameCount     int           `yaml:"frame_count"`     // float32 values per frame
	IterationCount int           `yaml:"iteration_count"` // frames handled before a clean exit; 0 runs until signalled
	WaitTimeout    time.Duration `yaml:"wait_timeout"`    // bound on each gate wait; 0 blocks forever
	Namespace      string        `yaml:"namespace"`       // prefix for the default slot names
	Slots          session.Names `yaml:"slots"`           // explicit names; default two /buffer_* slots
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		FrameCount:     DefaultFrameCount,
		IterationCount: DefaultIterationCount,
	}
	if err := Validate(cfg); err != nil {
		panic(err)
	}

	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{IterationCount: DefaultIterationCount}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
