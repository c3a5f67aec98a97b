package config

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/risingape/producer-consumer/internal/session"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]*$`)

// Validate checks the configuration and sets defaults for missing values
func Validate(cfg *Config) error {
	if cfg.FrameCount == 0 {
		cfg.FrameCount = DefaultFrameCount
	}
	if cfg.FrameCount < 0 {
		return fmt.Errorf("frame_count must be > 0")
	}

	if cfg.IterationCount < 0 {
		return fmt.Errorf("iteration_count must be >= 0")
	}

	if cfg.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must be >= 0")
	}

	if !namespacePattern.MatchString(cfg.Namespace) {
		return fmt.Errorf("namespace must match pattern [A-Za-z0-9_.-]*")
	}

	// Slots already derived from the namespace by an earlier Validate are
	// not explicit.
	switch {
	case len(cfg.Slots) == 0:
		cfg.Slots = session.DefaultNames(cfg.Namespace, DefaultSlotCount)
	case cfg.Namespace != "" && !slices.Equal(cfg.Slots, session.DefaultNames(cfg.Namespace, len(cfg.Slots))):
		return fmt.Errorf("namespace and slots are mutually exclusive")
	}

	if err := cfg.Slots.Validate(); err != nil {
		return fmt.Errorf("slots: %w", err)
	}

	return nil
}
