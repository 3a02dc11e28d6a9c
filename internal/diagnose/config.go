package diagnose

import (
	"errors"
	"fmt"
)

// Config holds the thresholds and patterns of the built-in rules. All
// thresholds are exclusive: a finding needs a count strictly above them.
type Config struct {
	NamespaceThreshold int      `yaml:"namespace_threshold" toml:"namespace_threshold" json:"namespace_threshold"`
	CouplingThreshold  int      `yaml:"coupling_threshold" toml:"coupling_threshold" json:"coupling_threshold"`
	WriterThreshold    int      `yaml:"writer_threshold" toml:"writer_threshold" json:"writer_threshold"`
	HotFile            string   `yaml:"hot_file" toml:"hot_file" json:"hot_file"`
	HotTriggers        []string `yaml:"hot_triggers" toml:"hot_triggers" json:"hot_triggers"`
	ExampleCap         int      `yaml:"example_cap" toml:"example_cap" json:"example_cap"`
}

// DefaultConfig returns the stock rule configuration.
func DefaultConfig() Config {
	return Config{
		NamespaceThreshold: 20,
		CouplingThreshold:  15,
		WriterThreshold:    5,
		HotFile:            "game_loop",
		HotTriggers:        []string{"delta time secondly", "tick", "player moves"},
		ExampleCap:         5,
	}
}

// Validate reports every out-of-range value.
func (c Config) Validate() error {
	var errs []error
	if c.NamespaceThreshold < 0 {
		errs = append(errs, fmt.Errorf("namespace_threshold must be non-negative, got %d", c.NamespaceThreshold))
	}
	if c.CouplingThreshold < 0 {
		errs = append(errs, fmt.Errorf("coupling_threshold must be non-negative, got %d", c.CouplingThreshold))
	}
	if c.WriterThreshold < 0 {
		errs = append(errs, fmt.Errorf("writer_threshold must be non-negative, got %d", c.WriterThreshold))
	}
	if c.ExampleCap < 1 {
		errs = append(errs, fmt.Errorf("example_cap must be at least 1, got %d", c.ExampleCap))
	}
	return errors.Join(errs...)
}
