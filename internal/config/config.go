// Package config loads analyzer settings. Sources apply in order, later ones
// overriding earlier: built-in defaults, a YAML or TOML file, a .env file,
// DSCOPE_* environment variables. Command-line flags are applied last by the
// CLI itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jward/dscope/internal/diagnose"
)

// Output formats for the analysis artifact.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Config holds every analyzer setting.
type Config struct {
	Root          string          `yaml:"root" toml:"root"`
	Extension     string          `yaml:"extension" toml:"extension"`
	ContextLength int             `yaml:"context_length" toml:"context_length"`
	Parallel      bool            `yaml:"parallel" toml:"parallel"`
	Containers    bool            `yaml:"containers" toml:"containers"`
	RulesDir      string          `yaml:"rules_dir" toml:"rules_dir"`
	Output        Output          `yaml:"output" toml:"output"`
	Rules         diagnose.Config `yaml:"rules" toml:"rules"`
}

// Output lists where results go. An empty path disables that output.
type Output struct {
	Analysis string `yaml:"analysis" toml:"analysis"`
	Warnings string `yaml:"warnings" toml:"warnings"`
	DB       string `yaml:"db" toml:"db"`
	Format   string `yaml:"format" toml:"format"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Root:          ".",
		Extension:     ".dsc",
		ContextLength: 80,
		Containers:    true,
		Output: Output{
			Analysis: filepath.Join("docs", "analysis.json"),
			Warnings: filepath.Join("docs", "warnings.json"),
			DB:       filepath.Join(".dscope", "index.db"),
			Format:   FormatJSON,
		},
		Rules: diagnose.DefaultConfig(),
	}
}

// candidates are the file names Discover looks for, in priority order.
var candidates = []string{".dscope.yaml", ".dscope.yml", ".dscope.toml"}

// Discover returns the first config file found in dir, or "" if none exists.
func Discover(dir string) string {
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads the config file at path over the defaults. The format follows
// the extension: .toml is TOML, anything else YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.merge(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// Resolve builds the effective configuration for a run: defaults, then the
// explicit file (or the one discovered in root), then .env, then the
// environment. It returns the config file used, or "".
func Resolve(root, explicit string) (Config, string, error) {
	cfg := Default()
	cfg.Root = root

	path := explicit
	if path == "" {
		path = Discover(root)
	}
	if path != "" {
		if err := cfg.merge(path); err != nil {
			return Config{}, "", err
		}
		if cfg.Root == "" {
			cfg.Root = root
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

// ApplyEnv overrides fields from DSCOPE_* variables found through lookup.
// DSCOPE_HOT_TRIGGERS is comma separated.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("DSCOPE_ROOT", &c.Root)
	str("DSCOPE_EXTENSION", &c.Extension)
	num("DSCOPE_CONTEXT_LENGTH", &c.ContextLength)
	flag("DSCOPE_PARALLEL", &c.Parallel)
	flag("DSCOPE_CONTAINERS", &c.Containers)
	str("DSCOPE_RULES_DIR", &c.RulesDir)
	str("DSCOPE_OUT", &c.Output.Analysis)
	str("DSCOPE_WARNINGS_OUT", &c.Output.Warnings)
	str("DSCOPE_DB", &c.Output.DB)
	str("DSCOPE_FORMAT", &c.Output.Format)
	num("DSCOPE_NAMESPACE_THRESHOLD", &c.Rules.NamespaceThreshold)
	num("DSCOPE_COUPLING_THRESHOLD", &c.Rules.CouplingThreshold)
	num("DSCOPE_WRITER_THRESHOLD", &c.Rules.WriterThreshold)
	str("DSCOPE_HOT_FILE", &c.Rules.HotFile)
	num("DSCOPE_EXAMPLE_CAP", &c.Rules.ExampleCap)
	if v, ok := lookup("DSCOPE_HOT_TRIGGERS"); ok {
		c.Rules.HotTriggers = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.ContextLength < 1 {
		errs = append(errs, fmt.Errorf("context_length must be at least 1, got %d", c.ContextLength))
	}
	if c.Extension == "" {
		errs = append(errs, errors.New("extension must not be empty"))
	}
	switch c.Output.Format {
	case FormatJSON, FormatMsgpack:
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q (want %s or %s)", c.Output.Format, FormatJSON, FormatMsgpack))
	}
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
