package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// cli holds the persistent flags and output streams shared by every
// subcommand.
type cli struct {
	db         string
	format     string
	configPath string
	colorMode  string
	verbose    bool

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
	logger       *slog.Logger
}

func main() {
	c := &cli{}
	if err := c.rootCmd().Execute(); err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dscope",
		Short:         "Static analysis for Denizen script corpora",
		Long:          "dscope extracts events, state-key accesses and script calls from .dsc files, cross-references them and flags hazards such as multi-writer state and call cycles.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(c.format); err != nil {
				return err
			}
			if err := c.setColor(); err != nil {
				return err
			}
			c.setupLogger(cmd.ErrOrStderr())
			return nil
		},
		// No Run, prints help by default.
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.db, "db", "", "database path (default: output.db from config, relative to the corpus root)")
	pf.StringVar(&c.format, "format", "json", "output format: json|text")
	pf.StringVar(&c.configPath, "config", "", "config file (default: .dscope.yaml|.yml|.toml in the corpus root)")
	pf.StringVar(&c.colorMode, "color", "auto", "colorize text output (auto|on|off)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(c.analyzeCmd())
	root.AddCommand(c.queryCmd())
	return root
}

func (c *cli) setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c *cli) setColor() error {
	switch c.colorMode {
	case "auto":
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid color mode %q: must be auto, on or off", c.colorMode)
	}
	return nil
}

// resolveTargetDir returns the absolute path of the corpus directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// underRoot resolves a configured path against the corpus root. Absolute
// and empty paths are returned unchanged.
func underRoot(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
