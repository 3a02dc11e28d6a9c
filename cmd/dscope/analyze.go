package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/dscope"
	"github.com/jward/dscope/internal/config"
)

type analyzeFlags struct {
	out            string
	warningsOut    string
	analysisFormat string
	rulesDir       string
	parallel       bool
	noContainers   bool
	noDB           bool

	namespaceThreshold int
	couplingThreshold  int
	writerThreshold    int
	exampleCap         int
	hotFile            string
	hotTriggers        []string
}

func (c *cli) analyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a script corpus",
		Long:  "Extracts facts from every script file under path, builds the cross-reference index, runs the diagnostic rules and writes the analysis and warnings files.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyze(cmd, args, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.out, "out", "", "analysis output path (default: output.analysis from config)")
	fl.StringVar(&f.warningsOut, "warnings-out", "", "warnings output path (default: output.warnings from config)")
	fl.StringVar(&f.analysisFormat, "analysis-format", "", "analysis encoding: json|msgpack")
	fl.StringVar(&f.rulesDir, "rules-dir", "", "directory of *.risor rule scripts")
	fl.BoolVar(&f.parallel, "parallel", false, "extract files on a worker pool")
	fl.BoolVar(&f.noContainers, "no-containers", false, "skip the script container outline")
	fl.BoolVar(&f.noDB, "no-db", false, "do not read or write the database")
	fl.IntVar(&f.namespaceThreshold, "namespace-threshold", 0, "references above which a key is reported as overused")
	fl.IntVar(&f.couplingThreshold, "coupling-threshold", 0, "calls above which a script is reported as a heavy dependency")
	fl.IntVar(&f.writerThreshold, "writer-threshold", 0, "writer files above which a key is reported")
	fl.IntVar(&f.exampleCap, "example-cap", 0, "maximum examples per warning")
	fl.StringVar(&f.hotFile, "hot-file", "", "path fragment of the high-frequency handler file")
	fl.StringArrayVar(&f.hotTriggers, "hot-trigger", nil, "high-frequency trigger substring (repeatable)")
	return cmd
}

func (c *cli) runAnalyze(cmd *cobra.Command, args []string, f *analyzeFlags) error {
	start := time.Now()

	root, err := resolveTargetDir(args)
	if err != nil {
		return c.outputError(cmd, "analyze", err)
	}

	cfg, cfgPath, err := config.Resolve(root, c.configPath)
	if err != nil {
		return c.outputError(cmd, "analyze", err)
	}
	if cfgPath != "" {
		c.logger.Debug("loaded config", "path", cfgPath)
	}
	// Without a path argument, root and DSCOPE_ROOT in the config pick the
	// corpus, relative to the working directory.
	if len(args) == 0 && cfg.Root != root {
		root, err = resolveTargetDir([]string{underRoot(root, cfg.Root)})
		if err != nil {
			return c.outputError(cmd, "analyze", err)
		}
	}
	applyAnalyzeFlags(cmd, f, &cfg)
	if c.db != "" {
		cfg.Output.DB = c.db
	}
	if err := cfg.Validate(); err != nil {
		return c.outputError(cmd, "analyze", err)
	}

	dbPath := underRoot(root, cfg.Output.DB)
	if f.noDB {
		dbPath = ""
	}
	e, err := dscope.New(dbPath,
		dscope.WithParallel(cfg.Parallel),
		dscope.WithExtension(cfg.Extension),
		dscope.WithContextLength(cfg.ContextLength),
		dscope.WithContainers(cfg.Containers),
		dscope.WithDiagnostics(cfg.Rules),
		dscope.WithRulesDir(underRoot(root, cfg.RulesDir)),
		dscope.WithLogger(c.logger),
	)
	if err != nil {
		return c.outputError(cmd, "analyze", fmt.Errorf("creating engine: %w", err))
	}
	defer e.Close()

	a, err := e.Analyze(cmd.Context(), root)
	if err != nil {
		return c.outputError(cmd, "analyze", fmt.Errorf("analyzing: %w", err))
	}

	res := CLIAnalyzeResult{
		Root:      root,
		FileCount: a.FileCount,
		Skipped:   len(a.Skipped),
		Notes:     len(a.Notes),
		Warnings:  a.Warnings,
		Summary:   a.Summary,
		Database:  dbPath,
	}
	if out := underRoot(root, cfg.Output.Analysis); out != "" {
		if err := a.WriteFile(out, cfg.Output.Format); err != nil {
			return c.outputError(cmd, "analyze", err)
		}
		res.Analysis = out
	}
	if out := underRoot(root, cfg.Output.Warnings); out != "" {
		if err := a.WriteWarnings(out); err != nil {
			return c.outputError(cmd, "analyze", err)
		}
		res.WarningsFile = out
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Analyzed %d files in %s (%d skipped, %d warnings)\n",
		a.FileCount, time.Since(start).Round(time.Millisecond), len(a.Skipped), len(a.Warnings))

	return c.outputResult(cmd, CLIResult{Command: "analyze", Results: res})
}

// applyAnalyzeFlags overrides cfg with every flag set on the command line.
func applyAnalyzeFlags(cmd *cobra.Command, f *analyzeFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("out") {
		cfg.Output.Analysis = f.out
	}
	if changed("warnings-out") {
		cfg.Output.Warnings = f.warningsOut
	}
	if changed("analysis-format") {
		cfg.Output.Format = f.analysisFormat
	}
	if changed("rules-dir") {
		cfg.RulesDir = f.rulesDir
	}
	if changed("parallel") {
		cfg.Parallel = f.parallel
	}
	if changed("no-containers") {
		cfg.Containers = !f.noContainers
	}
	if changed("namespace-threshold") {
		cfg.Rules.NamespaceThreshold = f.namespaceThreshold
	}
	if changed("coupling-threshold") {
		cfg.Rules.CouplingThreshold = f.couplingThreshold
	}
	if changed("writer-threshold") {
		cfg.Rules.WriterThreshold = f.writerThreshold
	}
	if changed("example-cap") {
		cfg.Rules.ExampleCap = f.exampleCap
	}
	if changed("hot-file") {
		cfg.Rules.HotFile = f.hotFile
	}
	if changed("hot-trigger") {
		cfg.Rules.HotTriggers = f.hotTriggers
	}
}
