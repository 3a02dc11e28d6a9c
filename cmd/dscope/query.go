package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/dscope"
	"github.com/jward/dscope/internal/config"
	"github.com/jward/dscope/internal/xref"
)

func (c *cli) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the stored analysis",
		Long:  "Run queries against the database written by 'dscope analyze'. Line numbers are 1-based.",
	}
	cmd.AddCommand(c.eventsCmd())
	cmd.AddCommand(c.keyCmd())
	cmd.AddCommand(c.callersCmd())
	cmd.AddCommand(c.calleesCmd())
	cmd.AddCommand(c.defsCmd())
	cmd.AddCommand(c.warningsCmd())
	cmd.AddCommand(c.summaryCmd())
	cmd.AddCommand(c.reachCmd())
	return cmd
}

// --- Helpers ---

// openQuery opens the database named by --db, or the configured one
// relative to the working directory.
func (c *cli) openQuery() (*dscope.Engine, *dscope.QueryBuilder, error) {
	dbPath := c.db
	if dbPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("getting cwd: %w", err)
		}
		cfg, _, err := config.Resolve(cwd, c.configPath)
		if err != nil {
			return nil, nil, err
		}
		dbPath = underRoot(cwd, cfg.Output.DB)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("database not found: %s (run 'dscope analyze' first)", dbPath)
	}

	e, err := dscope.New(dbPath, dscope.WithLogger(c.logger))
	if err != nil {
		return nil, nil, err
	}
	q, err := e.Query()
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, q, nil
}

// runQuery opens the database, runs fn and prints its result under the
// given command name.
func (c *cli) runQuery(cmd *cobra.Command, name string, fn func(q *dscope.QueryBuilder) (any, error)) error {
	e, q, err := c.openQuery()
	if err != nil {
		return c.outputError(cmd, name, err)
	}
	defer e.Close()

	results, err := fn(q)
	if err != nil {
		return c.outputError(cmd, name, err)
	}
	res := CLIResult{Command: name, Results: results}
	if n, ok := resultCount(results); ok {
		res.TotalCount = &n
	}
	return c.outputResult(cmd, res)
}

// outputResult writes a CLIResult to stdout in the selected format.
func (c *cli) outputResult(cmd *cobra.Command, result CLIResult) error {
	if c.format == "text" {
		return outputResultText(cmd.OutOrStdout(), result)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (c *cli) outputError(cmd *cobra.Command, command string, err error) error {
	c.errorHandled = true
	if c.format == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// --- Commands ---

func (c *cli) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <name>",
		Short: "Handlers registered for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "events", func(q *dscope.QueryBuilder) (any, error) {
				events, err := q.Events(args[0])
				return nonNil(events), err
			})
		},
	}
}

func (c *cli) keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <key>",
		Short: "Readers, writers and accesses of a state key",
		Long:  "Aggregates every access to a canonical state key such as player.flag.mana. Shorthand prefixes (p., s., <player., <server.) are normalized first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "key", func(q *dscope.QueryBuilder) (any, error) {
				usage, err := q.Key(args[0])
				if err != nil {
					return nil, err
				}
				if usage == nil {
					return nil, fmt.Errorf("key not found: %s", args[0])
				}
				return keyUsageToCLI(usage), nil
			})
		},
	}
}

func (c *cli) callersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callers <target>",
		Short: "Calls that run, inject or task a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "callers", func(q *dscope.QueryBuilder) (any, error) {
				calls, err := q.Callers(args[0])
				return nonNil(calls), err
			})
		},
	}
}

func (c *cli) calleesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callees <file>",
		Short: "Calls made from a file",
		Long:  "Lists calls made from a file. The path is relative to the corpus root, with forward slashes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "callees", func(q *dscope.QueryBuilder) (any, error) {
				calls, err := q.Callees(args[0])
				return nonNil(calls), err
			})
		},
	}
}

func (c *cli) defsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defs <name>",
		Short: "Where a script container is declared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "defs", func(q *dscope.QueryBuilder) (any, error) {
				defs, err := q.Definitions(args[0])
				return nonNil(defs), err
			})
		},
	}
}

func (c *cli) warningsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warnings",
		Short: "Warnings from the last analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "warnings", func(q *dscope.QueryBuilder) (any, error) {
				ws, err := q.Warnings()
				return nonNil(ws), err
			})
		},
	}
}

func (c *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Row counts across the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "summary", func(q *dscope.QueryBuilder) (any, error) {
				return q.Summary()
			})
		},
	}
}

func (c *cli) reachCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "reach <target>",
		Short: "Transitive callers of a script",
		Long:  "Walks from a script to the files that call it, to the containers those files declare, and on to their callers.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd, "reach", func(q *dscope.QueryBuilder) (any, error) {
				r, err := q.Reach(args[0], depth)
				if err != nil {
					return nil, err
				}
				return reachToCLI(r), nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 5, fmt.Sprintf("maximum hops (capped at %d)", xref.MaxReachDepth))
	return cmd
}

// resultCount returns the length of list results.
func resultCount(v any) (int, bool) {
	switch r := v.(type) {
	case []dscope.EventHandler:
		return len(r), true
	case []dscope.CallEdge:
		return len(r), true
	case []dscope.ScriptContainer:
		return len(r), true
	case []dscope.Warning:
		return len(r), true
	default:
		return 0, false
	}
}
