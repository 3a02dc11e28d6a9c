// Package diagnose evaluates hazard rules over a frozen cross-reference
// index and produces an ordered list of warnings.
package diagnose

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// ErrIndexNotBuilt is returned when rules are run against an index that
// was never frozen.
var ErrIndexNotBuilt = errors.New("diagnose: index not built")

// Engine runs the built-in rules followed by any extra rules.
type Engine struct {
	cfg    Config
	extra  []Rule
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules appends extra rules. They run after the built-ins, in the order
// given.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, rules...)
	}
}

// WithLogger sets the logger used to report failing rules.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine with the given rule configuration.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the rule configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run evaluates every rule against idx. Warnings come back in rule order,
// each holding at most ExampleCap examples whatever rule produced it. A rule
// that fails is logged and skipped; the others still run.
func (e *Engine) Run(ctx context.Context, idx *xref.Index) ([]store.Warning, error) {
	if !idx.Frozen() {
		return nil, ErrIndexNotBuilt
	}

	rules := append(builtinRules(e.cfg), e.extra...)
	warnings := []store.Warning{}
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := r.Check(ctx, idx)
		if err != nil {
			e.logger.Warn("rule failed", "rule", r.Name(), "error", err)
			continue
		}
		if w != nil {
			out := *w
			if e.cfg.ExampleCap > 0 {
				out.Examples = capped(out.Examples, e.cfg.ExampleCap)
			}
			warnings = append(warnings, out)
		}
	}
	return warnings, nil
}
