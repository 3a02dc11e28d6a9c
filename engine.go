package dscope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jward/dscope/internal/diagnose"
	"github.com/jward/dscope/internal/extract"
	"github.com/jward/dscope/internal/runtime"
	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// ErrNoStore is returned by Query when the Engine was created without a
// database.
var ErrNoStore = errors.New("dscope: no store configured")

// extractVersion is bumped whenever the matcher set changes so that facts
// stored by an older build are not reused.
const extractVersion = "1"

const fingerprintKey = "extract_fingerprint"

// Engine runs analysis passes: discovery, extraction, the index fold and
// diagnostics. It optionally persists facts and warnings to SQLite and
// reuses stored facts for files whose content has not changed.
type Engine struct {
	store *store.Store

	extension  string
	contextLen int
	containers bool
	rules      diagnose.Config
	rulesDir   string
	rulesFS    fs.FS
	logger     *slog.Logger

	// useParallel enables the worker-pool extraction path.
	useParallel bool
	jobs        int
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel extraction. Output is identical either
// way; only the extraction phase fans out.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithJobs caps the number of extraction workers used by WithParallel.
// Values below 1 mean one worker per CPU.
func WithJobs(n int) Option {
	return func(e *Engine) {
		e.jobs = n
	}
}

// WithExtension sets the file extension scanned by Analyze.
func WithExtension(ext string) Option {
	return func(e *Engine) {
		if ext != "" {
			e.extension = ext
		}
	}
}

// WithContextLength sets the rune length of context snippets.
func WithContextLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.contextLen = n
		}
	}
}

// WithContainers enables or disables the script container outline.
func WithContainers(enabled bool) Option {
	return func(e *Engine) {
		e.containers = enabled
	}
}

// WithDiagnostics sets the rule thresholds.
func WithDiagnostics(cfg diagnose.Config) Option {
	return func(e *Engine) {
		e.rules = cfg
	}
}

// WithRulesDir loads extra *.risor rule scripts from dir.
func WithRulesDir(dir string) Option {
	return func(e *Engine) {
		e.rulesDir = dir
	}
}

// WithRulesFS loads extra rule scripts from fsys instead of disk.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithLogger sets the logger for per-file failures and timing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine. When dbPath is non-empty the Engine is backed by a
// SQLite database at that path; an empty dbPath runs every pass in memory.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		extension:  DefaultExtension,
		contextLen: extract.DefaultContextLength,
		containers: true,
		rules:      diagnose.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.rules.Validate(); err != nil {
		return nil, fmt.Errorf("dscope: %w", err)
	}

	if dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("dscope: create %s: %w", dir, err)
			}
		}
		s, err := store.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("dscope: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("dscope: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Query returns a QueryBuilder over the facts stored by the last pass.
func (e *Engine) Query() (*QueryBuilder, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return &QueryBuilder{store: e.store}, nil
}

// fingerprint identifies the extraction settings. Stored facts are only
// reused when it matches.
func (e *Engine) fingerprint() string {
	return store.Fingerprint(extractVersion, strconv.Itoa(e.contextLen), strconv.FormatBool(e.containers))
}

func (e *Engine) extractor() *extract.Extractor {
	return extract.New(
		extract.WithContextLength(e.contextLen),
		extract.WithContainers(e.containers),
	)
}

// Analyze discovers the files under root and runs a full pass over them.
func (e *Engine) Analyze(ctx context.Context, root string) (*Analysis, error) {
	paths, err := Discover(root, e.extension)
	if err != nil {
		return nil, fmt.Errorf("dscope: discover: %w", err)
	}
	return e.AnalyzeFiles(ctx, root, paths)
}

// AnalyzeFiles runs a full pass over paths, which are relative to root.
// Files that cannot be read are reported in Analysis.Skipped and do not
// stop the pass. Only cancellation and store failures are returned as
// errors.
func (e *Engine) AnalyzeFiles(ctx context.Context, root string, paths []string) (*Analysis, error) {
	start := time.Now()
	paths = normalizePaths(paths)

	results, err := e.ExtractFiles(ctx, root, paths)
	if err != nil {
		return nil, err
	}
	extracted := time.Since(start)

	a := newAnalysis()
	b := xref.NewBuilder()
	var kept []string
	for _, r := range results {
		if r.Err != nil {
			a.Skipped = append(a.Skipped, Skipped{Path: r.Path, Error: r.Err.Error()})
			continue
		}
		kept = append(kept, r.Path)
		a.FileCount++
		if r.Facts.Empty() {
			e.logger.Debug("no facts extracted", "path", r.Path)
		}
		a.Notes = append(a.Notes, r.Facts.Notes...)
		if err := b.Add(r.Facts); err != nil {
			return nil, fmt.Errorf("dscope: fold %s: %w", r.Path, err)
		}
	}
	idx, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("dscope: build index: %w", err)
	}

	warnings, err := e.Diagnose(ctx, idx)
	if err != nil {
		return nil, err
	}
	a.fill(idx, warnings)

	if e.store != nil {
		if err := e.persist(kept, warnings); err != nil {
			return nil, err
		}
	}

	e.logger.Info("analysis complete",
		"files", a.FileCount,
		"skipped", len(a.Skipped),
		"events", len(a.Events),
		"data_keys", len(a.DataKeys),
		"calls", len(a.Calls),
		"warnings", len(a.Warnings),
		"extract", extracted.Round(time.Millisecond),
		"total", time.Since(start).Round(time.Millisecond),
	)
	return a, nil
}

func (e *Engine) persist(kept []string, warnings []Warning) error {
	if err := e.store.ReplaceWarnings(warnings); err != nil {
		return fmt.Errorf("dscope: %w", err)
	}
	if n, err := e.store.PruneFiles(kept); err != nil {
		return fmt.Errorf("dscope: %w", err)
	} else if n > 0 {
		e.logger.Debug("pruned stale files", "count", n)
	}
	if err := e.store.SetMetadata(fingerprintKey, e.fingerprint()); err != nil {
		return fmt.Errorf("dscope: %w", err)
	}
	return nil
}

// Diagnose runs the built-in rules and any configured rule scripts over a
// frozen index.
func (e *Engine) Diagnose(ctx context.Context, idx *xref.Index) ([]Warning, error) {
	opts := []diagnose.Option{diagnose.WithLogger(e.logger)}
	if e.rulesDir != "" || e.rulesFS != nil {
		rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.logger)}
		if e.rulesFS != nil {
			rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.rulesFS))
		}
		rules, err := runtime.NewRuntime(e.rulesDir, rtOpts...).Rules(e.rules)
		if err != nil {
			return nil, fmt.Errorf("dscope: load rules: %w", err)
		}
		opts = append(opts, diagnose.WithRules(rules...))
	}
	return diagnose.NewEngine(e.rules, opts...).Run(ctx, idx)
}

// FileResult is the outcome of extracting one file. Err is set when the
// file could not be read; Facts is empty in that case.
type FileResult struct {
	Path   string
	Facts  Facts
	Reused bool
	Err    error

	hash  string
	lines int
}

// ExtractFiles extracts every path in order and returns one result per
// path, in the same order. With a store configured, unchanged files are
// loaded from it and changed files are committed to it.
func (e *Engine) ExtractFiles(ctx context.Context, root string, paths []string) ([]FileResult, error) {
	known, err := e.reusable()
	if err != nil {
		return nil, err
	}

	var results []FileResult
	if e.useParallel && len(paths) > 1 {
		results, err = e.extractParallel(ctx, root, paths, known)
	} else {
		results, err = e.extractSerial(ctx, root, paths, known)
	}
	if err != nil {
		return nil, err
	}

	if e.store != nil {
		if err := e.commit(results, known); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// reusable returns the stored files whose facts may be reused, keyed by
// path. It is empty without a store or when the extraction settings
// changed since the last pass.
func (e *Engine) reusable() (map[string]*store.File, error) {
	if e.store == nil {
		return nil, nil
	}
	stored, err := e.store.GetMetadata(fingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("dscope: %w", err)
	}
	if stored != e.fingerprint() {
		return nil, nil
	}
	files, err := e.store.Files()
	if err != nil {
		return nil, fmt.Errorf("dscope: %w", err)
	}
	known := make(map[string]*store.File, len(files))
	for _, f := range files {
		known[f.Path] = f
	}
	return known, nil
}

func (e *Engine) extractSerial(ctx context.Context, root string, paths []string, known map[string]*store.File) ([]FileResult, error) {
	x := e.extractor()
	results := make([]FileResult, len(paths))
	for i, path := range paths {
		r, err := e.extractFile(ctx, x, root, path, known)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

// extractFile reads and scans one file. Read failures are carried in the
// result; only ctx errors are returned.
func (e *Engine) extractFile(ctx context.Context, x *extract.Extractor, root, path string, known map[string]*store.File) (FileResult, error) {
	r := FileResult{Path: path}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if err != nil {
		e.logger.Warn("skipping unreadable file", "path", path, "error", err)
		r.Err = err
		return r, nil
	}
	r.hash = store.ContentHash(content)
	r.lines = countLines(content)

	if f, ok := known[path]; ok && f.Hash == r.hash {
		r.Reused = true
		return r, nil
	}

	facts, err := x.ExtractFile(ctx, path, content)
	if err != nil {
		return r, err
	}
	r.Facts = facts
	return r, nil
}

// commit loads reused facts from the store and writes fresh ones to it.
func (e *Engine) commit(results []FileResult, known map[string]*store.File) error {
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			continue
		}
		if r.Reused {
			facts, err := e.store.FactsByFile(known[r.Path].ID)
			if err != nil {
				return fmt.Errorf("dscope: load %s: %w", r.Path, err)
			}
			r.Facts = facts
			continue
		}
		f := &store.File{
			Path:        r.Path,
			Hash:        r.hash,
			LineCount:   r.lines,
			LastIndexed: time.Now(),
		}
		if err := e.store.CommitFacts(f, r.Facts); err != nil {
			return fmt.Errorf("dscope: %w", err)
		}
	}
	return nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	return bytes.Count(content, []byte{'\n'}) + 1
}
