package dscope

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jward/dscope/internal/config"
	"github.com/jward/dscope/internal/xref"
)

// Encodings accepted by Analysis.Encode.
const (
	FormatJSON    = config.FormatJSON
	FormatMsgpack = config.FormatMsgpack
)

// topN is the length of the Summary ranking lists.
const topN = 5

// Analysis is the serializable result of one pass. The JSON and msgpack
// encodings share the same field names.
type Analysis struct {
	Events     []EventHandler    `json:"events"`
	DataKeys   []DataKeyAccess   `json:"dataKeys"`
	Calls      []CallEdge        `json:"calls"`
	Containers []ScriptContainer `json:"containers"`
	Warnings   []Warning         `json:"warnings"`
	FileCount  int               `json:"fileCount"`
	Notes      []Note            `json:"notes"`
	Skipped    []Skipped         `json:"skipped"`
	Summary    Summary           `json:"summary"`
}

// Skipped is a file that could not be read.
type Skipped struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary holds headline counts and the most frequent events and call
// targets.
type Summary struct {
	Files      int            `json:"files"`
	Events     int            `json:"events"`
	DataKeys   int            `json:"dataKeys"`
	UniqueKeys int            `json:"uniqueKeys"`
	Calls      int            `json:"calls"`
	Containers int            `json:"containers"`
	Warnings   map[string]int `json:"warnings"`
	TopEvents  []Tally        `json:"topEvents"`
	TopTargets []Tally        `json:"topTargets"`
}

// Tally is a name with an occurrence count.
type Tally struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// newAnalysis returns an Analysis whose lists encode as [] rather than null.
func newAnalysis() *Analysis {
	return &Analysis{
		Events:     []EventHandler{},
		DataKeys:   []DataKeyAccess{},
		Calls:      []CallEdge{},
		Containers: []ScriptContainer{},
		Warnings:   []Warning{},
		Notes:      []Note{},
		Skipped:    []Skipped{},
	}
}

func (a *Analysis) fill(idx *xref.Index, warnings []Warning) {
	a.Events = append(a.Events, idx.Events()...)
	a.DataKeys = append(a.DataKeys, idx.DataKeys()...)
	a.Calls = append(a.Calls, idx.Calls()...)
	a.Containers = append(a.Containers, idx.Containers()...)
	a.Warnings = append(a.Warnings, warnings...)

	s := Summary{
		Files:      a.FileCount,
		Events:     len(a.Events),
		DataKeys:   len(a.DataKeys),
		UniqueKeys: len(idx.Keys()),
		Calls:      len(a.Calls),
		Containers: len(a.Containers),
		Warnings:   make(map[string]int),
	}
	for _, w := range warnings {
		s.Warnings[string(w.Severity)]++
	}

	events := make([]Tally, 0, len(idx.EventNames()))
	for _, name := range idx.EventNames() {
		events = append(events, Tally{Name: name, Count: len(idx.Handlers(name))})
	}
	s.TopEvents = top(events, topN)

	targets := make([]Tally, 0, len(idx.CallTargets()))
	for _, name := range idx.CallTargets() {
		targets = append(targets, Tally{Name: name, Count: idx.InboundCount(name)})
	}
	s.TopTargets = top(targets, topN)

	a.Summary = s
}

// top sorts by descending count, ties keeping their first-seen order, and
// keeps the first n.
func top(items []Tally, n int) []Tally {
	slices.SortStableFunc(items, func(a, b Tally) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// Encode writes a in the given format: indented JSON or msgpack.
func (a *Analysis) Encode(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		return encodeJSON(w, a)
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		enc.SetSortMapKeys(true)
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("encode msgpack: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteFile encodes a to path, creating parent directories as needed.
func (a *Analysis) WriteFile(path, format string) error {
	return writeFile(path, func(w io.Writer) error { return a.Encode(w, format) })
}

// WriteWarnings writes the warning list alone as indented JSON.
func (a *Analysis) WriteWarnings(path string) error {
	return writeFile(path, func(w io.Writer) error { return encodeJSON(w, a.Warnings) })
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeFile(path string, encode func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
