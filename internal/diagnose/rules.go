package diagnose

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// Warning kinds produced by the built-in rules.
const (
	KindDuplicateKeys       = "duplicate_keys"
	KindPerformanceCritical = "performance_critical"
	KindManualReview        = "manual_review_needed"
	KindHeavyDependencies   = "heavy_dependencies"
	KindConcurrentWrites    = "concurrent_writes"

	// KindCircularCalls only covers direct two-file cycles. A target that
	// names neither a declared container nor a file path is never resolved.
	KindCircularCalls = "circular_calls"
)

// Rule inspects a frozen index and returns at most one warning. A nil
// warning means no finding.
type Rule interface {
	Name() string
	Check(ctx context.Context, idx *xref.Index) (*store.Warning, error)
}

// builtinRules returns the fixed rule sequence in declaration order.
func builtinRules(cfg Config) []Rule {
	return []Rule{
		duplicateKeys{cfg},
		performanceCritical{cfg},
		manualReview{cfg},
		heavyDependencies{cfg},
		concurrentWrites{cfg},
		circularCalls{cfg},
	}
}

// counted is a name with an occurrence count, kept in first-seen order.
type counted struct {
	name  string
	count int
}

// rankDesc sorts by descending count; ties keep first-seen order.
func rankDesc(items []counted) {
	slices.SortStableFunc(items, func(a, b counted) int {
		return cmp.Compare(b.count, a.count)
	})
}

func capped(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return s
}

// --- duplicate_keys ---

type duplicateKeys struct{ cfg Config }

func (duplicateKeys) Name() string { return KindDuplicateKeys }

func (r duplicateKeys) Check(_ context.Context, idx *xref.Index) (*store.Warning, error) {
	var groups []counted
	pos := make(map[string]int)
	for _, key := range idx.Keys() {
		folded := strings.ToLower(key)
		i, ok := pos[folded]
		if !ok {
			i = len(groups)
			pos[folded] = i
			groups = append(groups, counted{name: folded})
		}
		groups[i].count += idx.AccessCount(key)
	}

	var names []string
	for _, g := range groups {
		if g.count > r.cfg.NamespaceThreshold {
			names = append(names, g.name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return &store.Warning{
		Kind:     KindDuplicateKeys,
		Severity: store.SeverityMedium,
		Count:    len(names),
		Message: fmt.Sprintf("Found %d keys with >%d references (possible overuse or namespace pollution)",
			len(names), r.cfg.NamespaceThreshold),
		Examples: capped(names, r.cfg.ExampleCap),
	}, nil
}

// --- performance_critical ---

type performanceCritical struct{ cfg Config }

func (performanceCritical) Name() string { return KindPerformanceCritical }

func (r performanceCritical) Check(_ context.Context, idx *xref.Index) (*store.Warning, error) {
	if r.cfg.HotFile == "" {
		return nil, nil
	}
	var details []string
	for _, e := range idx.Events() {
		if !strings.Contains(e.File, r.cfg.HotFile) || !r.hot(e.Event) {
			continue
		}
		details = append(details, fmt.Sprintf("%s at line %d", e.Event, e.Line))
	}
	if len(details) == 0 {
		return nil, nil
	}
	return &store.Warning{
		Kind:     KindPerformanceCritical,
		Severity: store.SeverityHigh,
		Count:    len(details),
		Message:  fmt.Sprintf("Found %d high-frequency event handlers in %s", len(details), r.cfg.HotFile),
		Examples: capped(details, r.cfg.ExampleCap),
	}, nil
}

func (r performanceCritical) hot(event string) bool {
	lower := strings.ToLower(event)
	for _, trig := range r.cfg.HotTriggers {
		if trig != "" && strings.Contains(lower, strings.ToLower(trig)) {
			return true
		}
	}
	return false
}

// --- manual_review_needed ---

type manualReview struct{ cfg Config }

func (manualReview) Name() string { return KindManualReview }

func (r manualReview) Check(context.Context, *xref.Index) (*store.Warning, error) {
	return &store.Warning{
		Kind:     KindManualReview,
		Severity: store.SeverityMedium,
		Message:  fmt.Sprintf(`Manual review recommended: Check for "wait" or "waituntil" commands in %s`, r.cfg.HotFile),
		Reason:   "Blocking operations in high-frequency handlers will cause server lag",
	}, nil
}

// --- heavy_dependencies ---

type heavyDependencies struct{ cfg Config }

func (heavyDependencies) Name() string { return KindHeavyDependencies }

func (r heavyDependencies) Check(_ context.Context, idx *xref.Index) (*store.Warning, error) {
	var heavy []counted
	for _, target := range idx.CallTargets() {
		if n := idx.InboundCount(target); n > r.cfg.CouplingThreshold {
			heavy = append(heavy, counted{name: target, count: n})
		}
	}
	if len(heavy) == 0 {
		return nil, nil
	}
	rankDesc(heavy)
	examples := make([]string, 0, len(heavy))
	for _, h := range heavy {
		examples = append(examples, fmt.Sprintf("%s (%d calls)", h.name, h.count))
	}
	return &store.Warning{
		Kind:     KindHeavyDependencies,
		Severity: store.SeverityLow,
		Count:    len(heavy),
		Message: fmt.Sprintf("Found %d scripts called >%d times (tight coupling)",
			len(heavy), r.cfg.CouplingThreshold),
		Examples: capped(examples, r.cfg.ExampleCap),
	}, nil
}

// --- concurrent_writes ---

type concurrentWrites struct{ cfg Config }

func (concurrentWrites) Name() string { return KindConcurrentWrites }

func (r concurrentWrites) Check(_ context.Context, idx *xref.Index) (*store.Warning, error) {
	var busy []counted
	for _, key := range idx.Keys() {
		if n := idx.WriterCount(key); n > r.cfg.WriterThreshold {
			busy = append(busy, counted{name: key, count: n})
		}
	}
	if len(busy) == 0 {
		return nil, nil
	}
	rankDesc(busy)
	examples := make([]string, 0, len(busy))
	for _, b := range busy {
		examples = append(examples, fmt.Sprintf("%s (%d writers)", b.name, b.count))
	}
	return &store.Warning{
		Kind:     KindConcurrentWrites,
		Severity: store.SeverityMedium,
		Count:    len(busy),
		Message: fmt.Sprintf("Found %d keys written by >%d different files (potential race conditions)",
			len(busy), r.cfg.WriterThreshold),
		Examples: capped(examples, r.cfg.ExampleCap),
	}, nil
}

// --- circular_calls ---

type circularCalls struct{ cfg Config }

func (circularCalls) Name() string { return KindCircularCalls }

// Check pairs caller files that reach each other. A call reaches its target
// as written and, when a script container of that name is declared, every
// file declaring it. Each unordered pair of distinct files is reported once.
func (r circularCalls) Check(_ context.Context, idx *xref.Index) (*store.Warning, error) {
	reaches := make(map[string]map[string]bool)
	for _, file := range idx.CallerFiles() {
		set := make(map[string]bool)
		for _, target := range idx.Targets(file) {
			set[target] = true
			for _, def := range idx.Definitions(target) {
				set[def.File] = true
			}
		}
		reaches[file] = set
	}

	type pair struct{ a, b string }
	var pairs []pair
	for _, a := range idx.CallerFiles() {
		for b := range reaches[a] {
			if a < b && reaches[b][a] {
				pairs = append(pairs, pair{a, b})
			}
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	slices.SortFunc(pairs, func(x, y pair) int {
		if c := cmp.Compare(x.a, y.a); c != 0 {
			return c
		}
		return cmp.Compare(x.b, y.b)
	})
	examples := make([]string, 0, len(pairs))
	for _, p := range pairs {
		examples = append(examples, p.a+" ↔ "+p.b)
	}
	return &store.Warning{
		Kind:     KindCircularCalls,
		Severity: store.SeverityMedium,
		Count:    len(pairs),
		Message:  fmt.Sprintf("Found %d circular call patterns (A↔B)", len(pairs)),
		Examples: capped(examples, r.cfg.ExampleCap),
	}, nil
}
