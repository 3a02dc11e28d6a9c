// Package xref folds extracted facts into cross-reference indices: the event
// registry, the key-usage table, the bidirectional call graph and the
// container definitions.
//
// An Index is produced once by a Builder and is read-only afterwards. Every
// accessor returns a copy, so callers cannot mutate the index through it.
package xref

import (
	"errors"
	"slices"

	"github.com/jward/dscope/internal/store"
)

// ErrBuilderClosed is returned when facts are added after Build.
var ErrBuilderClosed = errors.New("xref: builder already built")

// KeyUsage aggregates every access to one canonical key. Readers and
// Writers are files, deduplicated and kept in first-encountered order.
// Both sets inherit the imprecision of the mode heuristic.
type KeyUsage struct {
	Key      string
	Readers  []string
	Writers  []string
	Accesses []store.DataKeyAccess
}

type keyEntry struct {
	usage   KeyUsage
	readers map[string]bool
	writers map[string]bool
}

// orderedSet is a string set that remembers insertion order.
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

// Index is the frozen result of one fold.
type Index struct {
	events     []store.EventHandler
	dataKeys   []store.DataKeyAccess
	calls      []store.CallEdge
	containers []store.ScriptContainer

	keys     map[string]*keyEntry
	keyOrder []string

	handlers   map[string][]store.EventHandler
	eventOrder []string

	targets     map[string]*orderedSet // caller file -> targets
	callers     map[string]*orderedSet // target -> caller files
	inbound     map[string]int         // target -> edge count
	callerOrder []string
	targetOrder []string

	defs map[string][]store.ScriptContainer

	frozen bool
}

func newIndex() *Index {
	return &Index{
		keys:     make(map[string]*keyEntry),
		handlers: make(map[string][]store.EventHandler),
		targets:  make(map[string]*orderedSet),
		callers:  make(map[string]*orderedSet),
		inbound:  make(map[string]int),
		defs:     make(map[string][]store.ScriptContainer),
	}
}

// Builder folds fact sets into an Index. Feed it files in traversal order
// (path, then line); the index keeps that order for every list it exposes.
type Builder struct {
	idx *Index
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{idx: newIndex()}
}

// Add folds the facts of one file into the index under construction.
func (b *Builder) Add(f store.Facts) error {
	if b.idx == nil {
		return ErrBuilderClosed
	}
	for _, e := range f.Events {
		b.addEvent(e)
	}
	for _, k := range f.DataKeys {
		b.addDataKey(k)
	}
	for _, c := range f.Calls {
		b.addCall(c)
	}
	for _, c := range f.Containers {
		b.idx.containers = append(b.idx.containers, c)
		b.idx.defs[c.Name] = append(b.idx.defs[c.Name], c)
	}
	return nil
}

// Build freezes and returns the index. The Builder cannot be used again.
func (b *Builder) Build() (*Index, error) {
	if b.idx == nil {
		return nil, ErrBuilderClosed
	}
	idx := b.idx
	idx.frozen = true
	b.idx = nil
	return idx, nil
}

func (b *Builder) addEvent(e store.EventHandler) {
	idx := b.idx
	idx.events = append(idx.events, e)
	if _, ok := idx.handlers[e.Event]; !ok {
		idx.eventOrder = append(idx.eventOrder, e.Event)
	}
	idx.handlers[e.Event] = append(idx.handlers[e.Event], e)
}

func (b *Builder) addDataKey(k store.DataKeyAccess) {
	idx := b.idx
	idx.dataKeys = append(idx.dataKeys, k)

	entry, ok := idx.keys[k.Key]
	if !ok {
		entry = &keyEntry{
			usage:   KeyUsage{Key: k.Key},
			readers: make(map[string]bool),
			writers: make(map[string]bool),
		}
		idx.keys[k.Key] = entry
		idx.keyOrder = append(idx.keyOrder, k.Key)
	}
	entry.usage.Accesses = append(entry.usage.Accesses, k)
	if k.Mode.Read && !entry.readers[k.File] {
		entry.readers[k.File] = true
		entry.usage.Readers = append(entry.usage.Readers, k.File)
	}
	if k.Mode.Write && !entry.writers[k.File] {
		entry.writers[k.File] = true
		entry.usage.Writers = append(entry.usage.Writers, k.File)
	}
}

func (b *Builder) addCall(c store.CallEdge) {
	idx := b.idx
	idx.calls = append(idx.calls, c)

	if _, ok := idx.targets[c.File]; !ok {
		idx.targets[c.File] = &orderedSet{}
		idx.callerOrder = append(idx.callerOrder, c.File)
	}
	if _, ok := idx.callers[c.Target]; !ok {
		idx.callers[c.Target] = &orderedSet{}
		idx.targetOrder = append(idx.targetOrder, c.Target)
	}
	idx.targets[c.File].add(c.Target)
	idx.callers[c.Target].add(c.File)
	idx.inbound[c.Target]++
}

// --- Read API ---

// Frozen reports whether the index came out of Builder.Build. A nil index
// is not frozen.
func (idx *Index) Frozen() bool {
	return idx != nil && idx.frozen
}

// Events returns every event handler in traversal order.
func (idx *Index) Events() []store.EventHandler { return slices.Clone(idx.events) }

// DataKeys returns every key access in traversal order.
func (idx *Index) DataKeys() []store.DataKeyAccess { return slices.Clone(idx.dataKeys) }

// Calls returns every call edge in traversal order.
func (idx *Index) Calls() []store.CallEdge { return slices.Clone(idx.calls) }

// Containers returns every script container in traversal order.
func (idx *Index) Containers() []store.ScriptContainer { return slices.Clone(idx.containers) }

// Keys returns the distinct canonical keys in first-encountered order.
func (idx *Index) Keys() []string { return slices.Clone(idx.keyOrder) }

// Usage returns the aggregated usage of key.
func (idx *Index) Usage(key string) (KeyUsage, bool) {
	entry, ok := idx.keys[key]
	if !ok {
		return KeyUsage{}, false
	}
	u := entry.usage
	return KeyUsage{
		Key:      u.Key,
		Readers:  slices.Clone(u.Readers),
		Writers:  slices.Clone(u.Writers),
		Accesses: slices.Clone(u.Accesses),
	}, true
}

// AccessCount returns the number of recorded accesses to key.
func (idx *Index) AccessCount(key string) int {
	if entry, ok := idx.keys[key]; ok {
		return len(entry.usage.Accesses)
	}
	return 0
}

// WriterCount returns the number of distinct files inferred to write key.
func (idx *Index) WriterCount(key string) int {
	if entry, ok := idx.keys[key]; ok {
		return len(entry.usage.Writers)
	}
	return 0
}

// EventNames returns the distinct event names in first-encountered order.
func (idx *Index) EventNames() []string { return slices.Clone(idx.eventOrder) }

// Handlers returns the handlers registered for an exact event name.
func (idx *Index) Handlers(event string) []store.EventHandler {
	return slices.Clone(idx.handlers[event])
}

// CallerFiles returns the files that make at least one call, in
// first-encountered order.
func (idx *Index) CallerFiles() []string { return slices.Clone(idx.callerOrder) }

// CallTargets returns the distinct call targets in first-encountered order.
func (idx *Index) CallTargets() []string { return slices.Clone(idx.targetOrder) }

// Targets returns the distinct targets called from file.
func (idx *Index) Targets(file string) []string {
	if s, ok := idx.targets[file]; ok {
		return slices.Clone(s.items)
	}
	return nil
}

// Callers returns the distinct files calling target.
func (idx *Index) Callers(target string) []string {
	if s, ok := idx.callers[target]; ok {
		return slices.Clone(s.items)
	}
	return nil
}

// InboundCount returns the number of call edges pointing at target,
// counting every occurrence.
func (idx *Index) InboundCount(target string) int { return idx.inbound[target] }

// Definitions returns the containers declared under name.
func (idx *Index) Definitions(name string) []store.ScriptContainer {
	return slices.Clone(idx.defs[name])
}
