package dscope

import (
	"errors"
	"fmt"

	"github.com/jward/dscope/internal/extract"
	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// QueryBuilder answers questions about the facts and warnings stored by
// the most recent analysis pass.
type QueryBuilder struct {
	store *store.Store
}

// Files returns every stored file ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// Events returns the handlers registered for an exact event name.
func (q *QueryBuilder) Events(name string) ([]EventHandler, error) {
	return q.store.EventsByName(name)
}

// Key aggregates every access to key. The key is normalized first, so
// shorthand such as "p.flag.mana" finds "player.flag.mana". It returns nil
// when the key was never seen.
func (q *QueryBuilder) Key(key string) (*KeyUsage, error) {
	key = extract.Normalize(key)
	accesses, err := q.store.AccessesByKey(key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	b := xref.NewBuilder()
	if err := b.Add(Facts{DataKeys: accesses}); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	idx, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	usage, ok := idx.Usage(key)
	if !ok {
		return nil, nil
	}
	return &usage, nil
}

// Callers returns every call edge pointing at target.
func (q *QueryBuilder) Callers(target string) ([]CallEdge, error) {
	return q.store.CallsByTarget(target)
}

// ErrFileNotFound is returned by Callees for a path the store has no
// record of.
var ErrFileNotFound = errors.New("dscope: file not found")

// Callees returns every call edge made from file. A file that was scanned
// but makes no calls yields an empty list; a file that was never scanned
// yields ErrFileNotFound.
func (q *QueryBuilder) Callees(file string) ([]CallEdge, error) {
	f, err := q.store.FileByPath(file)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, file)
	}
	return q.store.CallsByFile(f.Path)
}

// Definitions returns the script containers declared under name.
func (q *QueryBuilder) Definitions(name string) ([]ScriptContainer, error) {
	return q.store.ContainersByName(name)
}

// Warnings returns the warnings of the last pass in rule order.
func (q *QueryBuilder) Warnings() ([]Warning, error) {
	return q.store.Warnings()
}

// Summary returns row counts across the store.
func (q *QueryBuilder) Summary() (Counts, error) {
	return q.store.Counts()
}

// Index rebuilds the cross-reference index from the stored facts, folding
// files in path order exactly as the analysis pass does.
func (q *QueryBuilder) Index() (*Index, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	b := xref.NewBuilder()
	for _, f := range files {
		facts, err := q.store.FactsByFile(f.ID)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		if err := b.Add(facts); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
	}
	return b.Build()
}

// Reach walks transitive callers of target up to maxDepth hops.
func (q *QueryBuilder) Reach(target string, maxDepth int) (*Reach, error) {
	idx, err := q.Index()
	if err != nil {
		return nil, err
	}
	return idx.TransitiveCallers(target, maxDepth)
}
