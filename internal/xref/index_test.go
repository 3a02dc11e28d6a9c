package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/dscope/internal/store"
)

func access(file string, line int, key string, read, write bool) store.DataKeyAccess {
	return store.DataKeyAccess{
		File: file, Line: line, Key: key,
		Scope: store.ScopePlayer, Kind: store.AccessFlag,
		Mode: store.Mode{Read: read, Write: write},
	}
}

func call(file string, line int, target string) store.CallEdge {
	return store.CallEdge{File: file, Line: line, Kind: store.CallRun, Target: target}
}

func build(t *testing.T, facts ...store.Facts) *Index {
	t.Helper()
	b := NewBuilder()
	for _, f := range facts {
		require.NoError(t, b.Add(f))
	}
	idx, err := b.Build()
	require.NoError(t, err)
	return idx
}

// =============================================================================
// Builder
// =============================================================================

func TestBuilder_RejectsFactsAfterBuild(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	idx, err := b.Build()
	require.NoError(t, err)
	assert.True(t, idx.Frozen())

	assert.ErrorIs(t, b.Add(store.Facts{}), ErrBuilderClosed)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderClosed)
}

func TestFrozen_NilIndex(t *testing.T) {
	t.Parallel()
	var idx *Index
	assert.False(t, idx.Frozen())
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()
	idx := build(t)
	assert.Empty(t, idx.Events())
	assert.Empty(t, idx.Keys())
	assert.Empty(t, idx.CallerFiles())
	assert.Empty(t, idx.Containers())
}

// =============================================================================
// Key usage
// =============================================================================

func TestUsage_ReadersAndWritersDeduplicated(t *testing.T) {
	t.Parallel()
	idx := build(t,
		store.Facts{DataKeys: []store.DataKeyAccess{
			access("a.dsc", 1, "player.flag.mana", true, true),
			access("a.dsc", 2, "player.flag.mana", false, true),
		}},
		store.Facts{DataKeys: []store.DataKeyAccess{
			access("b.dsc", 1, "player.flag.mana", true, false),
			access("b.dsc", 3, "server.flag.x", false, false),
		}},
	)

	assert.Equal(t, []string{"player.flag.mana", "server.flag.x"}, idx.Keys())

	u, ok := idx.Usage("player.flag.mana")
	require.True(t, ok)
	assert.Equal(t, []string{"a.dsc", "b.dsc"}, u.Readers)
	assert.Equal(t, []string{"a.dsc"}, u.Writers)
	assert.Len(t, u.Accesses, 3)
	assert.Equal(t, 3, idx.AccessCount("player.flag.mana"))
	assert.Equal(t, 1, idx.WriterCount("player.flag.mana"))

	u, ok = idx.Usage("server.flag.x")
	require.True(t, ok)
	assert.Empty(t, u.Readers)
	assert.Empty(t, u.Writers)

	_, ok = idx.Usage("missing")
	assert.False(t, ok)
	assert.Zero(t, idx.AccessCount("missing"))
}

func TestUsage_ReturnsCopies(t *testing.T) {
	t.Parallel()
	idx := build(t, store.Facts{DataKeys: []store.DataKeyAccess{
		access("a.dsc", 1, "k", true, true),
	}})

	u, _ := idx.Usage("k")
	u.Readers[0] = "mutated"
	u.Accesses[0].Key = "mutated"

	again, _ := idx.Usage("k")
	assert.Equal(t, "a.dsc", again.Readers[0])
	assert.Equal(t, "k", again.Accesses[0].Key)

	keys := idx.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"k"}, idx.Keys())
}

// =============================================================================
// Events
// =============================================================================

func TestHandlers_GroupedByExactName(t *testing.T) {
	t.Parallel()
	idx := build(t, store.Facts{Events: []store.EventHandler{
		{File: "a.dsc", Line: 2, Trigger: store.TriggerOn, Event: "player joins"},
		{File: "a.dsc", Line: 9, Trigger: store.TriggerAfter, Event: "player quits"},
		{File: "b.dsc", Line: 1, Trigger: store.TriggerOn, Event: "player joins"},
		{File: "b.dsc", Line: 4, Trigger: store.TriggerOn, Event: "Player Joins"},
	}})

	assert.Equal(t, []string{"player joins", "player quits", "Player Joins"}, idx.EventNames())
	h := idx.Handlers("player joins")
	require.Len(t, h, 2)
	assert.Equal(t, "a.dsc", h[0].File)
	assert.Equal(t, "b.dsc", h[1].File)
	assert.Empty(t, idx.Handlers("nothing"))
	assert.Len(t, idx.Events(), 4)
}

// =============================================================================
// Call graph
// =============================================================================

func TestCallGraph_Bidirectional(t *testing.T) {
	t.Parallel()
	idx := build(t,
		store.Facts{Calls: []store.CallEdge{
			call("a.dsc", 1, "helper"),
			call("a.dsc", 2, "helper"),
			call("a.dsc", 3, "other"),
		}},
		store.Facts{Calls: []store.CallEdge{
			call("b.dsc", 1, "helper"),
		}},
	)

	assert.Equal(t, []string{"a.dsc", "b.dsc"}, idx.CallerFiles())
	assert.Equal(t, []string{"helper", "other"}, idx.CallTargets())
	assert.Equal(t, []string{"helper", "other"}, idx.Targets("a.dsc"))
	assert.Equal(t, []string{"a.dsc", "b.dsc"}, idx.Callers("helper"))
	assert.Equal(t, 3, idx.InboundCount("helper"))
	assert.Equal(t, 1, idx.InboundCount("other"))
	assert.Zero(t, idx.InboundCount("nobody"))
	assert.Equal(t, []string{"helper"}, idx.Targets("b.dsc"))
	assert.Nil(t, idx.Targets("c.dsc"))
	assert.Len(t, idx.Calls(), 4)
}

func TestDefinitions(t *testing.T) {
	t.Parallel()
	idx := build(t,
		store.Facts{Containers: []store.ScriptContainer{{File: "a.dsc", Line: 1, Name: "helper", Type: "task"}}},
		store.Facts{Containers: []store.ScriptContainer{{File: "b.dsc", Line: 5, Name: "helper", Type: "task"}}},
	)
	defs := idx.Definitions("helper")
	require.Len(t, defs, 2)
	assert.Equal(t, "a.dsc", defs[0].File)
	assert.Equal(t, "b.dsc", defs[1].File)
	assert.Empty(t, idx.Definitions("nope"))
}
