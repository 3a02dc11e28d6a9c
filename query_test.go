package dscope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// analyzedQuery runs a pass over the sample corpus and returns a query
// builder over the resulting store.
func analyzedQuery(t *testing.T) *QueryBuilder {
	t.Helper()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)
	_, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	q, err := e.Query()
	require.NoError(t, err)
	return q
}

func TestQuery_Events(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	events, err := q.Events("player joins")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "game_loop.dsc", events[0].File)
	assert.Equal(t, 7, events[0].Line)

	events, err = q.Events("player quits")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQuery_KeyNormalizesInput(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	usage, err := q.Key("<player.flag.mana>")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, "player.flag.mana", usage.Key)
	assert.Len(t, usage.Accesses, 2)
	assert.Equal(t, []string{"skills/mana.dsc"}, usage.Writers)
	assert.Equal(t, []string{"skills/mana.dsc"}, usage.Readers)

	usage, err = q.Key("server.flag.unknown")
	require.NoError(t, err)
	assert.Nil(t, usage)
}

func TestQuery_CallersAndCallees(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	callers, err := q.Callers("mana_regen")
	require.NoError(t, err)
	require.Len(t, callers, 2)
	assert.Equal(t, "game_loop.dsc", callers[0].File)
	assert.Equal(t, "skills/starting.dsc", callers[1].File)

	callees, err := q.Callees("game_loop.dsc")
	require.NoError(t, err)
	require.Len(t, callees, 2)
	assert.Equal(t, "mana_regen", callees[0].Target)
	assert.Equal(t, "give_starting_skills", callees[1].Target)

	callees, err = q.Callees("skills/mana.dsc")
	require.NoError(t, err)
	assert.Empty(t, callees)

	_, err = q.Callees("skills/absent.dsc")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestQuery_Definitions(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	defs, err := q.Definitions("give_starting_skills")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "skills/starting.dsc", defs[0].File)
	assert.Equal(t, "task", defs[0].Type)
}

func TestQuery_WarningsAndSummary(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	ws, err := q.Warnings()
	require.NoError(t, err)
	assert.Equal(t, []string{"performance_critical", "manual_review_needed"}, warningKinds(ws))

	c, err := q.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, c.Files)
	assert.Equal(t, 2, c.Events)
	assert.Equal(t, 3, c.Calls)
	assert.Equal(t, 3, c.Containers)
	assert.Equal(t, 2, c.Warnings)
}

func TestQuery_IndexMatchesAnalysis(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)
	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	q, err := e.Query()
	require.NoError(t, err)

	idx, err := q.Index()
	require.NoError(t, err)
	assert.Equal(t, a.Events, idx.Events())
	assert.Equal(t, a.DataKeys, idx.DataKeys())
	assert.Equal(t, a.Calls, idx.Calls())
	assert.Equal(t, a.Containers, idx.Containers())
}

func TestQuery_Reach(t *testing.T) {
	t.Parallel()
	q := analyzedQuery(t)

	// game_loop.dsc calls mana_regen directly, so both containers sit at depth 1.
	reach, err := q.Reach("mana_regen", 5)
	require.NoError(t, err)
	names := make([]string, 0, len(reach.Nodes))
	for _, n := range reach.Nodes {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"mana_regen", "game_loop", "give_starting_skills"}, names)
	assert.Equal(t, 1, reach.Depth)

	_, err = q.Reach("mana_regen", -1)
	assert.Error(t, err)
}
