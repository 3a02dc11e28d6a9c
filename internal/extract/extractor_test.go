package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/dscope/internal/store"
)

// =============================================================================
// ExtractLine
// =============================================================================

func TestExtractLine_FlagTag(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 3, "    - narrate <player.flag[mana]>")
	require.Len(t, f.DataKeys, 1)
	k := f.DataKeys[0]
	assert.Equal(t, "a.dsc", k.File)
	assert.Equal(t, 3, k.Line)
	assert.Equal(t, "player.flag.mana", k.Key)
	assert.Equal(t, store.ScopePlayer, k.Scope)
	assert.Equal(t, store.AccessFlag, k.Kind)
	assert.Equal(t, "- narrate <player.flag[mana]>", k.Context)
	assert.True(t, k.Mode.Read)
}

func TestExtractLine_FlagCommand(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 1, "- flag server event_active:true")
	require.Len(t, f.DataKeys, 1)
	assert.Equal(t, "server.flag.event_active", f.DataKeys[0].Key)
	assert.Equal(t, store.ScopeServer, f.DataKeys[0].Scope)
	assert.True(t, f.DataKeys[0].Mode.Write)
	assert.False(t, f.DataKeys[0].Mode.Read)
}

func TestExtractLine_AdjustFlag(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 1, "- adjust npc flag:mood")
	require.Len(t, f.DataKeys, 1)
	assert.Equal(t, "npc.flag.mood", f.DataKeys[0].Key)
	assert.Equal(t, store.ScopeNPC, f.DataKeys[0].Scope)
}

func TestExtractLine_YAML(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 1, "- narrate <yaml[stats].read[kills]>")
	require.Len(t, f.DataKeys, 1)
	assert.Equal(t, "yaml.stats.kills", f.DataKeys[0].Key)
	assert.Equal(t, store.ScopeYAML, f.DataKeys[0].Scope)
	assert.Equal(t, store.AccessYAML, f.DataKeys[0].Kind)

	f = x.ExtractLine("a.dsc", 2, "- yaml set stats:kills:+:1")
	require.Len(t, f.DataKeys, 1)
	assert.Equal(t, "yaml.stats.kills:+:1", f.DataKeys[0].Key)
}

func TestExtractLine_MultipleMatchesOnOneLine(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 1, "- flag player total:<player.flag[a]><server.flag[b]>")
	require.Len(t, f.DataKeys, 3)
	// tag matcher runs before the command matcher
	assert.Equal(t, "player.flag.a", f.DataKeys[0].Key)
	assert.Equal(t, "server.flag.b", f.DataKeys[1].Key)
	assert.Equal(t, "player.flag.total", f.DataKeys[2].Key)
}

func TestExtractLine_Event(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("loop.dsc", 4, "        on delta time secondly:")
	require.Len(t, f.Events, 1)
	e := f.Events[0]
	assert.Equal(t, store.TriggerOn, e.Trigger)
	assert.Equal(t, "delta time secondly", e.Event)
	assert.Equal(t, 8, e.Indent)
	assert.Equal(t, 4, e.Line)

	f = x.ExtractLine("loop.dsc", 5, "    After player joins:  ")
	require.Len(t, f.Events, 1)
	assert.Equal(t, store.TriggerAfter, f.Events[0].Trigger)
	assert.Equal(t, "player joins", f.Events[0].Event)
}

func TestExtractLine_EventNeedsTrailingColon(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 1, "on player joins")
	assert.Empty(t, f.Events)
}

func TestExtractLine_Calls(t *testing.T) {
	t.Parallel()
	x := New()

	f := x.ExtractLine("a.dsc", 7, "- run give_starting_skills")
	require.Len(t, f.Calls, 1)
	assert.Equal(t, store.CallRun, f.Calls[0].Kind)
	assert.Equal(t, "give_starting_skills", f.Calls[0].Target)
	assert.Equal(t, 7, f.Calls[0].Line)

	f = x.ExtractLine("a.dsc", 8, "- inject helper_script")
	require.Len(t, f.Calls, 1)
	assert.Equal(t, store.CallInject, f.Calls[0].Kind)

	f = x.ExtractLine("a.dsc", 9, "- task other_task")
	require.Len(t, f.Calls, 1)
	assert.Equal(t, store.CallTask, f.Calls[0].Kind)
}

func TestExtractLine_CommentsAndBlankLines(t *testing.T) {
	t.Parallel()
	x := New()

	assert.True(t, x.ExtractLine("a.dsc", 1, "").Empty())
	assert.True(t, x.ExtractLine("a.dsc", 2, "    \t ").Empty())
	assert.True(t, x.ExtractLine("a.dsc", 3, "  # - run hidden <player.flag[x]>").Empty())
}

func TestExtractLine_ContextTruncated(t *testing.T) {
	t.Parallel()
	x := New(WithContextLength(10))

	f := x.ExtractLine("a.dsc", 1, "   - run something_long_enough_to_cut")
	require.Len(t, f.Calls, 1)
	assert.Equal(t, "- run some", f.Calls[0].Context)

	long := "- run t " + strings.Repeat("é", 200)
	f = New().ExtractLine("a.dsc", 1, long)
	require.Len(t, f.Calls, 1)
	assert.Equal(t, DefaultContextLength, len([]rune(f.Calls[0].Context)))
}

// =============================================================================
// ExtractFile
// =============================================================================

const sampleScript = `# starter kit
starter_world:
    type: world
    events:
        on player joins:
        - flag player joined:true
        - run give_starting_skills
        after player quits:
        - narrate <player.flag[joined]>

give_starting_skills:
    type: task
    script:
    - yaml set skills:<player.uuid>:1
`

func TestExtractFile_LineNumbersAndOrder(t *testing.T) {
	t.Parallel()
	x := New()

	f, err := x.ExtractFile(context.Background(), "scripts/start.dsc", []byte(sampleScript))
	require.NoError(t, err)

	require.Len(t, f.Events, 2)
	assert.Equal(t, 5, f.Events[0].Line)
	assert.Equal(t, "player joins", f.Events[0].Event)
	assert.Equal(t, 8, f.Events[1].Line)

	require.Len(t, f.Calls, 1)
	assert.Equal(t, 7, f.Calls[0].Line)

	require.Len(t, f.DataKeys, 3)
	assert.Equal(t, "player.flag.joined", f.DataKeys[0].Key)
	assert.Equal(t, 6, f.DataKeys[0].Line)
	assert.Equal(t, "player.flag.joined", f.DataKeys[1].Key)
	assert.Equal(t, 9, f.DataKeys[1].Line)
	assert.Equal(t, "yaml.skills.<player.uuid>:1", f.DataKeys[2].Key)

	assert.Empty(t, f.Notes)
}

func TestExtractFile_Containers(t *testing.T) {
	t.Parallel()

	f, err := New().ExtractFile(context.Background(), "start.dsc", []byte(sampleScript))
	require.NoError(t, err)
	require.Len(t, f.Containers, 2)
	assert.Equal(t, store.ScriptContainer{File: "start.dsc", Line: 2, Name: "starter_world", Type: "world"}, f.Containers[0])
	assert.Equal(t, store.ScriptContainer{File: "start.dsc", Line: 11, Name: "give_starting_skills", Type: "task"}, f.Containers[1])

	f, err = New(WithContainers(false)).ExtractFile(context.Background(), "start.dsc", []byte(sampleScript))
	require.NoError(t, err)
	assert.Empty(t, f.Containers)
}

func TestExtractFile_ByteOrderMark(t *testing.T) {
	t.Parallel()

	src := "\xef\xbb\xbfon server start:\n"
	f, err := New(WithContainers(false)).ExtractFile(context.Background(), "a.dsc", []byte(src))
	require.NoError(t, err)
	require.Len(t, f.Events, 1)
	assert.Equal(t, 0, f.Events[0].Indent)
	assert.Equal(t, "server start", f.Events[0].Event)
}

func TestExtractFile_InvalidUTF8IsNotedAndScanned(t *testing.T) {
	t.Parallel()

	src := "- run ok_target\n- run bad\xff\xfe_target\n"
	f, err := New(WithContainers(false)).ExtractFile(context.Background(), "a.dsc", []byte(src))
	require.NoError(t, err)

	require.Len(t, f.Calls, 2)
	assert.Equal(t, "ok_target", f.Calls[0].Target)
	assert.Equal(t, 2, f.Calls[1].Line)
	assert.Contains(t, f.Calls[1].Target, "�")

	require.Len(t, f.Notes, 1)
	assert.Equal(t, 2, f.Notes[0].Line)
}

func TestExtractFile_CRLF(t *testing.T) {
	t.Parallel()

	src := "on player joins:\r\n- run greet\r\n"
	f, err := New(WithContainers(false)).ExtractFile(context.Background(), "a.dsc", []byte(src))
	require.NoError(t, err)
	require.Len(t, f.Events, 1)
	assert.Equal(t, "player joins", f.Events[0].Event)
	require.Len(t, f.Calls, 1)
	assert.Equal(t, "greet", f.Calls[0].Target)
}

func TestExtractFile_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ExtractFile(ctx, "a.dsc", []byte(sampleScript))
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractFile_Empty(t *testing.T) {
	t.Parallel()

	f, err := New().ExtractFile(context.Background(), "a.dsc", nil)
	require.NoError(t, err)
	assert.True(t, f.Empty())
}
