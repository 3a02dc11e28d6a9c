package dscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jward/dscope/internal/diagnose"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeCorpus writes files (relative path -> content) under a fresh
// directory and returns it.
func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func sampleCorpus() map[string]string {
	return map[string]string{
		"game_loop.dsc": `game_loop:
    type: world
    events:
        on delta time secondly:
        - run mana_regen
        - flag server tick_count:++
        on player joins:
        - inject give_starting_skills
`,
		"skills/starting.dsc": `give_starting_skills:
    type: task
    script:
    - flag player skill_points:5
    - run mana_regen
`,
		"skills/mana.dsc": `mana_regen:
    type: task
    script:
    - if <player.flag[mana]> < 100:
      - flag player mana:+:1
`,
		"notes.txt": "not a script",
	}
}

// largeCorpus returns n files that each write the same keys and call each
// other, enough to trip every threshold rule.
func largeCorpus(n int) map[string]string {
	files := make(map[string]string, n)
	for i := range n {
		files[fmt.Sprintf("f%02d.dsc", i)] = fmt.Sprintf(`script_%02d:
    type: world
    events:
        after player clicks block:
        - flag server shared:%d
        - run hub
        - run f%02d.dsc
        - narrate "<server.flag[shared]> <player.flag[mana]>"
`, i, i, (i+1)%n)
	}
	return files
}

func encode(t *testing.T, a *Analysis, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, a.Encode(&buf, format))
	return buf.Bytes()
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_WithoutStore(t *testing.T) {
	t.Parallel()
	e, err := New("")
	require.NoError(t, err)
	assert.Nil(t, e.store)

	_, err = e.Query()
	assert.ErrorIs(t, err, ErrNoStore)
	assert.NoError(t, e.Close())
}

func TestNew_CreatesDatabaseDirectory(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "nested", ".dscope", "index.db")
	e, err := New(dbPath)
	require.NoError(t, err)
	defer e.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNew_RejectsInvalidRuleConfig(t *testing.T) {
	t.Parallel()
	cfg := diagnose.DefaultConfig()
	cfg.ExampleCap = 0
	_, err := New("", WithDiagnostics(cfg))
	assert.Error(t, err)
}

// =============================================================================
// Discovery
// =============================================================================

func TestDiscover_WalkFiltersAndSorts(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, map[string]string{
		"b.dsc":                   "",
		"a/z.dsc":                 "",
		"a/y.txt":                 "",
		".hidden/x.dsc":           "",
		"node_modules/pkg/m.dsc":  "",
		"vendor/v.dsc":            "",
		"__pycache__/cached.dsc":  "",
		"deep/er/still/found.dsc": "",
	})

	paths, err := walkListFiles(root, ".dsc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/z.dsc", "b.dsc", "deep/er/still/found.dsc"}, normalizePaths(paths))
}

func TestDiscover_DefaultExtension(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, map[string]string{"one.dsc": "", "two.yml": ""})
	paths, err := Discover(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"one.dsc"}, paths)
}

func TestDiscover_GitKeepsNonASCIINames(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := writeCorpus(t, map[string]string{
		"plain.dsc":          "",
		"héros.dsc":          "",
		"quêtes/début.dsc":   "",
		"with space/a b.dsc": "",
		"ignored/skip.dsc":   "",
		".gitignore":         "ignored/\n",
	})
	gitInit := exec.Command("git", "init", "-q")
	gitInit.Dir = root
	require.NoError(t, gitInit.Run())

	paths, err := gitListFiles(root, ".dsc")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"héros.dsc", "plain.dsc", "quêtes/début.dsc", "with space/a b.dsc"}, paths)

	paths, err = Discover(root, ".dsc")
	require.NoError(t, err)
	assert.Equal(t, []string{"héros.dsc", "plain.dsc", "quêtes/début.dsc", "with space/a b.dsc"}, paths)
}

func TestNormalizePaths_DedupesAndCleans(t *testing.T) {
	t.Parallel()
	got := normalizePaths([]string{"b.dsc", "./a.dsc", "b.dsc", "x/../c.dsc"})
	assert.Equal(t, []string{"a.dsc", "b.dsc", "c.dsc"}, got)
}

// =============================================================================
// Analysis pass
// =============================================================================

func TestAnalyze_ExtractsAcrossFiles(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, a.FileCount)
	require.Len(t, a.Events, 2)
	assert.Equal(t, "game_loop.dsc", a.Events[0].File)
	assert.Equal(t, "delta time secondly", a.Events[0].Event)

	require.Len(t, a.Calls, 3)
	assert.Equal(t, "skills/starting.dsc", a.Calls[2].File)
	assert.Equal(t, "mana_regen", a.Calls[2].Target)

	// skills/mana.dsc sorts before skills/starting.dsc.
	assert.Equal(t, "player.flag.mana", a.DataKeys[1].Key)
	assert.Len(t, a.Containers, 3)
	assert.Empty(t, a.Skipped)

	assert.Equal(t, 3, a.Summary.Files)
	assert.Equal(t, 3, a.Summary.UniqueKeys)
	require.NotEmpty(t, a.Summary.TopTargets)
	assert.Equal(t, Tally{Name: "mana_regen", Count: 2}, a.Summary.TopTargets[0])
	assert.Equal(t, 1, a.Summary.Warnings["high"])
}

func TestAnalyze_EmptyCorpus(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, map[string]string{"readme.md": "# nothing"})
	e := newTestEngine(t)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, a.FileCount)
	require.Len(t, a.Warnings, 1)
	assert.Equal(t, diagnose.KindManualReview, a.Warnings[0].Kind)

	out := encode(t, a, FormatJSON)
	assert.Contains(t, string(out), `"events": []`)
	assert.Contains(t, string(out), `"skipped": []`)
}

func TestAnalyze_TwoRunsByteIdentical(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, largeCorpus(12))

	run := func() []byte {
		e, err := New("")
		require.NoError(t, err)
		a, err := e.Analyze(context.Background(), root)
		require.NoError(t, err)
		return encode(t, a, FormatJSON)
	}
	assert.Equal(t, run(), run())
}

func TestAnalyze_ParallelMatchesSerial(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, largeCorpus(30))

	serial, err := New("")
	require.NoError(t, err)
	parallel, err := New("", WithParallel(true), WithJobs(4))
	require.NoError(t, err)

	as, err := serial.Analyze(context.Background(), root)
	require.NoError(t, err)
	ap, err := parallel.Analyze(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, encode(t, as, FormatJSON), encode(t, ap, FormatJSON))
	assert.Equal(t, encode(t, as, FormatMsgpack), encode(t, ap, FormatMsgpack))
}

func TestAnalyze_TripsThresholdRules(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, largeCorpus(25))
	e, err := New("")
	require.NoError(t, err)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	kinds := warningKinds(a.Warnings)
	assert.Contains(t, kinds, diagnose.KindDuplicateKeys)
	assert.Contains(t, kinds, diagnose.KindHeavyDependencies)
	assert.Contains(t, kinds, diagnose.KindConcurrentWrites)
	assert.NotContains(t, kinds, diagnose.KindPerformanceCritical)
}

func TestAnalyze_UnreadableFileIsSkipped(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)

	a, err := e.AnalyzeFiles(context.Background(), root,
		[]string{"game_loop.dsc", "missing.dsc", "skills/mana.dsc"})
	require.NoError(t, err)

	assert.Equal(t, 2, a.FileCount)
	require.Len(t, a.Skipped, 1)
	assert.Equal(t, "missing.dsc", a.Skipped[0].Path)
	assert.NotEmpty(t, a.Skipped[0].Error)
	assert.Len(t, a.Events, 2)
}

func TestAnalyze_CanceledContext(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Analyze(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Store reuse
// =============================================================================

func TestAnalyze_ReusedFactsMatchFresh(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Analyze(ctx, root)
	require.NoError(t, err)

	paths, err := Discover(root, DefaultExtension)
	require.NoError(t, err)
	results, err := e.ExtractFiles(ctx, root, paths)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Reused, r.Path)
	}

	second, err := e.Analyze(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, encode(t, first, FormatJSON), encode(t, second, FormatJSON))
}

func TestAnalyze_ChangedFileIsReextracted(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Analyze(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "skills", "mana.dsc"),
		[]byte("mana_regen:\n    type: task\n    script:\n    - run hub\n"), 0o644))

	results, err := e.ExtractFiles(ctx, root, []string{"game_loop.dsc", "skills/mana.dsc"})
	require.NoError(t, err)
	assert.True(t, results[0].Reused)
	assert.False(t, results[1].Reused)

	a, err := e.Analyze(ctx, root)
	require.NoError(t, err)
	fresh, err := New("")
	require.NoError(t, err)
	b, err := fresh.Analyze(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, encode(t, b, FormatJSON), encode(t, a, FormatJSON))
}

func TestAnalyze_SettingsChangeDisablesReuse(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	dbPath := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	e1, err := New(dbPath)
	require.NoError(t, err)
	_, err = e1.Analyze(ctx, root)
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := New(dbPath, WithContextLength(10))
	require.NoError(t, err)
	defer e2.Close()
	results, err := e2.ExtractFiles(ctx, root, []string{"game_loop.dsc"})
	require.NoError(t, err)
	assert.False(t, results[0].Reused)
}

func TestAnalyze_PrunesDeletedFiles(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Analyze(ctx, root)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "skills", "starting.dsc")))
	_, err = e.Analyze(ctx, root)
	require.NoError(t, err)

	q, err := e.Query()
	require.NoError(t, err)
	files, err := q.Files()
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"game_loop.dsc", "skills/mana.dsc"}, paths)
}

// =============================================================================
// Rule scripts
// =============================================================================

func TestAnalyze_RuleScriptsRunAfterBuiltins(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e := newTestEngine(t, WithRulesDir(filepath.Join("testdata", "rules")))

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	last := a.Warnings[len(a.Warnings)-1]
	assert.Equal(t, "uncalled_scripts", last.Kind)
	assert.Equal(t, []string{"game_loop"}, last.Examples)
}

func TestAnalyze_RulesFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"count.risor": {Data: []byte(`warn({"message": "events: " + string(len(events()))})`)},
	}
	root := writeCorpus(t, sampleCorpus())
	e, err := New("", WithRulesFS(fsys))
	require.NoError(t, err)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	last := a.Warnings[len(a.Warnings)-1]
	assert.Equal(t, "count", last.Kind)
	assert.Equal(t, "events: 2", last.Message)
}

func TestAnalyze_ScriptRuleExamplesCapped(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"many.risor": {Data: []byte(`warn({"message": "m", "examples": ["1", "2", "3", "4", "5", "6", "7", "8"]})`)},
	}
	root := writeCorpus(t, sampleCorpus())
	e, err := New("", WithRulesFS(fsys))
	require.NoError(t, err)

	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)
	last := a.Warnings[len(a.Warnings)-1]
	assert.Equal(t, "many", last.Kind)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, last.Examples)
}

// =============================================================================
// Output
// =============================================================================

func TestEncode_MsgpackUsesJSONFieldNames(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e, err := New("")
	require.NoError(t, err)
	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(encode(t, a, FormatMsgpack), &decoded))
	for _, key := range []string{"events", "dataKeys", "calls", "containers", "warnings", "fileCount", "summary"} {
		assert.Contains(t, decoded, key)
	}
	events, ok := decoded["events"].([]any)
	require.True(t, ok)
	first, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "on", first["type"])
	assert.Equal(t, "delta time secondly", first["event"])
}

func TestEncode_UnknownFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Error(t, newAnalysis().Encode(&buf, "xml"))
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()
	root := writeCorpus(t, sampleCorpus())
	e, err := New("")
	require.NoError(t, err)
	a, err := e.Analyze(context.Background(), root)
	require.NoError(t, err)

	out := t.TempDir()
	analysisPath := filepath.Join(out, "docs", "analysis.json")
	warningsPath := filepath.Join(out, "docs", "warnings.json")
	require.NoError(t, a.WriteFile(analysisPath, FormatJSON))
	require.NoError(t, a.WriteWarnings(warningsPath))

	data, err := os.ReadFile(analysisPath)
	require.NoError(t, err)
	var decoded Analysis
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, a.FileCount, decoded.FileCount)
	assert.Contains(t, string(data), `<player.flag[mana]> < 100:`)

	data, err = os.ReadFile(warningsPath)
	require.NoError(t, err)
	var ws []Warning
	require.NoError(t, json.Unmarshal(data, &ws))
	assert.Equal(t, a.Warnings, ws)
}
