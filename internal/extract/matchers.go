package extract

import (
	"regexp"
	"strings"

	"github.com/jward/dscope/internal/store"
)

// line is the input every matcher sees: the right-trimmed source text plus
// its location and the truncated context snippet.
type line struct {
	file    string
	number  int
	text    string
	context string
}

// matcher inspects one line and appends any facts it recognizes to acc.
// Matchers are independent: each sees the same line regardless of what the
// others matched.
type matcher interface {
	match(l line, acc *store.Facts)
}

var eventPattern = regexp.MustCompile(`(?i)^(\s*)(on|after)\s+(.+):\s*$`)

// eventMatcher recognizes "<indent><on|after> <expression>:" headers.
type eventMatcher struct{}

func (eventMatcher) match(l line, acc *store.Facts) {
	m := eventPattern.FindStringSubmatch(l.text)
	if m == nil {
		return
	}
	acc.Events = append(acc.Events, store.EventHandler{
		File:    l.file,
		Line:    l.number,
		Trigger: store.TriggerKind(strings.ToLower(m[2])),
		Event:   strings.TrimSpace(m[3]),
		Indent:  len([]rune(m[1])),
	})
}

// keyMatcher recognizes one family of state-key access. build turns the two
// capture groups into a raw key and its scope.
type keyMatcher struct {
	name  string
	re    *regexp.Regexp
	kind  store.AccessKind
	build func(a, b string) (key string, scope store.Scope)
}

func (k keyMatcher) match(l line, acc *store.Facts) {
	for _, m := range k.re.FindAllStringSubmatch(l.text, -1) {
		key, scope := k.build(m[1], m[2])
		acc.DataKeys = append(acc.DataKeys, store.DataKeyAccess{
			File:    l.file,
			Line:    l.number,
			Key:     Normalize(key),
			Scope:   scope,
			Kind:    k.kind,
			Context: l.context,
			Mode:    InferMode(l.context),
		})
	}
}

func flagKey(scope, name string) (string, store.Scope) {
	s := strings.ToLower(scope)
	return s + ".flag." + name, store.Scope(s)
}

func yamlKey(id, key string) (string, store.Scope) {
	return "yaml." + id + "." + key, store.ScopeYAML
}

// callMatcher recognizes "- <keyword> <target>" invocations.
type callMatcher struct {
	re   *regexp.Regexp
	kind store.CallKind
}

func (c callMatcher) match(l line, acc *store.Facts) {
	for _, m := range c.re.FindAllStringSubmatch(l.text, -1) {
		acc.Calls = append(acc.Calls, store.CallEdge{
			File:    l.file,
			Line:    l.number,
			Kind:    c.kind,
			Target:  m[1],
			Context: l.context,
		})
	}
}

// defaultMatchers is the ordered matcher set applied to every line. The
// order fixes the order of facts emitted for a single line.
var defaultMatchers = []matcher{
	eventMatcher{},

	keyMatcher{
		name:  "flag-tag",
		re:    regexp.MustCompile(`(?i)<(player|server|npc)\.flag\[([^\]]+)\]>`),
		kind:  store.AccessFlag,
		build: flagKey,
	},
	keyMatcher{
		name:  "flag-command",
		re:    regexp.MustCompile(`(?i)-\s+flag\s+(player|server|npc)\s+([^\s:]+)`),
		kind:  store.AccessFlag,
		build: flagKey,
	},
	keyMatcher{
		name:  "adjust-flag",
		re:    regexp.MustCompile(`(?i)-\s+adjust\s+(player|server|npc)\s+flag:([^\s:]+)`),
		kind:  store.AccessFlag,
		build: flagKey,
	},
	keyMatcher{
		name:  "yaml-read",
		re:    regexp.MustCompile(`(?i)<yaml\[([^\]]+)\]\.read\[([^\]]+)\]>`),
		kind:  store.AccessYAML,
		build: yamlKey,
	},
	keyMatcher{
		name:  "yaml-set",
		re:    regexp.MustCompile(`(?i)-\s+yaml\s+set\s+([^\s:]+):(\S+)`),
		kind:  store.AccessYAML,
		build: yamlKey,
	},

	callMatcher{re: regexp.MustCompile(`(?i)-\s+run\s+(\S+)`), kind: store.CallRun},
	callMatcher{re: regexp.MustCompile(`(?i)-\s+inject\s+(\S+)`), kind: store.CallInject},
	callMatcher{re: regexp.MustCompile(`(?i)-\s+task\s+(\S+)`), kind: store.CallTask},
}

// InferMode guesses read/write intent from a context snippet by substring
// containment. A tag opener or "read" means read; "flag" or "set" means
// write. Words such as "reset" or "settings" also count as writes.
func InferMode(context string) store.Mode {
	lower := strings.ToLower(context)
	return store.Mode{
		Read:  strings.Contains(context, "<") || strings.Contains(lower, "read"),
		Write: strings.Contains(lower, "flag") || strings.Contains(lower, "set"),
	}
}
