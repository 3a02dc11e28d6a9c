package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/dscope/internal/diagnose"
	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// ScriptRule is a diagnose.Rule backed by one Risor script.
type ScriptRule struct {
	rt   *Runtime
	path string
	name string
	cfg  diagnose.Config
}

var _ diagnose.Rule = (*ScriptRule)(nil)

// Rules returns one ScriptRule per script in the rules source, in file-name
// order. cfg is what the scripts see through config().
func (r *Runtime) Rules(cfg diagnose.Config) ([]diagnose.Rule, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return nil, err
	}
	rules := make([]diagnose.Rule, 0, len(scripts))
	for _, s := range scripts {
		rules = append(rules, &ScriptRule{
			rt:   r,
			path: s,
			name: strings.TrimSuffix(s, scriptExt),
			cfg:  cfg,
		})
	}
	return rules, nil
}

// Name is the script file name without its extension.
func (s *ScriptRule) Name() string { return s.name }

// Check runs the script against idx. The warning is whatever the script
// passed to warn(), or nil if it never called it.
func (s *ScriptRule) Check(ctx context.Context, idx *xref.Index) (*store.Warning, error) {
	var emitted *store.Warning
	globals := indexGlobals(idx, s.cfg)
	globals["warn"] = makeWarnFn(s.name, &emitted)

	if err := s.rt.RunScript(ctx, s.path, globals); err != nil {
		return nil, err
	}
	return emitted, nil
}

// makeWarnFn creates "warn". A second call in the same run is an error.
//
// warn({type, severity, message, count, examples, reason}) → nil
//
// type defaults to the rule name and severity to "medium". message is
// required.
func makeWarnFn(rule string, out **store.Warning) *object.Builtin {
	return object.NewBuiltin("warn", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("warn", 1, len(args))
		}
		if *out != nil {
			return object.Errorf("warn: %s already emitted a warning", rule)
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("warn: %v", err)
		}

		w, err := warningFromMap(rule, m)
		if err != nil {
			return object.Errorf("warn: %v", err)
		}
		*out = w
		return object.Nil
	})
}

func warningFromMap(rule string, m map[string]object.Object) (*store.Warning, error) {
	w := &store.Warning{
		Kind:     getStringDefault(m, "type", rule),
		Severity: store.Severity(getStringDefault(m, "severity", string(store.SeverityMedium))),
		Message:  getString(m, "message"),
		Count:    getInt(m, "count"),
		Reason:   getString(m, "reason"),
	}
	switch w.Severity {
	case store.SeverityHigh, store.SeverityMedium, store.SeverityLow:
	default:
		return nil, fmt.Errorf("unknown severity %q", w.Severity)
	}
	if w.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	examples, err := getStringList(m, "examples")
	if err != nil {
		return nil, err
	}
	w.Examples = examples
	return w, nil
}

// --- Risor value helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return int(i.Value())
	}
	if f, ok := v.(*object.Float); ok {
		return int(f.Value())
	}
	return 0
}

func getStringList(m map[string]object.Object, key string) ([]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*object.List)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %s", key, v.Type())
	}
	var out []string
	for _, item := range l.Value() {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
