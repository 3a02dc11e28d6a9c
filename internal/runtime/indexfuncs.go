package runtime

import (
	"context"

	"github.com/risor-io/risor/object"

	"github.com/jward/dscope/internal/diagnose"
	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// Read-only bridge functions over a frozen index. Facts cross into Risor as
// maps keyed by their serialized field names.

func indexGlobals(idx *xref.Index, cfg diagnose.Config) map[string]any {
	return map[string]any{
		"events":        makeListFn("events", func() object.Object { return eventsToList(idx.Events()) }),
		"data_keys":     makeListFn("data_keys", func() object.Object { return dataKeysToList(idx.DataKeys()) }),
		"calls":         makeListFn("calls", func() object.Object { return callsToList(idx.Calls()) }),
		"containers":    makeListFn("containers", func() object.Object { return containersToList(idx.Containers()) }),
		"keys":          makeListFn("keys", func() object.Object { return stringsToList(idx.Keys()) }),
		"key_usage":     makeKeyUsageFn(idx),
		"handlers":      makeLookupFn("handlers", func(s string) object.Object { return eventsToList(idx.Handlers(s)) }),
		"callers":       makeLookupFn("callers", func(s string) object.Object { return stringsToList(idx.Callers(s)) }),
		"targets":       makeLookupFn("targets", func(s string) object.Object { return stringsToList(idx.Targets(s)) }),
		"definitions":   makeLookupFn("definitions", func(s string) object.Object { return containersToList(idx.Definitions(s)) }),
		"inbound_count": makeLookupFn("inbound_count", func(s string) object.Object { return object.NewInt(int64(idx.InboundCount(s))) }),
		"config":        makeListFn("config", func() object.Object { return configToMap(cfg) }),
	}
}

// makeListFn wraps a zero-argument accessor.
func makeListFn(name string, fn func() object.Object) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError(name, 0, len(args))
		}
		return fn()
	})
}

// makeLookupFn wraps a one-string-argument accessor.
func makeLookupFn(name string, fn func(string) object.Object) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return fn(s)
	})
}

// makeKeyUsageFn creates "key_usage".
//
// key_usage(key) → {key, readers, writers, accesses} or nil
func makeKeyUsageFn(idx *xref.Index) *object.Builtin {
	return object.NewBuiltin("key_usage", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("key_usage", 1, len(args))
		}
		key, err := toString(args[0])
		if err != nil {
			return object.Errorf("key_usage: %v", err)
		}
		u, ok := idx.Usage(key)
		if !ok {
			return object.Nil
		}
		return object.NewMap(map[string]object.Object{
			"key":      object.NewString(u.Key),
			"readers":  stringsToList(u.Readers),
			"writers":  stringsToList(u.Writers),
			"accesses": dataKeysToList(u.Accesses),
		})
	})
}

func stringsToList(items []string) object.Object {
	out := make([]object.Object, 0, len(items))
	for _, s := range items {
		out = append(out, object.NewString(s))
	}
	return object.NewList(out)
}

func eventsToList(events []store.EventHandler) object.Object {
	out := make([]object.Object, 0, len(events))
	for _, e := range events {
		out = append(out, object.NewMap(map[string]object.Object{
			"file":   object.NewString(e.File),
			"line":   object.NewInt(int64(e.Line)),
			"type":   object.NewString(string(e.Trigger)),
			"event":  object.NewString(e.Event),
			"indent": object.NewInt(int64(e.Indent)),
		}))
	}
	return object.NewList(out)
}

func dataKeysToList(keys []store.DataKeyAccess) object.Object {
	out := make([]object.Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, object.NewMap(map[string]object.Object{
			"file":    object.NewString(k.File),
			"line":    object.NewInt(int64(k.Line)),
			"key":     object.NewString(k.Key),
			"scope":   object.NewString(string(k.Scope)),
			"type":    object.NewString(string(k.Kind)),
			"context": object.NewString(k.Context),
			"mode": object.NewMap(map[string]object.Object{
				"read":  object.NewBool(k.Mode.Read),
				"write": object.NewBool(k.Mode.Write),
			}),
		}))
	}
	return object.NewList(out)
}

func callsToList(calls []store.CallEdge) object.Object {
	out := make([]object.Object, 0, len(calls))
	for _, c := range calls {
		out = append(out, object.NewMap(map[string]object.Object{
			"file":    object.NewString(c.File),
			"line":    object.NewInt(int64(c.Line)),
			"type":    object.NewString(string(c.Kind)),
			"target":  object.NewString(c.Target),
			"context": object.NewString(c.Context),
		}))
	}
	return object.NewList(out)
}

func containersToList(cs []store.ScriptContainer) object.Object {
	out := make([]object.Object, 0, len(cs))
	for _, c := range cs {
		out = append(out, object.NewMap(map[string]object.Object{
			"file": object.NewString(c.File),
			"line": object.NewInt(int64(c.Line)),
			"name": object.NewString(c.Name),
			"type": object.NewString(c.Type),
		}))
	}
	return object.NewList(out)
}

func configToMap(cfg diagnose.Config) object.Object {
	return object.NewMap(map[string]object.Object{
		"namespace_threshold": object.NewInt(int64(cfg.NamespaceThreshold)),
		"coupling_threshold":  object.NewInt(int64(cfg.CouplingThreshold)),
		"writer_threshold":    object.NewInt(int64(cfg.WriterThreshold)),
		"hot_file":            object.NewString(cfg.HotFile),
		"hot_triggers":        stringsToList(cfg.HotTriggers),
		"example_cap":         object.NewInt(int64(cfg.ExampleCap)),
	})
}
