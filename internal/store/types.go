package store

import "time"

// File is one scanned script file. Path is relative to the corpus root and
// always uses forward slashes.
type File struct {
	ID          int64
	Path        string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

// Fact kinds. The string values are part of the serialized output contract.

type TriggerKind string

const (
	TriggerOn    TriggerKind = "on"
	TriggerAfter TriggerKind = "after"
)

type Scope string

const (
	ScopePlayer Scope = "player"
	ScopeServer Scope = "server"
	ScopeNPC    Scope = "npc"
	ScopeYAML   Scope = "yaml"
)

type AccessKind string

const (
	AccessFlag AccessKind = "flag"
	AccessYAML AccessKind = "yaml"
)

type CallKind string

const (
	CallRun    CallKind = "run"
	CallInject CallKind = "inject"
	CallTask   CallKind = "task"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// EventHandler is a trigger registration such as "on player joins:".
type EventHandler struct {
	File    string      `json:"file"`
	Line    int         `json:"line"`
	Trigger TriggerKind `json:"type"`
	Event   string      `json:"event"`
	Indent  int         `json:"indent"`
}

// Mode is the inferred access mode of a DataKeyAccess. It is a heuristic:
// one access may be both a read and a write, or neither.
type Mode struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// DataKeyAccess is one lexical reference to a persistent state slot.
type DataKeyAccess struct {
	File    string     `json:"file"`
	Line    int        `json:"line"`
	Key     string     `json:"key"`
	Scope   Scope      `json:"scope"`
	Kind    AccessKind `json:"type"`
	Context string     `json:"context"`
	Mode    Mode       `json:"mode"`
}

// CallEdge is a run/inject/task reference from a file to a script name.
// Target is kept verbatim.
type CallEdge struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Kind    CallKind `json:"type"`
	Target  string   `json:"target"`
	Context string   `json:"context"`
}

// ScriptContainer is a top-level script declaration ("name:" with a
// "type:" entry beneath it).
type ScriptContainer struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Note records a recoverable problem met while reading a file.
type Note struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Warning is one diagnostic finding.
type Warning struct {
	Kind     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Count    int      `json:"count,omitempty"`
	Examples []string `json:"examples,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Facts is everything extracted from a single file, in line order.
type Facts struct {
	Events     []EventHandler
	DataKeys   []DataKeyAccess
	Calls      []CallEdge
	Containers []ScriptContainer
	Notes      []Note
}

// Empty reports whether no fact of any kind was recorded.
func (f Facts) Empty() bool {
	return len(f.Events) == 0 && len(f.DataKeys) == 0 && len(f.Calls) == 0 &&
		len(f.Containers) == 0 && len(f.Notes) == 0
}
