package dscope

import (
	"github.com/jward/dscope/internal/store"
	"github.com/jward/dscope/internal/xref"
)

// Public type aliases for the internal record types returned by Engine and
// QueryBuilder.

type File = store.File
type Facts = store.Facts
type EventHandler = store.EventHandler
type DataKeyAccess = store.DataKeyAccess
type CallEdge = store.CallEdge
type ScriptContainer = store.ScriptContainer
type Note = store.Note
type Warning = store.Warning
type Mode = store.Mode
type Severity = store.Severity
type Counts = store.Counts

type Index = xref.Index
type KeyUsage = xref.KeyUsage
type Reach = xref.Reach
type ReachNode = xref.ReachNode
type ReachEdge = xref.ReachEdge
