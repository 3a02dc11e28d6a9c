package main

import "github.com/jward/dscope"

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIAnalyzeResult reports what an analyze run produced.
type CLIAnalyzeResult struct {
	Root         string           `json:"root"`
	FileCount    int              `json:"file_count"`
	Skipped      int              `json:"skipped"`
	Notes        int              `json:"notes"`
	Warnings     []dscope.Warning `json:"warnings"`
	Summary      dscope.Summary   `json:"summary"`
	Analysis     string           `json:"analysis,omitempty"`
	WarningsFile string           `json:"warnings_file,omitempty"`
	Database     string           `json:"database,omitempty"`
}

// CLIKeyUsage is a JSON-friendly key usage aggregate.
type CLIKeyUsage struct {
	Key      string                 `json:"key"`
	Readers  []string               `json:"readers"`
	Writers  []string               `json:"writers"`
	Accesses []dscope.DataKeyAccess `json:"accesses"`
}

// CLIReach is a JSON-friendly transitive caller walk.
type CLIReach struct {
	Root     string         `json:"root"`
	Nodes    []CLIReachNode `json:"nodes"`
	Edges    []CLIReachEdge `json:"edges"`
	MaxDepth int            `json:"max_depth"`
}

// CLIReachNode is a script reached by the walk.
type CLIReachNode struct {
	Name  string   `json:"name"`
	Depth int      `json:"depth"`
	Files []string `json:"files"`
}

// CLIReachEdge is one caller-file to target hop.
type CLIReachEdge struct {
	File   string   `json:"file"`
	Target string   `json:"target"`
	Via    []string `json:"via,omitempty"`
}

func keyUsageToCLI(u *dscope.KeyUsage) CLIKeyUsage {
	return CLIKeyUsage{
		Key:      u.Key,
		Readers:  nonNil(u.Readers),
		Writers:  nonNil(u.Writers),
		Accesses: nonNil(u.Accesses),
	}
}

func reachToCLI(r *dscope.Reach) CLIReach {
	out := CLIReach{
		Root:     r.Root,
		Nodes:    make([]CLIReachNode, 0, len(r.Nodes)),
		Edges:    make([]CLIReachEdge, 0, len(r.Edges)),
		MaxDepth: r.Depth,
	}
	for _, n := range r.Nodes {
		out.Nodes = append(out.Nodes, CLIReachNode{Name: n.Name, Depth: n.Depth, Files: nonNil(n.Files)})
	}
	for _, e := range r.Edges {
		out.Edges = append(out.Edges, CLIReachEdge{File: e.File, Target: e.Target, Via: e.Via})
	}
	return out
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
