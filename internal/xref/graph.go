package xref

import (
	"fmt"
	"slices"
)

// MaxReachDepth caps TransitiveCallers.
const MaxReachDepth = 100

// ReachNode is one script reached by a TransitiveCallers walk. Depth 0 is the
// root target itself.
type ReachNode struct {
	Name  string
	Depth int
	Files []string // files that call Name
}

// ReachEdge is one caller-file to target hop in the walk. Via names the
// container defined in File that was reached through this hop, when known.
type ReachEdge struct {
	File   string
	Target string
	Via    []string
}

// Reach is the result of a transitive caller walk.
type Reach struct {
	Root  string
	Nodes []ReachNode
	Edges []ReachEdge
	Depth int // deepest level actually reached
}

// TransitiveCallers walks from target to the files that call it, then to the
// containers those files define, then to their callers, breadth-first.
//
// maxDepth of 0 returns only the root node. Negative returns an error.
// Values above MaxReachDepth are capped.
func (idx *Index) TransitiveCallers(target string, maxDepth int) (*Reach, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("transitive callers: maxDepth must be non-negative, got %d", maxDepth)
	}
	if maxDepth > MaxReachDepth {
		maxDepth = MaxReachDepth
	}

	result := &Reach{
		Root:  target,
		Nodes: []ReachNode{{Name: target, Depth: 0, Files: idx.Callers(target)}},
		Edges: []ReachEdge{},
	}
	if maxDepth == 0 {
		return result, nil
	}

	definedIn := idx.containersByFile()

	visited := map[string]int{target: 0}
	type bfsEntry struct {
		name  string
		depth int
	}
	queue := []bfsEntry{{name: target, depth: 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		callers := idx.Callers(current.name)
		if current.depth >= maxDepth {
			continue
		}

		for _, file := range callers {
			via := definedIn[file]
			result.Edges = append(result.Edges, ReachEdge{
				File:   file,
				Target: current.name,
				Via:    slices.Clone(via),
			})
			for _, name := range via {
				if _, seen := visited[name]; seen {
					continue
				}
				depth := current.depth + 1
				visited[name] = depth
				if depth > result.Depth {
					result.Depth = depth
				}
				result.Nodes = append(result.Nodes, ReachNode{
					Name:  name,
					Depth: depth,
					Files: idx.Callers(name),
				})
				queue = append(queue, bfsEntry{name: name, depth: depth})
			}
		}
	}

	return result, nil
}

// containersByFile maps each file to the names of the containers it defines,
// in declaration order.
func (idx *Index) containersByFile() map[string][]string {
	out := make(map[string][]string)
	for _, c := range idx.containers {
		out[c.File] = append(out[c.File], c.Name)
	}
	return out
}
