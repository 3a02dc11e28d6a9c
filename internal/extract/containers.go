package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/jward/dscope/internal/store"
)

var (
	yamlLanguage *sitter.Language
	yamlOnce     sync.Once
)

func yamlGrammar() *sitter.Language {
	yamlOnce.Do(func() {
		yamlLanguage = yaml.GetLanguage()
	})
	return yamlLanguage
}

// Containers lists the top-level script containers declared in src. A
// container is a top-level mapping key whose value is a mapping holding a
// "type:" entry. Tree-sitter recovers from syntax errors, so broken regions
// only reduce what is found.
func Containers(ctx context.Context, file string, src []byte) ([]store.ScriptContainer, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(yamlGrammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	top := findMapping(tree.RootNode(), 3)
	if top == nil {
		return nil, nil
	}

	var out []store.ScriptContainer
	for i := 0; i < int(top.NamedChildCount()); i++ {
		pair := top.NamedChild(i)
		if pair.Type() != "block_mapping_pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil {
			continue
		}
		typ := mappingValue(value, "type", src)
		if typ == "" {
			continue
		}
		out = append(out, store.ScriptContainer{
			File: file,
			Line: int(pair.StartPoint().Row) + 1,
			Name: scalarText(key, src),
			Type: typ,
		})
	}
	return out, nil
}

// findMapping returns the first block_mapping reachable from node through
// its first named children, looking at most depth levels down. Documents
// nest as stream > document > block_node > block_mapping.
func findMapping(node *sitter.Node, depth int) *sitter.Node {
	for i := 0; node != nil && i <= depth; i++ {
		if node.Type() == "block_mapping" {
			return node
		}
		node = firstContentChild(node)
	}
	return nil
}

// firstContentChild returns the first named child that is not a comment.
func firstContentChild(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

// mappingValue returns the scalar text stored under key in the mapping held
// by value, or "" when there is none.
func mappingValue(value *sitter.Node, key string, src []byte) string {
	m := findMapping(value, 1)
	if m == nil {
		return ""
	}
	for i := 0; i < int(m.NamedChildCount()); i++ {
		pair := m.NamedChild(i)
		if pair.Type() != "block_mapping_pair" {
			continue
		}
		k := pair.ChildByFieldName("key")
		v := pair.ChildByFieldName("value")
		if k == nil || v == nil {
			continue
		}
		if strings.EqualFold(scalarText(k, src), key) {
			return scalarText(v, src)
		}
	}
	return ""
}

func scalarText(n *sitter.Node, src []byte) string {
	return strings.Trim(strings.TrimSpace(n.Content(src)), `"'`)
}
