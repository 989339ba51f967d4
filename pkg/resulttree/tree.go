package resulttree

import (
	"strconv"
	"strings"

	"github.com/vitwang05/lexreview/pkg/models"
)

// Path is the structural position of a node: indexes from the top-level list down.
// Two nodes with the same title never share a Path.
type Path []int

// String renders the path as "0.2.1". The empty path renders as "".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// Child returns a new path one level below p.
func (p Path) Child(idx int) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = idx
	return child
}

// Depth is the nesting level of the node at p, 0 for top-level nodes.
func (p Path) Depth() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) (Path, bool) {
	if s == "" {
		return Path{}, true
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, false
		}
		p[i] = n
	}
	return p, true
}

// Walk visits nodes in document order (pre-order). Returning false from fn skips the
// node's children.
func Walk(nodes []*models.ResultNode, fn func(Path, *models.ResultNode) bool) {
	walk(nodes, Path{}, fn)
}

func walk(nodes []*models.ResultNode, parent Path, fn func(Path, *models.ResultNode) bool) {
	for i, n := range nodes {
		if n == nil {
			continue
		}
		p := parent.Child(i)
		if fn(p, n) {
			walk(n.Children, p, fn)
		}
	}
}

// FindByPath resolves a structural path in the tree.
func FindByPath(nodes []*models.ResultNode, p Path) *models.ResultNode {
	if len(p) == 0 {
		return nil
	}
	var node *models.ResultNode
	level := nodes
	for _, idx := range p {
		if idx < 0 || idx >= len(level) || level[idx] == nil {
			return nil
		}
		node = level[idx]
		level = node.Children
	}
	return node
}

// CountNodes counts all nodes in the tree.
func CountNodes(nodes []*models.ResultNode) int {
	count := 0
	Walk(nodes, func(Path, *models.ResultNode) bool {
		count++
		return true
	})
	return count
}

// Depth returns the number of levels in the tree, 0 for an empty tree.
func Depth(nodes []*models.ResultNode) int {
	deepest := 0
	Walk(nodes, func(p Path, _ *models.ResultNode) bool {
		if len(p) > deepest {
			deepest = len(p)
		}
		return true
	})
	return deepest
}

// Flatten returns all nodes keyed by their path string.
func Flatten(nodes []*models.ResultNode) map[string]*models.ResultNode {
	result := make(map[string]*models.ResultNode)
	Walk(nodes, func(p Path, n *models.ResultNode) bool {
		result[p.String()] = n
		return true
	})
	return result
}

// HasContent reports whether a node has anything beyond its title.
func HasContent(n *models.ResultNode) bool {
	return n != nil && (n.Answer != "" || len(n.Citations) > 0 || len(n.Children) > 0)
}
