// Package render projects a result tree into collapsible rows and text.
// Nothing here touches the network.
package render

import (
	"fmt"

	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/resulttree"
)

// NoContent stands in for a citation that arrived without text.
const NoContent = "(no content)"

// RowKind says what a visible row shows.
type RowKind int

const (
	RowNode RowKind = iota
	RowAnswer
	RowSource
	RowCitation
)

// Row is one line item of the projection.
type Row struct {
	Kind RowKind
	// Path is the owning node's structural position.
	Path  resulttree.Path
	Depth int
	// Title is the node title, source name or citation title.
	Title string
	// Text is the answer or citation body. Missing is set when a citation had none.
	Text    string
	Missing bool
	// Group indexes the citation group of RowSource and RowCitation rows.
	Group int
	// Expandable and Expanded apply to RowNode and RowSource.
	Expandable bool
	Expanded   bool
}

// Tree holds expansion state over an immutable result set. Every node and
// every citation group starts collapsed. State is keyed by structural path, so
// nodes with equal titles are toggled independently.
type Tree struct {
	set      *models.ResultSet
	expanded map[string]bool
	groups   map[string]bool
}

// NewTree wraps set. A nil set is treated as empty.
func NewTree(set *models.ResultSet) *Tree {
	if set == nil {
		set = &models.ResultSet{}
	}
	return &Tree{set: set, expanded: make(map[string]bool), groups: make(map[string]bool)}
}

// Set returns the wrapped result set.
func (t *Tree) Set() *models.ResultSet {
	return t.set
}

// Node resolves p.
func (t *Tree) Node(p resulttree.Path) *models.ResultNode {
	return resulttree.FindByPath(t.set.Nodes, p)
}

// IsExpanded reports the expansion state of the node at p.
func (t *Tree) IsExpanded(p resulttree.Path) bool {
	return t.expanded[p.String()]
}

// Expand opens the node at p. Other nodes are unaffected.
func (t *Tree) Expand(p resulttree.Path) {
	if t.Node(p) != nil {
		t.expanded[p.String()] = true
	}
}

// Collapse closes the node at p. Its descendants keep their own state.
func (t *Tree) Collapse(p resulttree.Path) {
	delete(t.expanded, p.String())
}

// Toggle flips the node at p and returns the new state.
func (t *Tree) Toggle(p resulttree.Path) bool {
	if t.IsExpanded(p) {
		t.Collapse(p)
		return false
	}
	t.Expand(p)
	return t.IsExpanded(p)
}

func groupKey(p resulttree.Path, g int) string {
	return fmt.Sprintf("%s#%d", p, g)
}

// IsGroupExpanded reports whether citation group g of the node at p is open.
func (t *Tree) IsGroupExpanded(p resulttree.Path, g int) bool {
	return t.groups[groupKey(p, g)]
}

// ExpandGroup opens citation group g of the node at p.
func (t *Tree) ExpandGroup(p resulttree.Path, g int) {
	if n := t.Node(p); n != nil && g >= 0 && g < len(n.Citations) {
		t.groups[groupKey(p, g)] = true
	}
}

// CollapseGroup closes citation group g of the node at p.
func (t *Tree) CollapseGroup(p resulttree.Path, g int) {
	delete(t.groups, groupKey(p, g))
}

// ToggleGroup flips citation group g of the node at p and returns the new
// state.
func (t *Tree) ToggleGroup(p resulttree.Path, g int) bool {
	if t.IsGroupExpanded(p, g) {
		t.CollapseGroup(p, g)
		return false
	}
	t.ExpandGroup(p, g)
	return t.IsGroupExpanded(p, g)
}

// ExpandAll opens every node and citation group.
func (t *Tree) ExpandAll() {
	resulttree.Walk(t.set.Nodes, func(p resulttree.Path, n *models.ResultNode) bool {
		t.expanded[p.String()] = true
		for g := range n.Citations {
			t.groups[groupKey(p, g)] = true
		}
		return true
	})
}

// CollapseAll closes every node and citation group.
func (t *Tree) CollapseAll() {
	clear(t.expanded)
	clear(t.groups)
}

// Visible returns the rows currently on screen in document order. An expanded
// node shows its answer, then its citation groups, then its children. A group
// lists its citations only while it is open itself.
func (t *Tree) Visible() []Row {
	var rows []Row
	resulttree.Walk(t.set.Nodes, func(p resulttree.Path, n *models.ResultNode) bool {
		open := t.IsExpanded(p)
		depth := p.Depth()
		rows = append(rows, Row{
			Kind:       RowNode,
			Path:       p,
			Depth:      depth,
			Title:      n.Title,
			Expandable: resulttree.HasContent(n),
			Expanded:   open,
		})
		if !open {
			return false
		}

		if n.Answer != "" {
			rows = append(rows, Row{Kind: RowAnswer, Path: p, Depth: depth + 1, Text: n.Answer})
		}
		for gi, g := range n.Citations {
			gopen := t.IsGroupExpanded(p, gi)
			rows = append(rows, Row{
				Kind:       RowSource,
				Path:       p,
				Depth:      depth + 1,
				Title:      g.Source,
				Group:      gi,
				Expandable: len(g.Entries) > 0,
				Expanded:   gopen,
			})
			if !gopen {
				continue
			}
			for _, c := range g.Entries {
				row := Row{Kind: RowCitation, Path: p, Depth: depth + 2, Title: c.Title, Group: gi}
				if c.Text == nil || *c.Text == "" {
					row.Text = NoContent
					row.Missing = true
				} else {
					row.Text = *c.Text
				}
				rows = append(rows, row)
			}
		}
		return true
	})
	return rows
}

// Selectable returns the node and citation group rows of Visible, the rows a
// cursor can rest on.
func (t *Tree) Selectable() []Row {
	var out []Row
	for _, r := range t.Visible() {
		if r.Kind == RowNode || r.Kind == RowSource {
			out = append(out, r)
		}
	}
	return out
}

// NodeRows returns only the node rows of Visible.
func (t *Tree) NodeRows() []Row {
	var out []Row
	for _, r := range t.Visible() {
		if r.Kind == RowNode {
			out = append(out, r)
		}
	}
	return out
}
