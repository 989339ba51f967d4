// Package tui is an interactive terminal browser for result trees.
package tui

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vitwang05/lexreview/internal/render"
	"github.com/vitwang05/lexreview/pkg/resulttree"
)

const helpLine = "↑/↓ move • enter toggle • →/← expand/collapse • e/c all • q quit"

var (
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Config wires a result tree into the browser.
type Config struct {
	Tree *render.Tree
	// Title names the result set, shown above the tree.
	Title   string
	Options render.Options
	// Output decides terminal styling; nil means stdout.
	Output io.Writer
}

// Model is the bubbletea model of the browser. Expansion state lives in the
// tree, so it survives the program and can be printed afterwards.
type Model struct {
	tree    *render.Tree
	title   string
	printer *render.Printer

	// cursor is the path of the selected node. group is the selected
	// citation group of that node, -1 when the node row itself is selected.
	cursor resulttree.Path
	group  int
	offset int
	height int
	err    error
	quit   bool
}

// New returns a model positioned on the first node.
func New(cfg Config) (*Model, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	p, err := render.NewPrinter(out, cfg.Options)
	if err != nil {
		return nil, err
	}
	m := &Model{tree: cfg.Tree, title: cfg.Title, printer: p, group: -1}
	if rows := m.tree.Selectable(); len(rows) > 0 {
		m.cursor = rows[0].Path
	}
	return m, nil
}

// Run starts the browser on the terminal and blocks until the user quits.
func Run(cfg Config) error {
	m, err := New(cfg)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.quit = true
		return m, tea.Quit
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "home", "g":
		m.moveTo(0)
	case "end", "G":
		m.moveTo(len(m.tree.Selectable()) - 1)
	case "enter", " ":
		switch {
		case m.group >= 0:
			m.tree.ToggleGroup(m.cursor, m.group)
		case m.cursor != nil:
			m.tree.Toggle(m.cursor)
		}
	case "right", "l":
		switch {
		case m.group >= 0:
			m.tree.ExpandGroup(m.cursor, m.group)
		case m.cursor != nil:
			m.tree.Expand(m.cursor)
		}
	case "left", "h":
		m.collapseOrParent()
	case "e":
		m.tree.ExpandAll()
	case "c":
		m.tree.CollapseAll()
		m.cursor = slices.Clone(m.cursor[:min(len(m.cursor), 1)])
		m.group = -1
	}
	return m, nil
}

// Cursor returns the path of the selected node, nil for an empty tree.
func (m *Model) Cursor() resulttree.Path {
	return m.cursor
}

// Group returns the selected citation group of the cursor node, -1 when the
// node itself is selected.
func (m *Model) Group() int {
	return m.group
}

// Quitting reports whether the user asked to leave.
func (m *Model) Quitting() bool {
	return m.quit
}

func (m *Model) selected(r render.Row) bool {
	if !slices.Equal(r.Path, m.cursor) {
		return false
	}
	if r.Kind == render.RowSource {
		return r.Group == m.group
	}
	return r.Kind == render.RowNode && m.group < 0
}

func (m *Model) index() int {
	return slices.IndexFunc(m.tree.Selectable(), m.selected)
}

func (m *Model) move(delta int) {
	m.moveTo(m.index() + delta)
}

func (m *Model) moveTo(i int) {
	rows := m.tree.Selectable()
	if len(rows) == 0 {
		return
	}
	i = max(0, min(i, len(rows)-1))
	m.cursor = rows[i].Path
	m.group = -1
	if rows[i].Kind == render.RowSource {
		m.group = rows[i].Group
	}
}

func (m *Model) collapseOrParent() {
	if m.cursor == nil {
		return
	}
	if m.group >= 0 {
		if m.tree.IsGroupExpanded(m.cursor, m.group) {
			m.tree.CollapseGroup(m.cursor, m.group)
		} else {
			m.group = -1
		}
		return
	}
	if m.tree.IsExpanded(m.cursor) {
		m.tree.Collapse(m.cursor)
		return
	}
	if len(m.cursor) > 1 {
		m.cursor = slices.Clone(m.cursor[:len(m.cursor)-1])
	}
}

func (m *Model) View() string {
	if m.quit {
		return ""
	}

	var lines []string
	cursorLine := 0
	for _, r := range m.tree.Visible() {
		text, err := m.printer.Row(r)
		if err != nil {
			m.err = err
			text = r.Text
		}
		if r.Kind == render.RowNode || r.Kind == render.RowSource {
			prefix := "  "
			if m.selected(r) {
				prefix = cursorStyle.Render("> ")
				cursorLine = len(lines)
			}
			text = prefix + text
		} else {
			text = indentLines(text, "  ")
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}

	var b strings.Builder
	if m.title != "" {
		b.WriteString(titleStyle.Render(m.title) + "\n")
	}
	b.WriteString(helpStyle.Render(render.Header(m.tree)) + "\n\n")

	if len(lines) == 0 {
		b.WriteString("  no findings\n")
	}
	b.WriteString(strings.Join(m.window(lines, cursorLine), "\n"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("render: %v", m.err)) + "\n")
	}
	b.WriteString(helpStyle.Render(helpLine))
	return b.String()
}

// window keeps the cursor line on screen when the terminal is shorter than
// the projection. Five lines go to the header, the blank lines and the help.
func (m *Model) window(lines []string, cursorLine int) []string {
	avail := m.height - 5
	if m.height == 0 || avail <= 0 || len(lines) <= avail {
		m.offset = 0
		return lines
	}
	if cursorLine < m.offset {
		m.offset = cursorLine
	}
	if cursorLine >= m.offset+avail {
		m.offset = cursorLine - avail + 1
	}
	m.offset = min(m.offset, len(lines)-avail)
	return lines[m.offset : m.offset+avail]
}

func indentLines(s, pad string) string {
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}
