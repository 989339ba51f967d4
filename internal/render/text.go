package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vitwang05/lexreview/pkg/resulttree"
)

// Options control text output.
type Options struct {
	// Markdown renders answers through glamour. Off, answers print verbatim.
	Markdown bool
	// Width wraps citation text and markdown. 0 disables wrapping.
	Width int
}

// Printer writes tree projections to a writer. Styling follows the writer's
// terminal capabilities, so output to a file or buffer is plain text.
type Printer struct {
	opts   Options
	styles styles
	md     *glamour.TermRenderer
}

type styles struct {
	title   lipgloss.Style
	leaf    lipgloss.Style
	source  lipgloss.Style
	cite    lipgloss.Style
	missing lipgloss.Style
	header  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true),
		leaf:    r.NewStyle(),
		source:  r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		cite:    r.NewStyle().Underline(true),
		missing: r.NewStyle().Faint(true).Italic(true),
		header:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer, opts Options) (*Printer, error) {
	p := &Printer{opts: opts, styles: newStyles(lipgloss.NewRenderer(w))}
	if opts.Markdown {
		mdOpts := []glamour.TermRendererOption{glamour.WithStandardStyle("notty")}
		if opts.Width > 0 {
			mdOpts = append(mdOpts, glamour.WithWordWrap(opts.Width))
		}
		md, err := glamour.NewTermRenderer(mdOpts...)
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		p.md = md
	}
	return p, nil
}

// Marker returns the prefix glyph for a node or citation group row.
func Marker(r Row) string {
	switch {
	case !r.Expandable:
		return "•"
	case r.Expanded:
		return "▾"
	default:
		return "▸"
	}
}

// Header summarizes the result set in one line.
func Header(t *Tree) string {
	nodes := resulttree.CountNodes(t.set.Nodes)
	if t.set.ProcessingTime == nil {
		return fmt.Sprintf("%d findings", nodes)
	}
	return fmt.Sprintf("%d findings, processed in %.2fs", nodes, *t.set.ProcessingTime)
}

// Write prints the header and the visible rows of t.
func (p *Printer) Write(w io.Writer, t *Tree) error {
	var b strings.Builder
	b.WriteString(p.styles.header.Render(Header(t)))
	b.WriteString("\n\n")

	for _, r := range t.Visible() {
		line, err := p.Row(r)
		if err != nil {
			return err
		}
		b.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Row renders one row, indented by depth. Answers and citation bodies may span
// several lines.
func (p *Printer) Row(r Row) (string, error) {
	pad := strings.Repeat("  ", r.Depth)
	switch r.Kind {
	case RowAnswer:
		text, err := p.answer(r.Text)
		if err != nil {
			return "", err
		}
		return indent.String(text, uint(len(pad))), nil
	case RowSource:
		return pad + Marker(r) + " " + p.styles.source.Render(r.Title), nil
	case RowCitation:
		body := r.Text
		if r.Missing {
			body = p.styles.missing.Render(body)
		} else if p.opts.Width > 0 {
			body = wordwrap.String(body, max(p.opts.Width-len(pad)-2, 20))
		}
		return pad + "- " + p.styles.cite.Render(r.Title) + "\n" + indent.String(body, uint(len(pad)+2)), nil
	default:
		st := p.styles.leaf
		if r.Expandable {
			st = p.styles.title
		}
		return pad + Marker(r) + " " + st.Render(r.Title), nil
	}
}

func (p *Printer) answer(text string) (string, error) {
	if p.md == nil {
		if p.opts.Width > 0 {
			text = wordwrap.String(text, p.opts.Width)
		}
		return text, nil
	}
	out, err := p.md.Render(text)
	if err != nil {
		return "", fmt.Errorf("render answer: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// Text prints t to w with opts.
func Text(w io.Writer, t *Tree, opts Options) error {
	p, err := NewPrinter(w, opts)
	if err != nil {
		return err
	}
	return p.Write(w, t)
}
