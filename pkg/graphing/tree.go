package graphing

import (
	"fmt"
	"io"
	"strings"

	"ProcGraph/pkg/branching"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorGray    = lipgloss.Color("#6272A4")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	rootStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorMagenta)
	pidStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	branchStyle = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
)

// PrintTree writes the draw order followed by an indented tree, children
// listed most recent first.
func PrintTree(w io.Writer, t *branching.Tree) error {
	var b strings.Builder

	order := make([]string, len(t.Order))
	for i, pid := range t.Order {
		order[i] = fmt.Sprint(pid)
	}
	b.WriteString(titleStyle.Render("ORDER:") + " " + strings.Join(order, " ") + "\n")
	fmt.Fprintf(&b, "%s %.3f s over %d processes\n", titleStyle.Render("SPAN:"), t.Span, t.Len())
	if len(t.Dropped) > 0 {
		fmt.Fprintf(&b, "%s %v\n", titleStyle.Render("DROPPED:"), t.Dropped)
	}

	type frame struct {
		row    int
		prefix string
		last   bool
	}
	stack := []frame{{row: 0}}
	for len(stack) > 0 && len(t.Nodes) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.Nodes[f.row]

		label := pidStyle.Render(fmt.Sprint(n.PID))
		childPrefix := ""
		if n.Root {
			label = rootStyle.Render(fmt.Sprint(n.PID))
		} else {
			connector := "├── "
			childPrefix = f.prefix + "│   "
			if f.last {
				connector = "└── "
				childPrefix = f.prefix + "    "
			}
			b.WriteString(branchStyle.Render(f.prefix + connector))
		}
		b.WriteString(label)
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %.3f-%.3f s", n.RelativeCreation, n.RelativeExit)))
		if n.NumDescendants > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d descendants)", n.NumDescendants)))
		}
		b.WriteByte('\n')

		kids := n.SortedChildren
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{row: kids[i], prefix: childPrefix, last: i == len(kids)-1})
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
