package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/archivist/pkg/archivist/selection"
)

// Tree view icons.
const (
	iconExpanded  = "\u25BC" // Black down-pointing triangle
	iconCollapsed = "\u25B6" // Black right-pointing triangle
	iconChecked   = "[x]"
	iconPartial   = "[-]"
	iconUnchecked = "[ ]"
)

// TreeView displays an archive listing as a checkbox tree with
// expand/collapse and scrolling.
type TreeView struct {
	tree   *selection.Tree
	flat   []*selection.Node
	cursor int
	offset int
}

// NewTreeView creates a TreeView over t.
func NewTreeView(t *selection.Tree) *TreeView {
	tv := &TreeView{tree: t}
	tv.refresh()
	return tv
}

// refresh rebuilds the flat list from the current tree state.
func (tv *TreeView) refresh() {
	tv.flat = tv.tree.Visible()
	if tv.cursor >= len(tv.flat) {
		tv.cursor = len(tv.flat) - 1
	}
	if tv.cursor < 0 {
		tv.cursor = 0
	}
}

// MoveUp moves the cursor up n rows.
func (tv *TreeView) MoveUp(n int) {
	tv.cursor = max(tv.cursor-n, 0)
}

// MoveDown moves the cursor down n rows.
func (tv *TreeView) MoveDown(n int) {
	tv.cursor = max(min(tv.cursor+n, len(tv.flat)-1), 0)
}

// Home moves the cursor to the first row.
func (tv *TreeView) Home() { tv.cursor = 0 }

// End moves the cursor to the last row.
func (tv *TreeView) End() { tv.MoveDown(len(tv.flat)) }

// Current returns the node under the cursor.
func (tv *TreeView) Current() *selection.Node {
	if tv.cursor < 0 || tv.cursor >= len(tv.flat) {
		return nil
	}
	return tv.flat[tv.cursor]
}

// ToggleCheck flips the check mark of the current node.
func (tv *TreeView) ToggleCheck() {
	if n := tv.Current(); n != nil {
		tv.tree.Toggle(n.Path)
	}
}

// Expand opens the current directory.
func (tv *TreeView) Expand() {
	n := tv.Current()
	if n == nil || !n.IsDir || n.Expanded {
		return
	}
	n.ToggleExpanded()
	tv.refresh()
}

// Collapse closes the current directory, or moves to the parent when the
// current node is a file or already closed.
func (tv *TreeView) Collapse() {
	n := tv.Current()
	if n == nil {
		return
	}
	if n.IsDir && n.Expanded {
		n.ToggleExpanded()
		tv.refresh()
		return
	}
	if n.Parent == nil || n.Parent.Parent == nil {
		return
	}
	for i, row := range tv.flat {
		if row == n.Parent {
			tv.cursor = i
			return
		}
	}
}

// ExpandAll opens every directory.
func (tv *TreeView) ExpandAll() {
	tv.tree.Root.ExpandAll()
	tv.refresh()
}

// CollapseAll closes every directory.
func (tv *TreeView) CollapseAll() {
	for _, c := range tv.tree.Root.Children {
		c.CollapseAll()
	}
	tv.refresh()
}

// View renders the visible rows within width and height.
func (tv *TreeView) View(width, height int) string {
	if len(tv.flat) == 0 {
		return mutedTextStyle.Render("  Archive is empty") + "\n"
	}
	visible := max(height, 1)
	if tv.cursor < tv.offset {
		tv.offset = tv.cursor
	} else if tv.cursor >= tv.offset+visible {
		tv.offset = tv.cursor - visible + 1
	}

	var b strings.Builder
	end := min(tv.offset+visible, len(tv.flat))
	for i := tv.offset; i < end; i++ {
		b.WriteString(tv.renderNode(tv.flat[i], width, i == tv.cursor))
		b.WriteString("\n")
	}
	for i := end - tv.offset; i < visible; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

// renderNode renders a single row.
func (tv *TreeView) renderNode(n *selection.Node, width int, isCursor bool) string {
	indent := strings.Repeat("  ", n.Depth()-1)

	box, boxStyle := iconUnchecked, uncheckedStyle
	switch n.State {
	case selection.Checked:
		box, boxStyle = iconChecked, checkedStyle
	case selection.Partial:
		box, boxStyle = iconPartial, partialStyle
	}

	arrow := " "
	name := n.Name
	if n.IsDir {
		arrow = iconCollapsed
		if n.Expanded {
			arrow = iconExpanded
		}
		name += "/"
	}
	if n.Encrypted {
		name += " *"
	}

	var size string
	if !n.IsDir {
		size = humanize.IBytes(n.Size)
	}

	left := indent + box + " " + arrow + " " + name
	padding := max(width-lipgloss.Width(left)-lipgloss.Width(size)-1, 1)

	if isCursor {
		return rowHighlightStyle.Width(width).Render(left + strings.Repeat(" ", padding) + size)
	}
	styled := indent + boxStyle.Render(box) + " " + arrow + " " + name +
		strings.Repeat(" ", padding) + sizeTextStyle.Render(size)
	return rowNormalStyle.Width(width).Render(styled)
}
