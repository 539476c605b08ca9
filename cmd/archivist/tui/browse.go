package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/archivist/pkg/archivist/selection"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// BrowseOptions configures the archive browser.
type BrowseOptions struct {
	Archive string
	Format  string
	Entries []types.Entry
}

// BrowseModel lets the user check archive members and confirm extraction.
type BrowseModel struct {
	opts      BrowseOptions
	tree      *selection.Tree
	view      *TreeView
	totalSize uint64
	encrypted bool

	status    string
	confirmed bool
	width     int
	height    int
}

// NewBrowseModel builds the selection tree for opts.Entries.
func NewBrowseModel(opts BrowseOptions) BrowseModel {
	t := selection.Build(opts.Entries)
	m := BrowseModel{
		opts:   opts,
		tree:   t,
		view:   NewTreeView(t),
		width:  80,
		height: 24,
	}
	for _, e := range opts.Entries {
		if !e.IsDir {
			m.totalSize += e.Size
		}
		m.encrypted = m.encrypted || e.Encrypted
	}
	return m
}

// Init implements tea.Model.
func (m BrowseModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the browser.
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m.view.MoveUp(1)
		case "down", "j":
			m.view.MoveDown(1)
		case "pgup":
			m.view.MoveUp(m.treeHeight())
		case "pgdown":
			m.view.MoveDown(m.treeHeight())
		case "home", "g":
			m.view.Home()
		case "end", "G":
			m.view.End()
		case " ":
			m.view.ToggleCheck()
		case "enter", "right", "l":
			m.view.Expand()
		case "left", "h":
			m.view.Collapse()
		case "E":
			m.view.ExpandAll()
		case "C":
			m.view.CollapseAll()
		case "a":
			m.tree.CheckAll()
		case "n":
			m.tree.UncheckAll()
		case "x":
			if !m.tree.Any() {
				m.status = "Select at least one entry to extract"
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// treeHeight is the number of tree rows that fit between header and footer.
func (m BrowseModel) treeHeight() int {
	return max(m.height-8, 1)
}

// View renders the browser.
func (m BrowseModel) View() string {
	width := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(renderAppHeader(m.opts.Archive, m.opts.Format, m.tree.Len(), m.totalSize, m.encrypted))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")
	b.WriteString(m.view.View(width, m.treeHeight()))
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	count, size := m.tree.CheckedFiles()
	if m.status != "" {
		b.WriteString(errorTextStyle.Render("  " + m.status))
	} else {
		b.WriteString(renderSelectionSummary(count, size, m.tree.Root.State == selection.Checked))
	}
	b.WriteString("\n")
	b.WriteString(" " + renderKeyHints("space", "check", "enter", "open", "a", "all", "n", "none", "x", "extract", "q", "quit"))

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

// Confirmed reports whether the user chose to extract.
func (m BrowseModel) Confirmed() bool {
	return m.confirmed
}

// Members returns the checked member paths; empty means every entry.
func (m BrowseModel) Members() []string {
	return m.tree.Selected()
}

// Browse runs the browser full screen. ok is false when the user quits
// without extracting.
func Browse(opts BrowseOptions) (members []string, ok bool, err error) {
	final, err := tea.NewProgram(NewBrowseModel(opts), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, false, err
	}
	bm := final.(BrowseModel)
	if !bm.Confirmed() {
		return nil, false, nil
	}
	return bm.Members(), true, nil
}
