package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m tea.Model, keys ...string) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		m, cmd = m.Update(key(k))
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func newBrowse() BrowseModel {
	return NewBrowseModel(BrowseOptions{Archive: "/tmp/project.zip", Format: "zip", Entries: testEntries()})
}

func TestBrowseExtractSelection(t *testing.T) {
	m, cmd := press(t, newBrowse(), " ", "x")
	bm := m.(BrowseModel)

	if !bm.Confirmed() {
		t.Fatal("expected extraction to be confirmed")
	}
	if !isQuit(cmd) {
		t.Error("expected the program to quit after confirming")
	}
	members := bm.Members()
	if len(members) != 1 || members[0] != "docs/" {
		t.Errorf("Members() = %v, want [docs/]", members)
	}
}

func TestBrowseExtractNothingSelected(t *testing.T) {
	m, cmd := press(t, newBrowse(), "x")
	bm := m.(BrowseModel)

	if bm.Confirmed() {
		t.Error("extraction confirmed with nothing selected")
	}
	if cmd != nil {
		t.Error("expected the browser to stay open")
	}
	if !strings.Contains(bm.View(), "Select at least one entry") {
		t.Error("expected a status message")
	}
}

func TestBrowseCheckAll(t *testing.T) {
	m, _ := press(t, newBrowse(), "a", "x")
	bm := m.(BrowseModel)
	if !bm.Confirmed() {
		t.Fatal("expected extraction to be confirmed")
	}
	if members := bm.Members(); len(members) != 0 {
		t.Errorf("Members() = %v, want empty for the whole archive", members)
	}

	m, _ = press(t, newBrowse(), "a", "n")
	if m.(BrowseModel).tree.Any() {
		t.Error("n should clear every mark")
	}
}

func TestBrowseQuit(t *testing.T) {
	for _, k := range []string{"q", "esc", "ctrl+c"} {
		m, cmd := press(t, newBrowse(), " ", k)
		if m.(BrowseModel).Confirmed() {
			t.Errorf("%s: quit should not confirm", k)
		}
		if !isQuit(cmd) {
			t.Errorf("%s: expected quit", k)
		}
	}
}

func TestBrowseView(t *testing.T) {
	m, _ := newBrowse().Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = press(t, m, "j", " ")
	out := m.View()

	for _, want := range []string{"ARCHIVIST", "project.zip", "zip", "encrypted", "1 files selected", "extract"} {
		if !strings.Contains(out, want) {
			t.Errorf("view lacks %q", want)
		}
	}
}
