package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// PasswordModel is a masked password prompt. Enter submits; Esc, Ctrl+C or
// an empty submission aborts.
type PasswordModel struct {
	target  string
	retry   bool
	attempt int
	input   textinput.Model

	submitted bool
	aborted   bool
}

// NewPasswordModel creates a prompt for target. retry marks a previous
// wrong password.
func NewPasswordModel(target string, attempt int, retry bool) PasswordModel {
	ti := textinput.New()
	ti.Placeholder = "password"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Prompt = "> "
	ti.Width = 40
	ti.Focus()

	return PasswordModel{
		target:  target,
		retry:   retry,
		attempt: attempt,
		input:   ti,
	}
}

// Init starts the cursor blink.
func (m PasswordModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the prompt.
func (m PasswordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			if m.input.Value() == "" {
				m.aborted = true
			} else {
				m.submitted = true
			}
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the prompt.
func (m PasswordModel) View() string {
	if m.submitted || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Password required"))
	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render(truncatePath(m.target, 50)))
	b.WriteString("\n\n")
	if m.retry {
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("Incorrect password (attempt %d)", m.attempt)))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(renderKeyHints("enter", "submit", "esc", "cancel"))
	return dialogBoxStyle.Render(b.String()) + "\n"
}

// Password returns the entered password and whether it was submitted.
func (m PasswordModel) Password() (types.Password, bool) {
	if !m.submitted {
		return "", false
	}
	return types.Password(m.input.Value()), true
}

// PromptPassword asks for the password of target. ok is false when the
// user aborts or submits an empty password.
func PromptPassword(target string, attempt int, retry bool) (types.Password, bool, error) {
	final, err := tea.NewProgram(NewPasswordModel(target, attempt, retry)).Run()
	if err != nil {
		return "", false, err
	}
	pw, ok := final.(PasswordModel).Password()
	return pw, ok, nil
}
