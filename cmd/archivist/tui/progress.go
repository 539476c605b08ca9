package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/runner"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// EventMsg carries one runner event into the model.
type EventMsg runner.Event

// eventsClosedMsg is sent when the event channel closes.
type eventsClosedMsg struct{}

// ProgressModel shows the progress of one running operation. Ctrl+C asks
// the runner to cancel and the model keeps waiting for the final result.
type ProgressModel struct {
	title  string
	target string
	events <-chan runner.Event
	cancel func()

	spinner  spinner.Model
	bar      progress.Model
	progress types.Progress
	result   *engine.Result

	cancelling bool
	startTime  time.Time
	width      int
}

// NewProgressModel creates a progress model reading events from events.
// cancel is called once when the user interrupts.
func NewProgressModel(title, target string, events <-chan runner.Event, cancel func()) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return ProgressModel{
		title:     title,
		target:    target,
		events:    events,
		cancel:    cancel,
		spinner:   s,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		startTime: time.Now(),
		width:     80,
	}
}

// waitForEvent returns a command that delivers the next runner event.
func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// Init starts the spinner and the event listener.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update handles messages for the progress model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case EventMsg:
		switch msg.Kind {
		case runner.EventProgress:
			m.progress = msg.Progress
			return m, waitForEvent(m.events)
		case runner.EventComplete:
			res := msg.Result
			m.result = &res
			m.progress = res.Progress
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		if m.result != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the progress model.
func (m ProgressModel) View() string {
	width := m.width - 4
	if width < 40 {
		width = 40
	}

	var b strings.Builder
	hint := mutedTextStyle.Render("[Ctrl+C to cancel]")
	title := titleStyle.Render(m.title) + " " + mutedTextStyle.Render(truncatePath(m.target, width/2))
	spacing := width - lipgloss.Width(title) - lipgloss.Width(hint)
	if spacing < 1 {
		spacing = 1
	}
	b.WriteString(title + strings.Repeat(" ", spacing) + hint + "\n")
	b.WriteString(renderDivider(width) + "\n")

	switch {
	case m.result != nil:
		b.WriteString(m.renderResult())
	case m.cancelling:
		b.WriteString(warningTextStyle.Render(fmt.Sprintf("%s Cancelling...", m.spinner.View())))
	default:
		current := m.progress.Current
		if current == "" {
			current = "starting"
		}
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), truncatePath(current, width-4)))
	}
	b.WriteString("\n\n")

	m.bar.Width = width
	pct := m.percent()
	b.WriteString(m.bar.ViewAs(pct / 100))
	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render(fmt.Sprintf("%s of %s items  %3.0f%%  %s",
		humanize.Comma(int64(m.progress.Completed)),
		humanize.Comma(int64(m.progress.Total)),
		pct,
		formatDuration(time.Since(m.startTime)))))
	b.WriteString("\n")
	return b.String()
}

// percent is the completion ratio; an unknown total counts as zero until
// the operation ends.
func (m ProgressModel) percent() float64 {
	if m.progress.Total == 0 && m.result == nil {
		return 0
	}
	return m.progress.Percent()
}

func (m ProgressModel) renderResult() string {
	switch m.result.State {
	case engine.StateCompleted:
		return successTextStyle.Render("Done: " + m.result.Output)
	case engine.StatePasswordRequired:
		return warningTextStyle.Render("Password required")
	}
	return errorTextStyle.Render(fmt.Sprintf("Failed: %v", m.result.Err))
}

// Result returns the final result, or nil while the operation runs.
func (m ProgressModel) Result() *engine.Result {
	return m.result
}

// Cancelling reports whether the user asked to cancel.
func (m ProgressModel) Cancelling() bool {
	return m.cancelling
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	mins := d / time.Minute
	secs := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// RunOperation shows a progress screen for h until it finishes.
func RunOperation(title string, h *runner.Handle, cancel func()) (engine.Result, error) {
	events, stop := h.Events()
	defer stop()
	m := NewProgressModel(title, h.Request().Target(), events, cancel)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return engine.Result{}, err
	}
	if pm, ok := final.(ProgressModel); ok && pm.result != nil {
		return *pm.result, nil
	}
	return h.Wait(), nil
}
