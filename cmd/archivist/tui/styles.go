// Package tui provides the interactive terminal screens for archivist:
// operation progress, the password prompt and the archive browser. It uses
// Charmbracelet's Bubble Tea, Lip Gloss and Bubbles.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4") // borders, titles, keys
	accentColor  = lipgloss.Color("#00D9FF") // sizes

	successColor = lipgloss.Color("#28A745")
	warningColor = lipgloss.Color("#FFC107")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor     = lipgloss.Color("#666666")
	borderColor    = lipgloss.Color("#333333")
	highlightColor = lipgloss.Color("#4A2040")
)

var (
	// outerBoxStyle is the main container style.
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	// dividerStyle draws the rule between the header and the body.
	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)

	// dialogBoxStyle frames the password prompt.
	dialogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(warningColor).
			Padding(1, 2).
			Width(56)
)

// Text styles.
var (
	// titleStyle renders screen titles.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// mutedTextStyle renders hints and secondary values.
	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// errorTextStyle renders failures and retry notices.
	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	// successTextStyle renders a completed operation.
	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	// warningTextStyle renders cancellation and encryption notices.
	warningTextStyle = lipgloss.NewStyle().
				Foreground(warningColor)

	// sizeTextStyle renders byte sizes.
	sizeTextStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// Tree row styles.
var (
	// rowHighlightStyle marks the cursor row.
	rowHighlightStyle = lipgloss.NewStyle().
				Background(highlightColor).
				Foreground(lipgloss.Color("#FFFFFF")).
				Bold(true)

	// rowNormalStyle is used for every other row.
	rowNormalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	// checkedStyle renders a [x] box.
	checkedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	// partialStyle renders a [-] box.
	partialStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// uncheckedStyle renders a [ ] box.
	uncheckedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// Key hint styles.
var (
	// keyStyle renders the key in a hint.
	keyStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	// keyDescStyle renders what the key does.
	keyDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// renderDivider creates a horizontal divider line.
func renderDivider(width int) string {
	return dividerStyle.Render(repeatChar('─', width))
}

// renderKeyHints renders pairs of key and description.
func renderKeyHints(pairs ...string) string {
	var out string
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			out += "  "
		}
		out += keyStyle.Render(pairs[i]) + " " + keyDescStyle.Render(pairs[i+1])
	}
	return out
}

// repeatChar repeats a character n times.
func repeatChar(char rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

// truncatePath truncates a path to fit within maxLen, preserving the end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}
