package output

import "github.com/charmbracelet/lipgloss"

// Color constants using the ANSI 256-color palette.
const (
	// ColorPrimary is used for titles, directories and sizes.
	ColorPrimary = lipgloss.Color("39")
	// ColorSuccess is used for positive status text.
	ColorSuccess = lipgloss.Color("42")
	// ColorWarning marks encrypted entries.
	ColorWarning = lipgloss.Color("214")
	// ColorDanger is used for errors.
	ColorDanger = lipgloss.Color("196")
	// ColorMuted is used for labels and secondary text.
	ColorMuted = lipgloss.Color("245")
)

// Box styles.
var (
	// HeaderBox holds the archive summary above the listing.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox holds the totals below the listing.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)

	// ErrorBox frames an error message.
	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(0, 1)
)

// Text styles.
var (
	// TitleStyle renders the archive name in the header.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// LabelStyle renders field labels such as "Format:".
	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// ValueStyle renders field values next to a label.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	// SuccessStyle renders positive status text.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// WarningStyle renders the encryption marker.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// ErrorStyle renders error text.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorDanger)

	// MutedStyle renders secondary text such as entry flags.
	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// PathStyle renders file paths.
	PathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	// DirStyle renders directory paths.
	DirStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)

	// SizeStyle renders uncompressed sizes.
	SizeStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
)

// TableHeaderStyle is used for table column headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorMuted)
