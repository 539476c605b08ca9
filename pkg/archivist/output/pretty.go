package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Archive:"), ValueStyle.Render(r.Archive)),
	}
	info := fmt.Sprintf("%s %s", LabelStyle.Render("Format:"), ValueStyle.Render(r.Format))
	if r.Encrypted() {
		info += "  " + WarningStyle.Render("encrypted")
	}
	lines = append(lines, info)
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Entries) == 0 {
		return MutedStyle.Render("  No entries match the criteria") + "\n"
	}

	sizes := make([]string, len(r.Entries))
	width := len("SIZE")
	for i, e := range r.Entries {
		if e.IsDir {
			sizes[i] = "-"
		} else {
			sizes[i] = humanize.IBytes(e.Size)
		}
		width = max(width, len(sizes[i]))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s\n",
		TableHeaderStyle.Render("  "),
		TableHeaderStyle.Render(padLeft("SIZE", width)),
		TableHeaderStyle.Render("PATH"))

	for i, e := range r.Entries {
		path := PathStyle.Render(displayPath(e))
		if e.IsDir {
			path = DirStyle.Render(displayPath(e))
		}
		attr := MutedStyle.Render(flags(e))
		if e.Encrypted {
			attr = WarningStyle.Render(flags(e))
		}
		fmt.Fprintf(&sb, "  %s  %s  %s\n", attr, SizeStyle.Render(padLeft(sizes[i], width)), path)
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	files, dirs := r.Counts()
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Files:"), ValueStyle.Render(fmt.Sprint(files))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Dirs:"), ValueStyle.Render(fmt.Sprint(dirs))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(humanize.IBytes(r.TotalSize()))),
	}
	if packed := r.TotalCompressed(); packed > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Packed:"), SizeStyle.Render(humanize.IBytes(packed))))
	}
	if shown := len(r.Entries); r.TotalEntries > shown {
		parts = append(parts, MutedStyle.Render(fmt.Sprintf("%d of %d entries shown", shown, r.TotalEntries)))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

// padLeft pads s with spaces on the left to width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
