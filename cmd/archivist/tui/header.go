package tui

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// renderAppHeader renders the shared header: archive name, format and
// entry totals.
func renderAppHeader(archive, format string, entries int, totalSize uint64, encrypted bool) string {
	appName := titleStyle.Render("ARCHIVIST")
	name := filepath.Base(archive)
	stats := mutedTextStyle.Render(fmt.Sprintf("  %s  •  %s  •  %s entries  •  %s",
		name, format, humanize.Comma(int64(entries)), humanize.IBytes(totalSize)))

	header := " " + appName + stats
	if encrypted {
		header += warningTextStyle.Render("  * encrypted")
	}
	return header
}

// renderSelectionSummary renders the checked file count and size.
func renderSelectionSummary(count int, size uint64, all bool) string {
	switch {
	case all:
		return successTextStyle.Render(fmt.Sprintf("  All %s files selected (%s)", humanize.Comma(int64(count)), humanize.IBytes(size)))
	case count == 0:
		return mutedTextStyle.Render("  Nothing selected")
	}
	return successTextStyle.Render(fmt.Sprintf("  %s files selected (%s)", humanize.Comma(int64(count)), humanize.IBytes(size)))
}
