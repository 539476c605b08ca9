package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// PlainFormatter formats output as an aligned table without colors,
// suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprintln(tw, "ATTR\tSIZE\tPACKED\tMODIFIED\tPATH"); err != nil {
		return err
	}
	for _, e := range r.Entries {
		size, packed := "-", "-"
		if !e.IsDir {
			size = humanize.IBytes(e.Size)
			if e.CompressedSize > 0 {
				packed = humanize.IBytes(e.CompressedSize)
			}
		}
		modified := "-"
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", flags(e), size, packed, modified, displayPath(e)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
