package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/archivist/pkg/archivist/detect"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported archive formats",
	Args:  cobra.NoArgs,
	RunE:  runFormats,
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func runFormats(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FORMAT\tREAD\tWRITE\tEXTENSIONS")
	for _, info := range detect.Formats() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name(), yesNo(info.Read), yesNo(info.Write),
			strings.Join(info.Extensions, " "))
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
