package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

var extractCmd = &cobra.Command{
	Use:     "extract ARCHIVE [DEST]",
	Aliases: []string{"x"},
	Short:   "Extract an archive",
	Long: `Extract an archive into DEST (default: extract.default_destination).

Members select what to extract; a directory member such as "docs/" selects
its whole subtree. Existing files are overwritten. Entries that would land
outside DEST are rejected.

Examples:
  archivist extract backup.zip
  archivist extract photos.7z ~/photos
  archivist extract -m docs/ -m README.md src.tar.gz out`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringP("password", "p", "", "archive password")
	extractCmd.Flags().StringSliceP("member", "m", nil, "member to extract (repeatable)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	archive := args[0]
	dest := appConfig.Extract.DefaultDestination
	if len(args) == 2 {
		dest = args[1]
	}
	password, _ := cmd.Flags().GetString("password")
	members, _ := cmd.Flags().GetStringSlice("member")

	req := engine.NewExtract(archive, dest, members...).WithPassword(types.Password(password))
	return runRequest(req, "Extracting")
}

// runRequest drives req to completion and reports the outcome.
func runRequest(req engine.Request, title string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDriver(ctx, newEngine(appConfig), appConfig.MaxPasswordAttempts)
	defer d.Close()

	printVerbose("%s", req)
	res, err := d.drive(req, title)
	if err != nil {
		return err
	}
	if !d.interactive {
		printInfo("%s: %d items -> %s", res.State, res.Progress.Completed, res.Output)
	}
	return nil
}
