package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/archivist/cmd/archivist/tui"
	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

var browseCmd = &cobra.Command{
	Use:     "browse ARCHIVE [DEST]",
	Aliases: []string{"b"},
	Short:   "Browse an archive and extract selected entries",
	Long: `Open an archive in an interactive tree. Check entries with space and
press x to extract them into DEST (default: extract.default_destination).

Keys:
  up/down, j/k     move
  enter/right      open directory
  left             close directory or go to parent
  space            check or uncheck
  a / n            check all / none
  E / C            expand / collapse all
  x                extract checked entries
  q, esc           quit`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringP("password", "p", "", "archive password")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !isInteractive() {
		return errors.New("browse needs an interactive terminal; use list and extract -m instead")
	}
	archive := args[0]
	dest := appConfig.Extract.DefaultDestination
	if len(args) == 2 {
		dest = args[1]
	}
	password, _ := cmd.Flags().GetString("password")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := newEngine(appConfig)
	format, compression, err := eng.DetectFormat(archive)
	if err != nil {
		return err
	}

	d := newDriver(ctx, eng, appConfig.MaxPasswordAttempts)
	defer d.Close()

	pw := types.Password(password)
	var entries []types.Entry
	err = retryPassword(d.prompt, d.maxAttempts, archive, pw, func(next types.Password) error {
		var lerr error
		entries, lerr = eng.List(ctx, archive, next)
		if lerr == nil {
			pw = next
		}
		return lerr
	})
	if err != nil {
		return err
	}

	if err := initTUILogging(); err != nil {
		return err
	}
	members, ok, err := tui.Browse(tui.BrowseOptions{
		Archive: archive,
		Format:  formatName(format, compression),
		Entries: entries,
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, err = d.drive(engine.NewExtract(archive, dest, members...).WithPassword(pw), "Extracting")
	return err
}
