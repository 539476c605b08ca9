package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/archivist/pkg/archivist/output"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

var listCmd = &cobra.Command{
	Use:     "list ARCHIVE",
	Aliases: []string{"ls", "l"},
	Short:   "List the contents of an archive",
	Long: `List the entries of a ZIP, 7z, TAR or RAR archive.

Listing never needs a password unless the archive encrypts its headers.

Examples:
  archivist list backup.zip
  archivist list -o json src.tar.gz
  archivist list --include '*.go' --sort size --reverse --limit 10 repo.7z
  archivist list -o template --template '{{range .Entries}}{{.Path}}{{"\n"}}{{end}}' a.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	flags := listCmd.Flags()
	flags.StringP("password", "p", "", "archive password")
	flags.StringP("output", "o", "", "output format: pretty, plain, json, jsonl, yaml, template")
	flags.String("template", "", "Go template for -o template")
	flags.StringSlice("include", nil, "only entries matching these globs")
	flags.StringSlice("exclude", nil, "skip entries matching these globs")
	flags.StringSlice("ext", nil, "only files with these extensions")
	flags.Bool("files-only", false, "hide directories")
	flags.String("min-size", "", "minimum file size (e.g., 10K, 1M)")
	flags.Int("max-depth", 0, "maximum path depth (0=unlimited)")
	flags.String("sort", "", "sort by: path, name, size, mtime")
	flags.BoolP("reverse", "r", false, "reverse sort order")
	flags.Int("limit", 0, "show at most this many entries (0=unlimited)")

	_ = viper.BindPFlag("output", flags.Lookup("output"))
	_ = viper.BindPFlag("template", flags.Lookup("template"))
	_ = viper.BindPFlag("include", flags.Lookup("include"))
	_ = viper.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = viper.BindPFlag("ext", flags.Lookup("ext"))
	_ = viper.BindPFlag("files_only", flags.Lookup("files-only"))
	_ = viper.BindPFlag("min_size", flags.Lookup("min-size"))
	_ = viper.BindPFlag("max_depth", flags.Lookup("max-depth"))
	_ = viper.BindPFlag("sort", flags.Lookup("sort"))
	_ = viper.BindPFlag("reverse", flags.Lookup("reverse"))
	_ = viper.BindPFlag("limit", flags.Lookup("limit"))

	rootCmd.AddCommand(listCmd)
}

// selectFormatter returns the formatter named by the output setting.
func selectFormatter(name string) (output.Formatter, error) {
	if name == "" {
		name = "pretty"
	}
	if name == "template" {
		tmplStr := viper.GetString("template")
		if tmplStr == "" {
			return nil, fmt.Errorf("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmplStr), nil
	}
	formatter, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return formatter, nil
}

func runList(cmd *cobra.Command, args []string) error {
	archive := args[0]
	password, _ := cmd.Flags().GetString("password")

	f, err := buildFilter()
	if err != nil {
		return fmt.Errorf("failed to build filter: %w", err)
	}
	formatter, err := selectFormatter(viper.GetString("output"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := newEngine(appConfig)
	format, compression, err := eng.DetectFormat(archive)
	if err != nil {
		return err
	}
	printVerbose("Detected %s", formatName(format, compression))

	var entries []types.Entry
	prompt := plainPrompt(os.Stdin, os.Stderr)
	err = retryPassword(prompt, appConfig.MaxPasswordAttempts, archive, types.Password(password), func(pw types.Password) error {
		var lerr error
		entries, lerr = eng.List(ctx, archive, pw)
		return lerr
	})
	if err != nil {
		return err
	}

	result := &output.Result{
		Archive:      archive,
		Format:       formatName(format, compression),
		Entries:      f.Apply(entries),
		TotalEntries: len(entries),
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
