package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

var createCmd = &cobra.Command{
	Use:     "create DEST SOURCE...",
	Aliases: []string{"c"},
	Short:   "Create an archive from files and directories",
	Long: `Create an archive at DEST from the given files and directories.

The format comes from --format, else from the extension of DEST, else from
default_format. Each source is stored under its own base name. Passwords
are supported for ZIP (AES-256) and 7z (AES-256); TAR cannot be encrypted.

Examples:
  archivist create out.zip project notes.txt
  archivist create -f tar.zst backup project
  archivist create -p secret -l 9 vault.7z documents`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCreate,
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("format", "f", "", "archive format: zip, 7z, tar, tar.gz, tar.bz2, tar.xz, tar.zst, tar.lz4")
	flags.StringP("password", "p", "", "encrypt with this password")
	flags.IntP("level", "l", 0, "compression level 0 (fastest) to 9 (smallest)")
	flags.String("method", "", "ZIP compression method: lzma, deflate, store")

	_ = viper.BindPFlag("compression.level", flags.Lookup("level"))
	_ = viper.BindPFlag("compression.zip_method", flags.Lookup("method"))

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	dest := args[0]
	formatFlag, _ := cmd.Flags().GetString("format")
	password, _ := cmd.Flags().GetString("password")

	format, compression, err := resolveCreateFormat(formatFlag, dest, appConfig.DefaultFormat)
	if err != nil {
		return err
	}

	req := engine.NewCreate(dest, args[1:]...).WithPassword(types.Password(password))
	req.Create.Format = format
	req.Create.Compression = compression
	return runRequest(req, "Creating")
}
