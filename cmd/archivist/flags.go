package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jamesainslie/archivist/pkg/archivist/detect"
	"github.com/jamesainslie/archivist/pkg/archivist/filter"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// buildFilter creates a filter.Filter from the list flags.
func buildFilter() (*filter.Filter, error) {
	var opts []filter.Option

	if include := viper.GetStringSlice("include"); len(include) > 0 {
		opts = append(opts, filter.WithInclude(include...))
	}
	if exclude := viper.GetStringSlice("exclude"); len(exclude) > 0 {
		opts = append(opts, filter.WithExclude(exclude...))
	}
	if exts := viper.GetStringSlice("ext"); len(exts) > 0 {
		opts = append(opts, filter.WithExtensions(exts...))
	}
	opts = append(opts, filter.WithFilesOnly(viper.GetBool("files_only")))

	if minSizeStr := viper.GetString("min_size"); minSizeStr != "" {
		minSize, err := types.ParseSize(minSizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid min-size %q: %w", minSizeStr, err)
		}
		opts = append(opts, filter.WithMinSize(uint64(minSize)))
	}

	if depth := viper.GetInt("max_depth"); depth > 0 {
		opts = append(opts, filter.WithMaxDepth(depth))
	}

	if sortStr := viper.GetString("sort"); sortStr != "" {
		field, err := filter.ParseSortField(sortStr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filter.WithSortBy(field))
	}
	opts = append(opts, filter.WithSortDescending(viper.GetBool("reverse")))

	if limit := viper.GetInt("limit"); limit > 0 {
		opts = append(opts, filter.WithLimit(limit))
	}

	f := filter.New(opts...)
	if err := f.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseFormatFlag maps a --format value such as "7z" or "tar.gz" onto a
// writable format. An empty value returns FormatUnknown.
func parseFormatFlag(s string) (types.Format, types.Compression, error) {
	if s == "" {
		return types.FormatUnknown, types.CompressionNone, nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, info := range detect.Formats() {
		if info.Name() == s && info.Write {
			return info.Format, info.Compression, nil
		}
	}
	if f, err := types.ParseFormat(s); err == nil && f.Writable() {
		return f, types.CompressionNone, nil
	}
	var names []string
	for _, info := range detect.Formats() {
		if info.Write {
			names = append(names, info.Name())
		}
	}
	return types.FormatUnknown, types.CompressionNone,
		fmt.Errorf("%w: format %q (writable formats: %v)", types.ErrUnsupportedFormat, s, names)
}

// resolveCreateFormat picks the container for dest: the explicit flag,
// else the extension, else the configured default format.
func resolveCreateFormat(flag, dest, fallback string) (types.Format, types.Compression, error) {
	if flag != "" {
		return parseFormatFlag(flag)
	}
	if _, _, err := detect.FromExtension(dest); err == nil {
		return types.FormatUnknown, types.CompressionNone, nil
	}
	return parseFormatFlag(fallback)
}

// formatName returns the display name of a detected format.
func formatName(f types.Format, c types.Compression) string {
	return detect.Info{Format: f, Compression: c}.Name()
}
