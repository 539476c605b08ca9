// Package types holds the data model shared by every archivist package:
// archive formats, entries, progress snapshots and the password wrapper.
package types

import (
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Format identifies an archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatSevenZip
	FormatRar
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatZip:      "zip",
	FormatTar:      "tar",
	FormatSevenZip: "7z",
	FormatRar:      "rar",
}

// String returns the short lowercase name of the format.
func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Writable reports whether archivist can create archives of this format.
func (f Format) Writable() bool {
	return f == FormatZip || f == FormatTar || f == FormatSevenZip
}

// ParseFormat parses a format name such as "zip", "7z" or "tar".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "7z", "7zip", "sevenzip":
		return FormatSevenZip, nil
	case "rar":
		return FormatRar, nil
	}
	return FormatUnknown, fmt.Errorf("%w: unknown format %q", ErrUnsupportedFormat, s)
}

// Compression is the outer stream compression of a Tar archive.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionXZ
	CompressionZstd
	CompressionLZ4
)

// String returns the conventional name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// Entry describes one member of an archive.
type Entry struct {
	// Path is the slash-separated path inside the archive.
	Path string `json:"path" yaml:"path"`

	// IsDir is true for directory entries.
	IsDir bool `json:"is_dir" yaml:"is_dir"`

	// Size is the uncompressed size in bytes.
	Size uint64 `json:"size" yaml:"size"`

	// CompressedSize is the stored size in bytes, or 0 when the container
	// does not record it per entry.
	CompressedSize uint64 `json:"compressed_size" yaml:"compressed_size"`

	// Encrypted is true when the entry content needs a password.
	Encrypted bool `json:"encrypted" yaml:"encrypted"`

	ModTime time.Time   `json:"mod_time,omitzero" yaml:"mod_time,omitempty"`
	Mode    fs.FileMode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Linkname is the target of a symbolic link entry.
	Linkname string `json:"linkname,omitempty" yaml:"linkname,omitempty"`

	// Synthesized marks directories that were not recorded by the container
	// but are implied by a descendant's path.
	Synthesized bool `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
}

// Name returns the final path element.
func (e Entry) Name() string {
	p := strings.TrimSuffix(e.Path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// IsSymlink reports whether the entry is a symbolic link.
func (e Entry) IsSymlink() bool {
	return e.Mode&fs.ModeSymlink != 0
}

// Progress is an item-granular progress snapshot.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current"`
}

// Percent returns the completion ratio in the range [0, 100].
// A zero total counts as finished.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// Password holds an archive password. It formats as a placeholder so that
// it never ends up in logs or error messages by accident.
type Password string

const redacted = "[redacted]"

// String implements fmt.Stringer.
func (p Password) String() string {
	if p == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer.
func (p Password) GoString() string {
	return p.String()
}

// Reveal returns the password text.
func (p Password) Reveal() string {
	return string(p)
}

// IsSet reports whether a password was supplied.
func (p Password) IsSet() bool {
	return p != ""
}
