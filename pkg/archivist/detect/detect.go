// Package detect identifies the container format of an archive from its
// leading bytes, or from its file name when the file does not exist yet.
package detect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

const (
	// sniffLen covers the magic numbers and a RAR signature behind a
	// small self-extractor stub.
	sniffLen = 1024

	// tarMagicOffset is where ustar headers carry their magic.
	tarMagicOffset = 257
)

var (
	magicZip      = [][]byte{[]byte("PK\x03\x04"), []byte("PK\x05\x06"), []byte("PK\x07\x08")}
	magicSevenZip = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	magicRar      = [][]byte{[]byte("Rar!\x1a\x07\x01\x00"), []byte("Rar!\x1a\x07\x00")}
	magicTar      = []byte("ustar")
)

// Info describes one supported format and compression pair.
type Info struct {
	Format      types.Format
	Compression types.Compression
	Extensions  []string
	Read        bool
	Write       bool
}

// Name returns the display name, e.g. "tar.gz".
func (i Info) Name() string {
	if i.Format != types.FormatTar || i.Compression == types.CompressionNone {
		return i.Format.String()
	}
	return "tar." + tarSuffix[i.Compression]
}

var tarSuffix = map[types.Compression]string{
	types.CompressionGzip:  "gz",
	types.CompressionBzip2: "bz2",
	types.CompressionXZ:    "xz",
	types.CompressionZstd:  "zst",
	types.CompressionLZ4:   "lz4",
}

// formats is ordered so that longer extensions are matched first.
var formats = []Info{
	{Format: types.FormatTar, Compression: types.CompressionGzip, Extensions: []string{".tar.gz", ".tgz"}, Read: true, Write: true},
	{Format: types.FormatTar, Compression: types.CompressionBzip2, Extensions: []string{".tar.bz2", ".tbz2", ".tbz"}, Read: true, Write: true},
	{Format: types.FormatTar, Compression: types.CompressionXZ, Extensions: []string{".tar.xz", ".txz"}, Read: true, Write: true},
	{Format: types.FormatTar, Compression: types.CompressionZstd, Extensions: []string{".tar.zst", ".tzst"}, Read: true, Write: true},
	{Format: types.FormatTar, Compression: types.CompressionLZ4, Extensions: []string{".tar.lz4", ".tlz4"}, Read: true, Write: true},
	{Format: types.FormatTar, Compression: types.CompressionNone, Extensions: []string{".tar"}, Read: true, Write: true},
	{Format: types.FormatZip, Extensions: []string{".zip", ".zipx", ".jar"}, Read: true, Write: true},
	{Format: types.FormatSevenZip, Extensions: []string{".7z"}, Read: true, Write: true},
	{Format: types.FormatRar, Extensions: []string{".rar"}, Read: true},
}

// Formats returns every supported format in display order.
func Formats() []Info {
	out := make([]Info, len(formats))
	copy(out, formats)
	return out
}

// ReadExtensions returns the file name extensions archivist can open.
func ReadExtensions() []string {
	var out []string
	for _, f := range formats {
		if f.Read {
			out = append(out, f.Extensions...)
		}
	}
	return out
}

// FromExtension maps a file name onto a format by its extension.
func FromExtension(path string) (types.Format, types.Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	for _, f := range formats {
		for _, ext := range f.Extensions {
			if strings.HasSuffix(name, ext) && len(name) > len(ext) {
				return f.Format, f.Compression, nil
			}
		}
	}
	return types.FormatUnknown, types.CompressionNone,
		fmt.Errorf("%w: no format for file name %q", types.ErrUnsupportedFormat, filepath.Base(path))
}

// Detect identifies the archive at path. Existing files are sniffed; the
// extension is consulted for files that do not exist and, for tar, to
// accept compressed streams whose first header lacks the ustar magic.
func Detect(path string) (types.Format, types.Compression, error) {
	f, c, err := Sniff(path)
	if err == nil {
		return f, c, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return FromExtension(path)
	}
	return types.FormatUnknown, types.CompressionNone, err
}

// Sniff reads the start of the file at path and matches magic numbers.
func Sniff(path string) (types.Format, types.Compression, error) {
	file, err := os.Open(path)
	if err != nil {
		return types.FormatUnknown, types.CompressionNone, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
	}
	defer file.Close()

	prefix := make([]byte, sniffLen)
	n, err := io.ReadFull(file, prefix)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return types.FormatUnknown, types.CompressionNone, fmt.Errorf("%w: read %s: %w", types.ErrIO, path, err)
	}
	prefix = prefix[:n]

	if f, ok := sniffContainer(prefix); ok {
		return f, types.CompressionNone, nil
	}

	if c, ok := codec.Sniff(prefix); ok {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return types.FormatUnknown, types.CompressionNone, fmt.Errorf("%w: seek %s: %w", types.ErrIO, path, err)
		}
		if isTarStream(c, file) {
			return types.FormatTar, c, nil
		}
		if ef, ec, err := FromExtension(path); err == nil && ef == types.FormatTar && ec == c {
			return ef, ec, nil
		}
		return types.FormatUnknown, types.CompressionNone,
			fmt.Errorf("%w: %s is a %s stream without a tar archive inside", types.ErrUnsupportedFormat, path, c)
	}

	if hasTarMagic(prefix) {
		return types.FormatTar, types.CompressionNone, nil
	}
	// Pre-POSIX tar headers carry no magic.
	if ef, ec, err := FromExtension(path); err == nil && ef == types.FormatTar && ec == types.CompressionNone && n >= 512 {
		return ef, ec, nil
	}
	return types.FormatUnknown, types.CompressionNone,
		fmt.Errorf("%w: unrecognised content in %s", types.ErrUnsupportedFormat, path)
}

func sniffContainer(prefix []byte) (types.Format, bool) {
	for _, m := range magicZip {
		if bytes.HasPrefix(prefix, m) {
			return types.FormatZip, true
		}
	}
	if bytes.HasPrefix(prefix, magicSevenZip) {
		return types.FormatSevenZip, true
	}
	for _, m := range magicRar {
		if bytes.Contains(prefix, m) {
			return types.FormatRar, true
		}
	}
	return types.FormatUnknown, false
}

func hasTarMagic(b []byte) bool {
	return len(b) >= tarMagicOffset+len(magicTar) &&
		bytes.Equal(b[tarMagicOffset:tarMagicOffset+len(magicTar)], magicTar)
}

// isTarStream decompresses the first block of r and looks for the ustar
// magic.
func isTarStream(c types.Compression, r io.Reader) bool {
	zr, err := codec.NewReader(c, r)
	if err != nil {
		return false
	}
	defer zr.Close()
	block := make([]byte, 512)
	if _, err := io.ReadFull(zr, block); err != nil {
		return false
	}
	return hasTarMagic(block)
}
