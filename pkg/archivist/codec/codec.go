// Package codec provides the compression streams used by the containers:
// tar outer compressions, the LZMA variants used inside ZIP and 7-Zip, and
// checksum verification for decoded content.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// DefaultLevel is the compression level used when none is configured.
const DefaultLevel = 6

// Magic byte prefixes of the supported stream compressions.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXZ    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Sniff identifies a stream compression from the first bytes of a file.
// It returns false when prefix matches none of them.
func Sniff(prefix []byte) (types.Compression, bool) {
	switch {
	case bytes.HasPrefix(prefix, magicGzip):
		return types.CompressionGzip, true
	case bytes.HasPrefix(prefix, magicBzip2):
		return types.CompressionBzip2, true
	case bytes.HasPrefix(prefix, magicXZ):
		return types.CompressionXZ, true
	case bytes.HasPrefix(prefix, magicZstd):
		return types.CompressionZstd, true
	case bytes.HasPrefix(prefix, magicLZ4):
		return types.CompressionLZ4, true
	}
	return types.CompressionNone, false
}

// NewReader wraps r with a decompressor for c. CompressionNone returns r
// unchanged apart from a no-op Close.
func NewReader(c types.Compression, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case types.CompressionNone:
		return io.NopCloser(r), nil
	case types.CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, corrupt("gzip", err)
		}
		return zr, nil
	case types.CompressionBzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, corrupt("bzip2", err)
		}
		return br, nil
	case types.CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, corrupt("xz", err)
		}
		return io.NopCloser(xr), nil
	case types.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, corrupt("zstd", err)
		}
		return zr.IOReadCloser(), nil
	case types.CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("%w: compression %s", types.ErrUnsupportedFormat, c)
}

// NewWriter wraps w with a compressor for c at the given level (0-9).
// Closing the returned writer flushes the stream but does not close w.
func NewWriter(c types.Compression, w io.Writer, level int) (io.WriteCloser, error) {
	level = clampLevel(level)
	switch c {
	case types.CompressionNone:
		return nopWriteCloser{w}, nil
	case types.CompressionGzip:
		return gzip.NewWriterLevel(w, max(level, 1))
	case types.CompressionBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: max(level, 1)})
	case types.CompressionXZ:
		return xz.WriterConfig{DictCap: DictCapForLevel(level)}.NewWriter(w)
	case types.CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel(level))))
	case types.CompressionLZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, fmt.Errorf("configure lz4: %w", err)
		}
		return lw, nil
	}
	return nil, fmt.Errorf("%w: compression %s", types.ErrUnsupportedFormat, c)
}

// DictCapForLevel maps a 0-9 level to an LZMA dictionary size, following
// the 7-Zip presets (64 KiB at level 0 up to 64 MiB at level 9).
func DictCapForLevel(level int) int {
	switch clampLevel(level) {
	case 0:
		return 64 << 10
	case 1:
		return 1 << 20
	case 2, 3:
		return 4 << 20
	case 4, 5, 6:
		return 8 << 20
	case 7:
		return 16 << 20
	case 8:
		return 32 << 20
	default:
		return 64 << 20
	}
}

func clampLevel(level int) int {
	return min(max(level, 0), 9)
}

func zstdLevel(level int) int {
	// zstd levels run 1..22; keep the fast end for low levels.
	return []int{1, 1, 2, 3, 3, 5, 7, 11, 15, 19}[level]
}

func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 1:
		return lz4.Fast
	case level <= 3:
		return lz4.Level3
	case level <= 6:
		return lz4.Level5
	default:
		return lz4.Level9
	}
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s stream: %w", types.ErrCorruptArchive, what, err)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// ErrChecksum is wrapped into the error returned when decoded content does
// not match its recorded CRC32.
var ErrChecksum = errors.New("checksum mismatch")
