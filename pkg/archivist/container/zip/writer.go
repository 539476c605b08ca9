package zip

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	kzip "github.com/klauspost/compress/zip"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Version fields written for WinZip AES entries: 5.1 is the minimum
// version for AES, 6.3 the version that introduced LZMA.
const (
	aesReaderVersion  = 51
	aesCreatorVersion = 63
)

// Writer creates ZIP archives.
type Writer struct{}

var _ container.Writer = Writer{}

// NewWriter returns a ZIP writer.
func NewWriter() Writer {
	return Writer{}
}

// ParseMethod maps a method name to its ZIP method number.
func ParseMethod(name string) (uint16, error) {
	switch strings.ToLower(name) {
	case "", "lzma":
		return methodLZMA, nil
	case "deflate":
		return methodDeflate, nil
	case "store":
		return methodStore, nil
	}
	return 0, fmt.Errorf("%w: zip method %q", types.ErrInvalidRequest, name)
}

// Write stores the groups in a new archive at dest. With a password every
// file entry is encrypted with WinZip AES-256.
func (Writer) Write(ctx context.Context, dest string, groups []container.Group, opts container.WriteOptions, progress func(types.Progress)) error {
	method, err := ParseMethod(opts.Method)
	if err != nil {
		return err
	}
	log := logging.Get("container")

	return container.CreateFile(dest, func(f *os.File) error {
		zw := kzip.NewWriter(f)
		zw.RegisterCompressor(methodLZMA, func(w io.Writer) (io.WriteCloser, error) {
			return codec.NewZipLZMAWriter(w, opts.Level)
		})
		zw.RegisterCompressor(methodDeflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, deflateLevel(opts.Level))
		})

		for i, g := range groups {
			for _, it := range g.Items {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %w", types.ErrCancelled, err)
				}
				if !it.IsDir() && !it.IsRegular() {
					log.Warn("skipping non-regular file", "path", it.Path, "mode", it.Info.Mode().String())
					continue
				}
				if err := addItem(zw, it, method, opts); err != nil {
					return fmt.Errorf("add %s: %w", it.Name, err)
				}
			}
			container.ReportGroup(progress, i+1, len(groups), g)
		}

		if err := zw.Close(); err != nil {
			return fmt.Errorf("%w: finish zip: %w", types.ErrIO, err)
		}
		return nil
	})
}

func deflateLevel(level int) int {
	return min(max(level, flate.NoCompression), flate.BestCompression)
}

func addItem(zw *kzip.Writer, it container.Item, method uint16, opts container.WriteOptions) error {
	hdr := &kzip.FileHeader{Name: it.Name, Modified: it.Info.ModTime()}
	if it.IsDir() {
		hdr.Name += "/"
		hdr.SetMode(it.Info.Mode())
		if _, err := zw.CreateHeader(hdr); err != nil {
			return fmt.Errorf("%w: %w", types.ErrIO, err)
		}
		return nil
	}

	if it.Info.Size() == 0 {
		method = methodStore
	}
	if opts.Password.IsSet() {
		return addEncrypted(zw, hdr, it, method, opts)
	}

	hdr.SetMode(it.Info.Mode())
	hdr.Method = method
	if method == methodLZMA {
		hdr.Flags |= flagLZMAEOS
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return copyFile(w, it.Path)
}

func copyFile(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return nil
}

// addEncrypted compresses the file into a spool, then writes it as a raw
// AE-2 entry. The sizes must be known before the local header is written.
func addEncrypted(zw *kzip.Writer, hdr *kzip.FileHeader, it container.Item, method uint16, opts container.WriteOptions) error {
	spool, err := os.CreateTemp("", "archivist-zip-*")
	if err != nil {
		return fmt.Errorf("%w: create spool: %w", types.ErrIO, err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := compressInto(spool, it.Path, method, opts.Level)
	if err != nil {
		return err
	}
	packed, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}

	mod := it.Info.ModTime()
	hdr.CreatorVersion = aesCreatorVersion
	hdr.SetMode(it.Info.Mode())
	hdr.ReaderVersion = aesReaderVersion
	hdr.Method = methodAES
	hdr.Flags = flagEncrypted
	if method == methodLZMA {
		hdr.Flags |= flagLZMAEOS
	}
	if !isASCII(hdr.Name) && utf8.ValidString(hdr.Name) {
		hdr.Flags |= flagUTF8
	}
	hdr.ModifiedDate, hdr.ModifiedTime = msDosTime(mod) //nolint:staticcheck // CreateRaw does not derive them from Modified
	hdr.CRC32 = 0
	hdr.UncompressedSize64 = uint64(size)
	hdr.CompressedSize64 = uint64(packed) + uint64(crypto.WinZipOverhead(crypto.AESStrength256))
	hdr.Extra = append(aesExtra(method), extTimeExtra(mod)...)

	raw, err := zw.CreateRaw(hdr)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	ew, err := crypto.NewWinZipWriter(raw, opts.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if _, err := io.Copy(ew, spool); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return nil
}

// compressInto writes the compressed content of path to w and returns the
// uncompressed size.
func compressInto(w io.Writer, path string, method uint16, level int) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	defer src.Close()

	var cw io.WriteCloser
	switch method {
	case methodLZMA:
		cw, err = codec.NewZipLZMAWriter(w, level)
	case methodDeflate:
		cw, err = flate.NewWriter(w, deflateLevel(level))
	default:
		cw, err = codec.NewWriter(types.CompressionNone, w, level)
	}
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(cw, src)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return n, nil
}

// aesExtra builds the 0x9901 extra field for an AE-2, AES-256 entry.
func aesExtra(method uint16) []byte {
	b := make([]byte, 0, 11)
	b = binary.LittleEndian.AppendUint16(b, aesExtraID)
	b = binary.LittleEndian.AppendUint16(b, 7)
	b = binary.LittleEndian.AppendUint16(b, 2)
	b = append(b, 'A', 'E', crypto.AESStrength256)
	return binary.LittleEndian.AppendUint16(b, method)
}

// extTimeExtra builds the Info-ZIP extended timestamp field, the same one
// CreateHeader writes.
func extTimeExtra(t time.Time) []byte {
	b := make([]byte, 0, 9)
	b = binary.LittleEndian.AppendUint16(b, extTimeExtraID)
	b = binary.LittleEndian.AppendUint16(b, 5)
	b = append(b, 1)
	return binary.LittleEndian.AppendUint32(b, uint32(t.Unix()))
}

func msDosTime(t time.Time) (date, clock uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, t.Location())
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	clock = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, clock
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
