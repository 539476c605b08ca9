// Package zip reads and writes ZIP archives. Entry data is always pulled
// through the raw stream so that archivist controls decryption (WinZip AES
// and legacy ZipCrypto), the compression methods beyond store and deflate,
// and CRC verification.
package zip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/klauspost/compress/flate"
	kzip "github.com/klauspost/compress/zip"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Compression methods.
const (
	methodStore   uint16 = 0
	methodDeflate uint16 = 8
	methodBzip2   uint16 = 12
	methodLZMA    uint16 = 14
	methodZstd    uint16 = 93
	methodXZ      uint16 = 95
	methodAES     uint16 = 99
)

// General purpose flags.
const (
	flagEncrypted  uint16 = 0x1
	flagLZMAEOS    uint16 = 0x2
	flagDescriptor uint16 = 0x8
	flagUTF8       uint16 = 0x800
)

const (
	aesExtraID     = 0x9901
	extTimeExtraID = 0x5455
)

// Archive is an opened ZIP file.
type Archive struct {
	rc       *kzip.ReadCloser
	password types.Password
}

var _ container.Archive = (*Archive)(nil)

// Open reads the central directory of the ZIP file at path. No password is
// needed to open or list; it is only consulted when encrypted content is
// read.
func Open(path string, opts container.ReadOptions) (*Archive, error) {
	rc, err := kzip.OpenReader(path)
	// Non-local names are checked at extraction time.
	if err != nil && !errors.Is(err, kzip.ErrInsecurePath) {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
		}
		return nil, fmt.Errorf("%w: read zip directory: %w", types.ErrCorruptArchive, err)
	}
	return &Archive{rc: rc, password: opts.Password}, nil
}

// Close releases the file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Entries lists the central directory in recorded order.
func (a *Archive) Entries(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for _, f := range a.rc.File {
			if err := ctx.Err(); err != nil {
				yield(types.Entry{}, fmt.Errorf("%w: %w", types.ErrCancelled, err))
				return
			}
			if !yield(entryOf(f), nil) {
				return
			}
		}
	}
}

// Walk visits every entry with access to its decoded content.
func (a *Archive) Walk(ctx context.Context, fn container.WalkFunc) error {
	for _, f := range a.rc.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		e := entryOf(f)
		if err := fn(e, func() (io.ReadCloser, error) { return a.open(f, e) }); err != nil {
			return err
		}
	}
	return nil
}

func entryOf(f *kzip.File) types.Entry {
	name := strings.ReplaceAll(f.Name, `\`, "/")
	mode := f.Mode()
	isDir := strings.HasSuffix(name, "/") || mode.IsDir()

	e := types.Entry{
		Path:           strings.TrimSuffix(name, "/"),
		IsDir:          isDir,
		Encrypted:      f.Flags&flagEncrypted != 0,
		ModTime:        f.Modified,
		Mode:           mode.Perm(),
		CompressedSize: f.CompressedSize64,
	}
	if isDir {
		e.Mode |= fs.ModeDir
		e.CompressedSize = 0
	} else {
		// Links stored in a ZIP are restored as regular files holding the
		// target path.
		e.Size = f.UncompressedSize64
	}
	return e
}

// aesInfo is the content of the WinZip AES extra field.
type aesInfo struct {
	version  uint16
	strength int
	method   uint16
}

func parseAESExtra(extra []byte) (aesInfo, error) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			break
		}
		if id == aesExtraID && size >= 7 {
			b := extra[:size]
			return aesInfo{
				version:  binary.LittleEndian.Uint16(b),
				strength: int(b[4]),
				method:   binary.LittleEndian.Uint16(b[5:]),
			}, nil
		}
		extra = extra[size:]
	}
	return aesInfo{}, fmt.Errorf("%w: aes entry without 0x9901 extra field", types.ErrCorruptArchive)
}

// zipCryptoCheck returns the byte the decrypted ZipCrypto header must end
// with.
func zipCryptoCheck(f *kzip.File) byte {
	if f.Flags&flagDescriptor != 0 {
		return byte(f.ModifiedTime >> 8) //nolint:staticcheck // the DOS field is what the check byte is derived from
	}
	return byte(f.CRC32 >> 24)
}

func (a *Archive) open(f *kzip.File, e types.Entry) (io.ReadCloser, error) {
	if e.IsDir {
		return io.NopCloser(strings.NewReader("")), nil
	}
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrCorruptArchive, f.Name, err)
	}

	er := &entryReader{name: f.Name, encrypted: e.Encrypted}
	src := raw
	method := f.Method
	checkCRC := true

	if e.Encrypted {
		if !a.password.IsSet() {
			return nil, fmt.Errorf("%w: %s is encrypted", types.ErrPasswordRequired, f.Name)
		}
		if f.Method == methodAES {
			info, err := parseAESExtra(f.Extra)
			if err != nil {
				return nil, err
			}
			wz, err := crypto.NewWinZipReader(raw, a.password, info.strength, int64(f.CompressedSize64))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			src, er.tail = wz, wz
			method = info.method
			// AE-2 stores no CRC; the authentication code covers the data.
			checkCRC = info.version == 1
		} else {
			zr, err := crypto.NewZipCryptoReader(raw, a.password, zipCryptoCheck(f))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			src = zr
		}
	}

	rc, err := decompressor(method, src, f)
	if err != nil {
		return nil, er.classify(err)
	}
	er.closer = rc
	er.r = rc
	if checkCRC {
		er.r = codec.NewCRCReader(rc, f.CRC32)
	}
	return er, nil
}

func decompressor(method uint16, r io.Reader, f *kzip.File) (io.ReadCloser, error) {
	switch method {
	case methodStore:
		return io.NopCloser(r), nil
	case methodDeflate:
		return flate.NewReader(r), nil
	case methodBzip2:
		return codec.NewReader(types.CompressionBzip2, r)
	case methodLZMA:
		return codec.NewZipLZMAReader(r, f.UncompressedSize64, f.Flags&flagLZMAEOS != 0)
	case methodZstd:
		return codec.NewReader(types.CompressionZstd, r)
	case methodXZ:
		return codec.NewReader(types.CompressionXZ, r)
	}
	return nil, fmt.Errorf("%w: zip compression method %d", types.ErrUnsupportedFormat, method)
}

// entryReader maps decode failures onto the error kinds and, for WinZip
// AES, drains the cipher stream so its authentication code is checked.
type entryReader struct {
	name      string
	encrypted bool
	r         io.Reader
	closer    io.Closer
	tail      io.Reader
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == io.EOF && r.tail != nil {
		tail := r.tail
		r.tail = nil
		if _, terr := io.Copy(io.Discard, tail); terr != nil {
			return n, r.classify(terr)
		}
	}
	if err != nil && err != io.EOF {
		return n, r.classify(err)
	}
	return n, err
}

func (r *entryReader) Close() error {
	return r.closer.Close()
}

// classify turns a decode failure into an error kind. Garbage produced by
// a wrong password is indistinguishable from corruption, so failures on
// encrypted entries are reported as a password problem.
func (r *entryReader) classify(err error) error {
	switch {
	case types.IsPasswordError(err), errors.Is(err, types.ErrCancelled):
		return err
	case r.encrypted:
		return fmt.Errorf("%w: %s: %w", types.ErrIncorrectPassword, r.name, err)
	case types.KindOf(err) != nil:
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrCorruptArchive, r.name, err)
}
