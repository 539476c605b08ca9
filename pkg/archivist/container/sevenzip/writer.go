package sevenzip

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Windows attribute bits, plus the p7zip extension that carries a unix
// mode in the high 16 bits.
const (
	attrReadOnly      = 0x01
	attrDirectory     = 0x10
	attrArchive       = 0x20
	attrUnixExtension = 0x8000

	unixDir  = 0o040000
	unixFile = 0o100000
)

// filetimeEpoch is the unix epoch in 100ns ticks since 1601-01-01.
const filetimeEpoch = 116444736000000000

// Writer creates 7z archives with a single solid LZMA2 folder, encrypted
// with 7zAES when a password is set. Headers are stored unencrypted.
type Writer struct{}

var _ container.Writer = Writer{}

// NewWriter returns a 7z writer.
func NewWriter() Writer {
	return Writer{}
}

type fileRecord struct {
	name    string
	dir     bool
	size    uint64
	crc     uint32
	modTime time.Time
	mode    fs.FileMode
}

func (r fileRecord) hasStream() bool {
	return !r.dir && r.size > 0
}

// Write stores the groups in a new archive at dest.
func (Writer) Write(ctx context.Context, dest string, groups []container.Group, opts container.WriteOptions, progress func(types.Progress)) error {
	log := logging.Get("container")

	return container.CreateFile(dest, func(f *os.File) error {
		if _, err := f.Write(make([]byte, signatureHeaderLen)); err != nil {
			return fmt.Errorf("%w: %w", types.ErrIO, err)
		}
		fw := &folderWriter{out: &countWriter{w: f}, opts: opts}

		var files []fileRecord
		for i, g := range groups {
			for _, it := range g.Items {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %w", types.ErrCancelled, err)
				}
				rec := fileRecord{name: it.Name, dir: it.IsDir(), modTime: it.Info.ModTime(), mode: it.Info.Mode()}
				switch {
				case it.IsDir():
				case it.IsRegular():
					if it.Info.Size() > 0 {
						size, crc, err := fw.add(it.Path)
						if err != nil {
							return fmt.Errorf("add %s: %w", it.Name, err)
						}
						rec.size, rec.crc = size, crc
					}
				default:
					log.Warn("skipping non-regular file", "path", it.Path, "mode", it.Info.Mode().String())
					continue
				}
				files = append(files, rec)
			}
			container.ReportGroup(progress, i+1, len(groups), g)
		}

		if err := fw.close(); err != nil {
			return err
		}
		hdr, err := encodeHeader(files, fw)
		if err != nil {
			return err
		}
		if _, err := f.Write(hdr); err != nil {
			return fmt.Errorf("%w: write header: %w", types.ErrIO, err)
		}
		if _, err := f.WriteAt(signatureHeader(fw.out.n, hdr), 0); err != nil {
			return fmt.Errorf("%w: write signature header: %w", types.ErrIO, err)
		}
		return nil
	})
}

func signatureHeader(headerOffset int64, hdr []byte) []byte {
	b := make([]byte, signatureHeaderLen)
	copy(b, signature)
	b[6], b[7] = 0, 4
	binary.LittleEndian.PutUint64(b[12:], uint64(headerOffset))
	binary.LittleEndian.PutUint64(b[20:], uint64(len(hdr)))
	binary.LittleEndian.PutUint32(b[28:], crc32.ChecksumIEEE(hdr))
	binary.LittleEndian.PutUint32(b[8:], crc32.ChecksumIEEE(b[12:]))
	return b
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// folderWriter feeds file contents through LZMA2 and, with a password,
// 7zAES. The coder chain is created with the first stream.
type folderWriter struct {
	out  *countWriter
	opts container.WriteOptions

	lzma2   io.WriteCloser
	coded   *countWriter
	enc     *crypto.SevenZipWriter
	params  crypto.SevenZipParams
	dict    byte
	total   uint64
	started bool
}

func (fw *folderWriter) start() error {
	sink := io.Writer(fw.out)
	if fw.opts.Password.IsSet() {
		params, err := crypto.NewSevenZipParams()
		if err != nil {
			return err
		}
		key, err := crypto.SevenZipKey(fw.opts.Password, params)
		if err != nil {
			return err
		}
		if fw.enc, err = crypto.NewSevenZipWriter(fw.out, key, params); err != nil {
			return err
		}
		fw.params = params
		sink = fw.enc
	}
	fw.coded = &countWriter{w: sink}

	dictCap := codec.DictCapForLevel(fw.opts.Level)
	fw.dict = codec.LZMA2DictProp(dictCap)
	lw, err := codec.NewLZMA2Writer(fw.coded, dictCap)
	if err != nil {
		return err
	}
	fw.lzma2 = lw
	fw.started = true
	return nil
}

func (fw *folderWriter) add(path string) (uint64, uint32, error) {
	if !fw.started {
		if err := fw.start(); err != nil {
			return 0, 0, err
		}
	}
	src, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	defer src.Close()

	h := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(fw.lzma2, h), src)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	fw.total += uint64(n)
	return uint64(n), h.Sum32(), nil
}

func (fw *folderWriter) close() error {
	if !fw.started {
		return nil
	}
	if err := fw.lzma2.Close(); err != nil {
		return fmt.Errorf("%w: finish lzma2 stream: %w", types.ErrIO, err)
	}
	if fw.enc != nil {
		if err := fw.enc.Close(); err != nil {
			return fmt.Errorf("%w: finish aes stream: %w", types.ErrIO, err)
		}
	}
	return nil
}

// appendFolder encodes the coder chain. With encryption the packed stream
// enters 7zAES (coder 0) whose output is bound to the LZMA2 input (coder
// 1); 7-Zip lists coders in this order.
func (fw *folderWriter) appendFolder(b []byte) []byte {
	lzma2 := append([]byte{0x20 | byte(len(coderLZMA2))}, coderLZMA2...)
	lzma2 = append(lzma2, 1, fw.dict)
	if fw.enc == nil {
		b = appendNumber(b, 1)
		return append(b, lzma2...)
	}

	props := fw.params.Marshal()
	b = appendNumber(b, 2)
	b = append(b, 0x20|byte(len(crypto.SevenZipAESMethod)))
	b = append(b, crypto.SevenZipAESMethod...)
	b = appendNumber(b, uint64(len(props)))
	b = append(b, props...)
	b = append(b, lzma2...)
	// Bind pair: LZMA2 input 1 reads AES output 0.
	b = appendNumber(b, 1)
	return appendNumber(b, 0)
}

func (fw *folderWriter) unpackSizes() []uint64 {
	if fw.enc == nil {
		return []uint64{fw.total}
	}
	return []uint64{uint64(fw.coded.n), fw.total}
}

func encodeHeader(files []fileRecord, fw *folderWriter) ([]byte, error) {
	var streams []fileRecord
	for _, f := range files {
		if f.hasStream() {
			streams = append(streams, f)
		}
	}

	b := []byte{idHeader}
	if len(streams) > 0 {
		b = append(b, idMainStreams)

		b = append(b, idPackInfo)
		b = appendNumber(b, 0)
		b = appendNumber(b, 1)
		b = append(b, idSize)
		b = appendNumber(b, uint64(fw.out.n))
		b = append(b, idEnd)

		b = append(b, idUnpackInfo, idFolder)
		b = appendNumber(b, 1)
		b = append(b, 0)
		b = fw.appendFolder(b)
		b = append(b, idCodersUnpackSize)
		for _, s := range fw.unpackSizes() {
			b = appendNumber(b, s)
		}
		b = append(b, idEnd)

		b = append(b, idSubStreams, idNumUnpackStream)
		b = appendNumber(b, uint64(len(streams)))
		if len(streams) > 1 {
			b = append(b, idSize)
			for _, s := range streams[:len(streams)-1] {
				b = appendNumber(b, s.size)
			}
		}
		b = append(b, idCRC, 1)
		for _, s := range streams {
			b = binary.LittleEndian.AppendUint32(b, s.crc)
		}
		b = append(b, idEnd)

		b = append(b, idEnd)
	}

	if len(files) > 0 {
		props, err := encodeFilesInfo(files)
		if err != nil {
			return nil, err
		}
		b = append(b, idFilesInfo)
		b = appendNumber(b, uint64(len(files)))
		b = append(b, props...)
	}
	return append(b, idEnd), nil
}

func appendProperty(b []byte, id byte, data []byte) []byte {
	b = appendNumber(b, uint64(id))
	b = appendNumber(b, uint64(len(data)))
	return append(b, data...)
}

func encodeFilesInfo(files []fileRecord) ([]byte, error) {
	var (
		emptyStream []bool
		emptyFile   []bool
		anyEmpty    bool
		anyFile     bool
	)
	for _, f := range files {
		empty := !f.hasStream()
		emptyStream = append(emptyStream, empty)
		if empty {
			anyEmpty = true
			emptyFile = append(emptyFile, !f.dir)
			anyFile = anyFile || !f.dir
		}
	}

	var b []byte
	if anyEmpty {
		b = appendProperty(b, idEmptyStream, appendBits(nil, emptyStream))
		if anyFile {
			b = appendProperty(b, idEmptyFile, appendBits(nil, emptyFile))
		}
	}

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	names := []byte{0}
	for _, f := range files {
		u, err := enc.Bytes([]byte(f.name))
		if err != nil {
			return nil, fmt.Errorf("%w: encode name %q: %w", types.ErrInvalidRequest, f.name, err)
		}
		names = append(names, u...)
		names = append(names, 0, 0)
	}
	b = appendProperty(b, idName, names)

	times := []byte{1, 0}
	for _, f := range files {
		times = binary.LittleEndian.AppendUint64(times, filetime(f.modTime))
	}
	b = appendProperty(b, idMTime, times)

	attrs := []byte{1, 0}
	for _, f := range files {
		attrs = binary.LittleEndian.AppendUint32(attrs, attributes(f))
	}
	b = appendProperty(b, idAttributes, attrs)

	return append(b, idEnd), nil
}

func filetime(t time.Time) uint64 {
	if t.IsZero() {
		return filetimeEpoch
	}
	return uint64(t.UnixNano()/100 + filetimeEpoch)
}

func attributes(f fileRecord) uint32 {
	perm := uint32(f.mode.Perm())
	a := uint32(attrUnixExtension)
	if f.dir {
		a |= attrDirectory | (unixDir|perm)<<16
	} else {
		a |= attrArchive | (unixFile|perm)<<16
	}
	if perm&0o200 == 0 {
		a |= attrReadOnly
	}
	return a
}
