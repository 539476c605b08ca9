package rar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"time"
	"unicode/utf16"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Archive signatures. Self-extracting archives prepend an executable stub,
// so the signature is searched for near the start of the file.
var (
	sigV4 = []byte("Rar!\x1A\x07\x00")
	sigV5 = []byte("Rar!\x1A\x07\x01\x00")
)

const (
	sfxSearchLimit = 1 << 20
	maxHeaderSize  = 2 << 20
)

// RAR 1.5 to 4.x block types and flags.
const (
	v4BlockMain = 0x73
	v4BlockFile = 0x74
	v4BlockEnd  = 0x7b

	v4LongBlock     = 0x8000
	v4MainPassword  = 0x0080
	v4SplitBefore   = 0x0001
	v4FilePassword  = 0x0004
	v4DirMask       = 0x00e0
	v4LargeFile     = 0x0100
	v4UnicodeName   = 0x0200
	v4FileHeaderLen = 32
)

// RAR 5 header types and flags.
const (
	v5HeaderMain       = 1
	v5HeaderFile       = 2
	v5HeaderEncryption = 4
	v5HeaderEnd        = 5

	v5HasExtra       = 0x0001
	v5HasData        = 0x0002
	v5SplitBefore    = 0x0008
	v5FileDir        = 0x0001
	v5FileMTime      = 0x0002
	v5FileCRC        = 0x0004
	v5ExtraCrypt     = 0x01
	v5ExtraTime      = 0x03
	v5TimeUnix       = 0x0001
	v5TimeMTime      = 0x0002
	v5TimeCTime      = 0x0004
	v5TimeATime      = 0x0008
	v5TimeNanosecond = 0x0010
)

// Host systems whose attributes carry a unix mode.
const (
	v4HostUnix = 3
	v5HostUnix = 1
)

// header is the metadata of one file header.
type header struct {
	name      string
	dir       bool
	size      uint64
	packed    uint64
	modTime   time.Time
	mode      fs.FileMode
	encrypted bool
}

// scanResult is what the header scanner learned about an archive.
type scanResult struct {
	version         int
	headerEncrypted bool
	files           []header
}

func corrupt(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: rar header: %s", types.ErrCorruptArchive, what)
	}
	return fmt.Errorf("%w: rar header: %s: %w", types.ErrCorruptArchive, what, err)
}

// scanFile walks the block headers of the archive at path without
// decoding any content.
func scanFile(path string) (*scanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", types.ErrIO, path, err)
	}

	head := make([]byte, min(info.Size(), sfxSearchLimit))
	if _, err := f.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrIO, path, err)
	}
	// The v4 signature is a prefix of the v5 one.
	i := bytes.Index(head, sigV4[:6])
	if i < 0 || len(head) < i+len(sigV5) {
		return nil, corrupt("signature not found", nil)
	}
	r := &blockReader{r: f, size: info.Size()}
	switch {
	case bytes.Equal(head[i:i+len(sigV5)], sigV5):
		return scanV5(r, int64(i+len(sigV5)))
	case bytes.Equal(head[i:i+len(sigV4)], sigV4):
		return scanV4(r, int64(i+len(sigV4)))
	}
	return nil, corrupt("unknown version", nil)
}

type blockReader struct {
	r    io.ReaderAt
	size int64
}

func (b *blockReader) read(off, n int64) ([]byte, error) {
	if n < 0 || n > maxHeaderSize || off+n > b.size {
		return nil, corrupt(fmt.Sprintf("block of %d bytes at %d", n, off), nil)
	}
	buf := make([]byte, n)
	if _, err := b.r.ReadAt(buf, off); err != nil {
		return nil, corrupt("read block", err)
	}
	return buf, nil
}

func scanV4(r *blockReader, pos int64) (*scanResult, error) {
	res := &scanResult{version: 4}
	for pos+7 <= r.size {
		base, err := r.read(pos, 7)
		if err != nil {
			return nil, err
		}
		typ := base[2]
		flags := binary.LittleEndian.Uint16(base[3:])
		size := int64(binary.LittleEndian.Uint16(base[5:]))
		if size < 7 {
			return nil, corrupt(fmt.Sprintf("block size %d at %d", size, pos), nil)
		}

		var data int64
		switch typ {
		case v4BlockMain:
			if flags&v4MainPassword != 0 {
				res.headerEncrypted = true
				return res, nil
			}
		case v4BlockFile:
			raw, err := r.read(pos, size)
			if err != nil {
				return nil, err
			}
			if crc := uint16(crc32.ChecksumIEEE(raw[2:])); crc != binary.LittleEndian.Uint16(raw) {
				return nil, corrupt(fmt.Sprintf("file header checksum at %d", pos), nil)
			}
			h, packed, err := parseV4File(raw, flags)
			if err != nil {
				return nil, err
			}
			data = int64(packed)
			if flags&v4SplitBefore == 0 {
				res.files = append(res.files, h)
			}
		case v4BlockEnd:
			return res, nil
		default:
			if flags&v4LongBlock != 0 {
				add, err := r.read(pos+7, 4)
				if err != nil {
					return nil, err
				}
				data = int64(binary.LittleEndian.Uint32(add))
			}
		}
		if data < 0 {
			return nil, corrupt("data size overflow", nil)
		}
		pos += size + data
	}
	return res, nil
}

func parseV4File(raw []byte, flags uint16) (header, uint64, error) {
	var h header
	if len(raw) < v4FileHeaderLen {
		return h, 0, corrupt("short file header", nil)
	}
	packed := uint64(binary.LittleEndian.Uint32(raw[7:]))
	h.size = uint64(binary.LittleEndian.Uint32(raw[11:]))
	host := raw[15]
	h.modTime = dosTime(binary.LittleEndian.Uint32(raw[20:]))
	nameLen := int(binary.LittleEndian.Uint16(raw[26:]))
	attr := binary.LittleEndian.Uint32(raw[28:])
	rest := raw[v4FileHeaderLen:]
	if flags&v4LargeFile != 0 {
		if len(rest) < 8 {
			return h, 0, corrupt("short large file header", nil)
		}
		packed |= uint64(binary.LittleEndian.Uint32(rest)) << 32
		h.size |= uint64(binary.LittleEndian.Uint32(rest[4:])) << 32
		rest = rest[8:]
	}
	if nameLen > len(rest) {
		return h, 0, corrupt("name exceeds header", nil)
	}
	name := rest[:nameLen]
	if flags&v4UnicodeName != 0 {
		h.name = decodeV4Name(name)
	} else {
		h.name = string(name)
	}
	h.name = cleanName(h.name)
	h.packed = packed
	h.dir = flags&v4DirMask == v4DirMask
	h.encrypted = flags&v4FilePassword != 0 && !h.dir
	h.mode = modeOf(host == v4HostUnix, uint64(attr), h.dir)
	if h.dir {
		h.size = 0
	}
	return h, packed, nil
}

// decodeV4Name expands a RAR 3 unicode name: an OEM name, a NUL byte and a
// compressed UTF-16 form that refers back into the OEM bytes. Without the
// NUL the name is UTF-8.
func decodeV4Name(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	name, enc := b[:i], b[i+1:]
	if len(enc) == 0 {
		return string(name)
	}

	high := uint16(enc[0])
	enc = enc[1:]
	var out []uint16
	var flags byte
	flagBits := 0
	for len(enc) > 0 {
		if flagBits == 0 {
			flags, enc = enc[0], enc[1:]
			flagBits = 8
			if len(enc) == 0 {
				break
			}
		}
		switch flags >> 6 {
		case 0:
			out = append(out, uint16(enc[0]))
			enc = enc[1:]
		case 1:
			out = append(out, uint16(enc[0])|high<<8)
			enc = enc[1:]
		case 2:
			if len(enc) < 2 {
				return string(name)
			}
			out = append(out, binary.LittleEndian.Uint16(enc))
			enc = enc[2:]
		case 3:
			n := int(enc[0])
			enc = enc[1:]
			if n&0x80 != 0 {
				if len(enc) == 0 {
					return string(name)
				}
				corr := enc[0]
				enc = enc[1:]
				for n = n&0x7f + 2; n > 0 && len(out) < len(name); n-- {
					out = append(out, uint16(name[len(out)]+corr)|high<<8)
				}
			} else {
				for n += 2; n > 0 && len(out) < len(name); n-- {
					out = append(out, uint16(name[len(out)]))
				}
			}
		}
		flags <<= 2
		flagBits -= 2
	}
	return string(utf16.Decode(out))
}

func scanV5(r *blockReader, pos int64) (*scanResult, error) {
	res := &scanResult{version: 5}
	for pos+5 <= r.size {
		// CRC32 and up to three bytes of the header size.
		pre, err := r.read(pos, min(7, r.size-pos))
		if err != nil {
			return nil, err
		}
		headSize, n, err := vint(pre[4:])
		if err != nil {
			return nil, corrupt(fmt.Sprintf("header size at %d", pos), err)
		}
		if headSize == 0 || headSize > maxHeaderSize-8 {
			return nil, corrupt(fmt.Sprintf("header size %d at %d", headSize, pos), nil)
		}
		raw, err := r.read(pos+4, int64(n)+int64(headSize))
		if err != nil {
			return nil, err
		}
		if crc32.ChecksumIEEE(raw) != binary.LittleEndian.Uint32(pre) {
			return nil, corrupt(fmt.Sprintf("header checksum at %d", pos), nil)
		}
		b, err := parseV5Block(raw[n:])
		if err != nil {
			return nil, err
		}

		switch b.typ {
		case v5HeaderEncryption:
			res.headerEncrypted = true
			return res, nil
		case v5HeaderFile:
			h, err := parseV5File(b)
			if err != nil {
				return nil, err
			}
			h.packed = b.dataSize
			if b.flags&v5SplitBefore == 0 {
				res.files = append(res.files, h)
			}
		case v5HeaderEnd:
			return res, nil
		}

		next := pos + 4 + int64(n) + int64(headSize) + int64(b.dataSize)
		if next < pos || b.dataSize > uint64(r.size) {
			return nil, corrupt("data size overflow", nil)
		}
		pos = next
	}
	return res, nil
}

type v5Block struct {
	typ      uint64
	flags    uint64
	dataSize uint64
	body     []byte
	extra    []byte
}

func parseV5Block(b []byte) (v5Block, error) {
	var blk v5Block
	d := &fieldReader{b: b}
	blk.typ = d.vint()
	blk.flags = d.vint()
	var extraSize uint64
	if blk.flags&v5HasExtra != 0 {
		extraSize = d.vint()
	}
	if blk.flags&v5HasData != 0 {
		blk.dataSize = d.vint()
	}
	if d.err != nil {
		return blk, corrupt("block header", d.err)
	}
	if extraSize > uint64(len(d.b)) {
		return blk, corrupt(fmt.Sprintf("extra area of %d bytes", extraSize), nil)
	}
	split := len(d.b) - int(extraSize)
	blk.body, blk.extra = d.b[:split], d.b[split:]
	return blk, nil
}

func parseV5File(b v5Block) (header, error) {
	var h header
	d := &fieldReader{b: b.body}
	fileFlags := d.vint()
	h.size = d.vint()
	attr := d.vint()
	if fileFlags&v5FileMTime != 0 {
		h.modTime = time.Unix(int64(d.uint32()), 0)
	}
	if fileFlags&v5FileCRC != 0 {
		d.uint32()
	}
	d.vint() // compression info
	host := d.vint()
	name := d.bytes(d.vint())
	if d.err != nil {
		return h, corrupt("file header", d.err)
	}
	h.name = cleanName(string(name))
	h.dir = fileFlags&v5FileDir != 0
	h.mode = modeOf(host == v5HostUnix, attr, h.dir)
	if h.dir {
		h.size = 0
	}

	e := &fieldReader{b: b.extra}
	for len(e.b) > 0 && e.err == nil {
		rec := &fieldReader{b: e.bytes(e.vint())}
		switch rec.vint() {
		case v5ExtraCrypt:
			h.encrypted = !h.dir
		case v5ExtraTime:
			if t, ok := parseV5Time(rec); ok {
				h.modTime = t
			}
		}
	}
	if e.err != nil {
		return h, corrupt("extra area", e.err)
	}
	return h, nil
}

// parseV5Time reads the modification time of a file time record. Times
// come in the order mtime, ctime, atime, followed by their nanosecond
// parts when those are present.
func parseV5Time(d *fieldReader) (time.Time, bool) {
	flags := d.vint()
	if flags&v5TimeMTime == 0 {
		return time.Time{}, false
	}
	if flags&v5TimeUnix == 0 {
		ft := d.uint64()
		return time.Unix(0, 0).Add(time.Duration(ft-116444736000000000) * 100), d.err == nil
	}
	sec := d.uint32()
	if flags&v5TimeNanosecond != 0 {
		for _, bit := range []uint64{v5TimeCTime, v5TimeATime} {
			if flags&bit != 0 {
				d.uint32()
			}
		}
		ns := d.uint32()
		return time.Unix(int64(sec), int64(ns)), d.err == nil
	}
	return time.Unix(int64(sec), 0), d.err == nil
}

// fieldReader decodes little endian fields and RAR 5 variable length
// integers, remembering the first error.
type fieldReader struct {
	b   []byte
	err error
}

func (d *fieldReader) vint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := vint(d.b)
	if err != nil {
		d.err = err
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *fieldReader) bytes(n uint64) []byte {
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.b)) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *fieldReader) uint32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *fieldReader) uint64() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// vint decodes a RAR 5 variable length integer: seven bits per byte, low
// bits first, the high bit set on every byte but the last.
func vint(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < len(b) && i < 10; i++ {
		v |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	if len(b) >= 10 {
		return 0, 0, errors.New("variable length integer too long")
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// modeOf derives permission bits from the host attributes. Windows hosts
// only record a read-only bit.
func modeOf(unix bool, attr uint64, dir bool) fs.FileMode {
	var m fs.FileMode
	switch {
	case unix:
		m = fs.FileMode(attr & 0o777)
	case attr&0x01 != 0:
		m = 0o444
	default:
		m = 0o644
	}
	if dir {
		if !unix {
			m = 0o755
		}
		m |= fs.ModeDir
	}
	return m
}

func dosTime(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Date(
		int(v>>25)+1980, time.Month(v>>21&0x0f), int(v>>16&0x1f),
		int(v>>11&0x1f), int(v>>5&0x3f), int(v&0x1f)*2, 0, time.Local,
	)
}
