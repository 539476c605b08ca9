package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

const (
	// lzmaHeaderLen is the size of the classic .lzma header: one properties
	// byte, a 32-bit dictionary size and a 64-bit uncompressed size.
	lzmaHeaderLen = 13

	// lzmaPropsLen is the size of the properties blob used by ZIP and 7-Zip.
	lzmaPropsLen = 5
)

// zipLZMAVersion is the LZMA SDK version stamped into ZIP LZMA streams.
var zipLZMAVersion = []byte{9, 20}

// NewZipLZMAWriter returns a writer producing an LZMA stream in the layout
// ZIP method 14 expects: a 4 byte preamble, the 5 byte properties and raw
// LZMA data ending with an end-of-stream marker. The caller must set general
// purpose flag bit 1 on the entry.
func NewZipLZMAWriter(w io.Writer, level int) (io.WriteCloser, error) {
	cfg := lzma.WriterConfig{
		Properties: &lzma.Properties{LC: 3, LP: 0, PB: 2},
		DictCap:    DictCapForLevel(level),
		Size:       -1,
		EOSMarker:  true,
	}
	lw, err := cfg.NewWriter(&zipLZMAHeader{w: w})
	if err != nil {
		return nil, fmt.Errorf("create lzma writer: %w", err)
	}
	return lw, nil
}

// zipLZMAHeader swaps the 13 byte .lzma header for the ZIP preamble.
type zipLZMAHeader struct {
	w    io.Writer
	hdr  []byte
	done bool
}

func (z *zipLZMAHeader) Write(p []byte) (int, error) {
	n := len(p)
	if !z.done {
		need := lzmaHeaderLen - len(z.hdr)
		if len(p) < need {
			z.hdr = append(z.hdr, p...)
			return n, nil
		}
		z.hdr = append(z.hdr, p[:need]...)
		p = p[need:]
		z.done = true

		pre := make([]byte, 0, 4+lzmaPropsLen)
		pre = append(pre, zipLZMAVersion...)
		pre = binary.LittleEndian.AppendUint16(pre, lzmaPropsLen)
		pre = append(pre, z.hdr[:lzmaPropsLen]...)
		if _, err := z.w.Write(pre); err != nil {
			return 0, err
		}
	}
	if len(p) > 0 {
		if _, err := z.w.Write(p); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// NewZipLZMAReader decodes a ZIP method 14 stream. When eos is true the
// stream is terminated by an end marker, otherwise size bytes are decoded.
func NewZipLZMAReader(r io.Reader, size uint64, eos bool) (io.ReadCloser, error) {
	var pre [4]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, corrupt("lzma", err)
	}
	propsLen := int(binary.LittleEndian.Uint16(pre[2:]))
	if propsLen != lzmaPropsLen {
		return nil, fmt.Errorf("%w: lzma properties size %d", types.ErrCorruptArchive, propsLen)
	}
	props := make([]byte, propsLen)
	if _, err := io.ReadFull(r, props); err != nil {
		return nil, corrupt("lzma", err)
	}
	if eos {
		return NewLZMAReader(r, props, -1)
	}
	return NewLZMAReader(r, props, int64(size))
}

// NewLZMAReader decodes raw LZMA data given the 5 byte properties blob used
// by ZIP and 7-Zip. size is -1 when the stream carries an end marker.
func NewLZMAReader(r io.Reader, props []byte, size int64) (io.ReadCloser, error) {
	if len(props) != lzmaPropsLen {
		return nil, fmt.Errorf("%w: lzma properties size %d", types.ErrCorruptArchive, len(props))
	}
	hdr := make([]byte, 0, lzmaHeaderLen)
	hdr = append(hdr, props...)
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(size))

	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(hdr), r))
	if err != nil {
		return nil, corrupt("lzma", err)
	}
	return io.NopCloser(lr), nil
}

// LZMA2DictProp returns the one byte LZMA2 dictionary property that covers
// dictCap bytes.
func LZMA2DictProp(dictCap int) byte {
	for p := range 40 {
		if lzma2DictSize(byte(p)) >= int64(dictCap) {
			return byte(p)
		}
	}
	return 40
}

func lzma2DictSize(p byte) int64 {
	if p >= 40 {
		return 0xFFFFFFFF
	}
	return int64(2|(p&1)) << (p/2 + 11)
}

// NewLZMA2Writer returns a raw LZMA2 stream writer, as used by 7-Zip
// folders. Close writes the end chunk.
func NewLZMA2Writer(w io.Writer, dictCap int) (io.WriteCloser, error) {
	lw, err := lzma.Writer2Config{DictCap: dictCap}.NewWriter2(w)
	if err != nil {
		return nil, fmt.Errorf("create lzma2 writer: %w", err)
	}
	return lw, nil
}

// NewLZMA2Reader decodes a raw LZMA2 stream with the given dictionary
// property byte.
func NewLZMA2Reader(r io.Reader, prop byte) (io.Reader, error) {
	dict := lzma2DictSize(prop)
	if prop > 40 {
		return nil, fmt.Errorf("%w: lzma2 dictionary property %d", types.ErrCorruptArchive, prop)
	}
	dict = max(dict, lzma.MinDictCap)
	lr, err := lzma.Reader2Config{DictCap: int(min(dict, 1<<31-1))}.NewReader2(r)
	if err != nil {
		return nil, corrupt("lzma2", err)
	}
	return lr, nil
}

// CRCReader passes data through and compares the CRC32 of everything read
// against an expected value once the source reports io.EOF.
type CRCReader struct {
	r    io.Reader
	h    hash.Hash32
	want uint32
}

// NewCRCReader wraps r with CRC32 (IEEE) verification.
func NewCRCReader(r io.Reader, want uint32) *CRCReader {
	return &CRCReader{r: r, h: crc32.NewIEEE(), want: want}
}

// Read reads from the underlying stream and, at EOF, reports a checksum
// mismatch wrapping ErrChecksum.
func (c *CRCReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.h.Write(p[:n])
	if err == io.EOF {
		if got := c.h.Sum32(); got != c.want {
			return n, fmt.Errorf("%w: crc32 %08x, recorded %08x", ErrChecksum, got, c.want)
		}
	}
	return n, err
}
