package sevenzip

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Property ids of the 7z header.
const (
	idEnd              = 0x00
	idHeader           = 0x01
	idArchiveProps     = 0x02
	idAdditionalStream = 0x03
	idMainStreams      = 0x04
	idFilesInfo        = 0x05
	idPackInfo         = 0x06
	idUnpackInfo       = 0x07
	idSubStreams       = 0x08
	idSize             = 0x09
	idCRC              = 0x0a
	idFolder           = 0x0b
	idCodersUnpackSize = 0x0c
	idNumUnpackStream  = 0x0d
	idEmptyStream      = 0x0e
	idEmptyFile        = 0x0f
	idName             = 0x11
	idMTime            = 0x14
	idAttributes       = 0x15
	idEncodedHeader    = 0x17
)

const signatureHeaderLen = 32

var signature = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}

// Coder ids.
var (
	coderLZMA  = []byte{0x03, 0x01, 0x01}
	coderLZMA2 = []byte{0x21}
)

// appendNumber encodes v in the 7z variable length format: the count of
// leading one bits in the first byte is the number of extra little endian
// bytes that follow.
func appendNumber(b []byte, v uint64) []byte {
	var first byte
	mask := byte(0x80)
	n := 0
	for ; n < 8; n++ {
		if v < uint64(1)<<(7*(n+1)) {
			first |= byte(v >> (8 * n))
			break
		}
		first |= mask
		mask >>= 1
	}
	b = append(b, first)
	for i := range n {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// appendBits encodes a bool vector most significant bit first.
func appendBits(b []byte, v []bool) []byte {
	var cur, mask byte = 0, 0x80
	for _, set := range v {
		if set {
			cur |= mask
		}
		mask >>= 1
		if mask == 0 {
			b = append(b, cur)
			cur, mask = 0, 0x80
		}
	}
	if mask != 0x80 {
		b = append(b, cur)
	}
	return b
}

// headerReader decodes the primitive types of the 7z header.
type headerReader struct {
	r *bufio.Reader
}

func newHeaderReader(r io.Reader) *headerReader {
	return &headerReader{r: bufio.NewReader(r)}
}

func malformed(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: 7z header: %s", types.ErrCorruptArchive, what)
	}
	return fmt.Errorf("%w: 7z header: %s: %w", types.ErrCorruptArchive, what, err)
}

func (h *headerReader) readByte() (byte, error) {
	b, err := h.r.ReadByte()
	if err != nil {
		return 0, malformed("read byte", err)
	}
	return b, nil
}

func (h *headerReader) number() (uint64, error) {
	first, err := h.readByte()
	if err != nil {
		return 0, err
	}
	n := bits.LeadingZeros8(^first)
	var v uint64
	if n < 7 {
		v = uint64(first&(1<<(7-n)-1)) << (8 * n)
	}
	for i := range n {
		b, err := h.readByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

// count reads a number used to size an allocation and bounds it.
func (h *headerReader) count(limit uint64) (int, error) {
	v, err := h.number()
	if err != nil {
		return 0, err
	}
	if v > limit {
		return 0, malformed(fmt.Sprintf("count %d exceeds %d", v, limit), nil)
	}
	return int(v), nil
}

func (h *headerReader) bytes(n uint64) ([]byte, error) {
	if n > 1<<26 {
		return nil, malformed(fmt.Sprintf("property of %d bytes", n), nil)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(h.r, b); err != nil {
		return nil, malformed("read bytes", err)
	}
	return b, nil
}

func (h *headerReader) skip(n uint64) error {
	if _, err := h.r.Discard(int(min(n, 1<<31))); err != nil {
		return malformed("skip property", err)
	}
	return nil
}

func (h *headerReader) boolVector(n int) ([]bool, error) {
	out := make([]bool, n)
	var cur, mask byte
	for i := range out {
		if mask == 0 {
			b, err := h.readByte()
			if err != nil {
				return nil, err
			}
			cur, mask = b, 0x80
		}
		out[i] = cur&mask != 0
		mask >>= 1
	}
	return out, nil
}

// optionalBits reads an "all defined" byte optionally followed by a
// vector.
func (h *headerReader) optionalBits(n int) ([]bool, error) {
	all, err := h.readByte()
	if err != nil {
		return nil, err
	}
	if all == 0 {
		return h.boolVector(n)
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out, nil
}

func (h *headerReader) digests(n int) error {
	defined, err := h.optionalBits(n)
	if err != nil {
		return err
	}
	var buf [4]byte
	for _, d := range defined {
		if d {
			if _, err := io.ReadFull(h.r, buf[:]); err != nil {
				return malformed("read crc", err)
			}
		}
	}
	return nil
}
