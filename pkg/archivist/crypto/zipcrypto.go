package crypto

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// ZipCryptoHeaderLen is the size of the encryption header that precedes
// every ZipCrypto entry.
const ZipCryptoHeaderLen = 12

// ZipCrypto holds the three rolling keys of the traditional PKWARE cipher.
// archivist only reads this scheme; Encrypt exists for building fixtures.
type ZipCrypto struct {
	k0, k1, k2 uint32
}

// NewZipCrypto initialises the keys from a password.
func NewZipCrypto(password types.Password) *ZipCrypto {
	z := &ZipCrypto{k0: 0x12345678, k1: 0x23456789, k2: 0x34567890}
	for _, b := range []byte(password.Reveal()) {
		z.update(b)
	}
	return z
}

func crcUpdate(crc uint32, b byte) uint32 {
	return crc32.IEEETable[byte(crc)^b] ^ (crc >> 8)
}

func (z *ZipCrypto) update(b byte) {
	z.k0 = crcUpdate(z.k0, b)
	z.k1 = (z.k1+(z.k0&0xff))*134775813 + 1
	z.k2 = crcUpdate(z.k2, byte(z.k1>>24))
}

func (z *ZipCrypto) stream() byte {
	t := uint16(z.k2 | 2)
	return byte((uint32(t) * uint32(t^1)) >> 8)
}

// Decrypt decrypts buf in place.
func (z *ZipCrypto) Decrypt(buf []byte) {
	for i, c := range buf {
		p := c ^ z.stream()
		z.update(p)
		buf[i] = p
	}
}

// Encrypt encrypts buf in place.
func (z *ZipCrypto) Encrypt(buf []byte) {
	for i, p := range buf {
		c := p ^ z.stream()
		z.update(p)
		buf[i] = c
	}
}

type zipCryptoReader struct {
	r io.Reader
	z *ZipCrypto
}

func (z *zipCryptoReader) Read(p []byte) (int, error) {
	n, err := z.r.Read(p)
	z.z.Decrypt(p[:n])
	return n, err
}

// NewZipCryptoReader consumes the 12 byte encryption header from r and
// returns a reader of the decrypted entry data. check is the expected last
// header byte: the high byte of the CRC32, or of the DOS modification time
// when the entry uses a data descriptor.
func NewZipCryptoReader(r io.Reader, password types.Password, check byte) (io.Reader, error) {
	z := NewZipCrypto(password)
	head := make([]byte, ZipCryptoHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: read zipcrypto header: %w", types.ErrCorruptArchive, err)
	}
	z.Decrypt(head)
	if head[ZipCryptoHeaderLen-1] != check {
		return nil, types.ErrIncorrectPassword
	}
	return &zipCryptoReader{r: r, z: z}, nil
}
