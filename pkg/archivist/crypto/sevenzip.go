package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// SevenZipAESMethod is the coder id of 7zAES.
var SevenZipAESMethod = []byte{0x06, 0xf1, 0x07, 0x01}

// DefaultSevenZipCycles is the key stretching exponent 7-Zip writes.
const DefaultSevenZipCycles = 19

// noStretch disables key stretching; the key is salt and password verbatim.
const noStretch = 0x3f

// SevenZipParams are the 7zAES coder properties.
type SevenZipParams struct {
	Cycles int
	Salt   []byte
	IV     []byte
}

// NewSevenZipParams returns parameters with a random IV and no salt, as
// 7-Zip itself produces.
func NewSevenZipParams() (SevenZipParams, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return SevenZipParams{}, fmt.Errorf("generate iv: %w", err)
	}
	return SevenZipParams{Cycles: DefaultSevenZipCycles, IV: iv}, nil
}

// Marshal encodes the coder properties.
func (p SevenZipParams) Marshal() []byte {
	first := byte(p.Cycles & 0x3f)
	if len(p.Salt) == 0 && len(p.IV) == 0 {
		return []byte{first}
	}
	var second byte
	if len(p.Salt) > 0 {
		first |= 0x80
		second |= byte(len(p.Salt)-1) << 4
	}
	if len(p.IV) > 0 {
		first |= 0x40
		second |= byte(len(p.IV) - 1)
	}
	out := []byte{first, second}
	out = append(out, p.Salt...)
	return append(out, p.IV...)
}

// ParseSevenZipParams decodes 7zAES coder properties.
func ParseSevenZipParams(b []byte) (SevenZipParams, error) {
	if len(b) == 0 {
		return SevenZipParams{}, fmt.Errorf("%w: empty 7zAES properties", types.ErrCorruptArchive)
	}
	p := SevenZipParams{Cycles: int(b[0] & 0x3f)}
	if b[0]&0xc0 == 0 {
		return p, nil
	}
	if len(b) < 2 {
		return p, fmt.Errorf("%w: short 7zAES properties", types.ErrCorruptArchive)
	}
	saltSize := int(b[0]>>7&1) + int(b[1]>>4)
	ivSize := int(b[0]>>6&1) + int(b[1]&0x0f)
	if len(b) < 2+saltSize+ivSize {
		return p, fmt.Errorf("%w: short 7zAES properties", types.ErrCorruptArchive)
	}
	p.Salt = b[2 : 2+saltSize]
	p.IV = b[2+saltSize : 2+saltSize+ivSize]
	return p, nil
}

// SevenZipKey derives the AES-256 key from a password.
func SevenZipKey(password types.Password, p SevenZipParams) ([]byte, error) {
	pw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(password.Reveal()))
	if err != nil {
		return nil, fmt.Errorf("encode password: %w", err)
	}

	if p.Cycles == noStretch {
		key := make([]byte, 32)
		copy(key, append(append([]byte{}, p.Salt...), pw...))
		return key, nil
	}

	h := sha256.New()
	var ctr [8]byte
	for i := uint64(0); i < 1<<p.Cycles; i++ {
		h.Write(p.Salt)
		h.Write(pw)
		binary.LittleEndian.PutUint64(ctr[:], i)
		h.Write(ctr[:])
	}
	return h.Sum(nil), nil
}

func ivBlock(iv []byte) []byte {
	out := make([]byte, aes.BlockSize)
	copy(out, iv)
	return out
}

// SevenZipWriter encrypts with AES-256-CBC and zero-pads the final block
// on Close.
type SevenZipWriter struct {
	w    io.Writer
	mode cipher.BlockMode
	buf  []byte
}

// NewSevenZipWriter returns an encrypting writer for a 7zAES coder.
func NewSevenZipWriter(w io.Writer, key []byte, p SevenZipParams) (*SevenZipWriter, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &SevenZipWriter{w: w, mode: cipher.NewCBCEncrypter(block, ivBlock(p.IV))}, nil
}

// Write encrypts p in whole AES blocks, buffering any remainder until
// Close.
func (s *SevenZipWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	full := len(s.buf) - len(s.buf)%aes.BlockSize
	if full > 0 {
		s.mode.CryptBlocks(s.buf[:full], s.buf[:full])
		if _, err := s.w.Write(s.buf[:full]); err != nil {
			return 0, err
		}
		s.buf = append(s.buf[:0], s.buf[full:]...)
	}
	return len(p), nil
}

// Close pads and writes the final block. It does not close the underlying
// writer.
func (s *SevenZipWriter) Close() error {
	if len(s.buf) == 0 {
		return nil
	}
	block := make([]byte, aes.BlockSize)
	copy(block, s.buf)
	s.buf = s.buf[:0]
	s.mode.CryptBlocks(block, block)
	_, err := s.w.Write(block)
	return err
}

// SevenZipReader decrypts an AES-256-CBC stream. The output keeps the zero
// padding; the consumer truncates to the recorded unpack size.
type SevenZipReader struct {
	r    io.Reader
	mode cipher.BlockMode
	buf  []byte
	out  []byte
}

// NewSevenZipReader returns a decrypting reader for a 7zAES coder.
func NewSevenZipReader(r io.Reader, key []byte, p SevenZipParams) (*SevenZipReader, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &SevenZipReader{r: r, mode: cipher.NewCBCDecrypter(block, ivBlock(p.IV)), buf: make([]byte, 32*aes.BlockSize)}, nil
}

// Read returns decrypted plaintext.
func (s *SevenZipReader) Read(p []byte) (int, error) {
	if len(s.out) == 0 {
		n, err := io.ReadFull(s.r, s.buf)
		n -= n % aes.BlockSize
		if n == 0 {
			if err == io.ErrUnexpectedEOF || err == nil {
				err = io.EOF
			}
			return 0, err
		}
		s.mode.CryptBlocks(s.buf[:n], s.buf[:n])
		s.out = s.buf[:n]
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}
