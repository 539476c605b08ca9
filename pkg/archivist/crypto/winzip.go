// Package crypto implements the archive encryption schemes archivist reads
// and writes: WinZip AES for ZIP, legacy ZipCrypto (read only) and 7zAES.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// WinZip AES constants.
const (
	// AESStrength256 is the strength code stored in the 0x9901 extra field.
	AESStrength256 = 3

	pbkdf2Iterations = 1000
	verifierLen      = 2
	authCodeLen      = 10
)

// WinZipOverhead returns the bytes added around the ciphertext for a given
// strength: salt, password verifier and authentication code.
func WinZipOverhead(strength int) int {
	return saltLen(strength) + verifierLen + authCodeLen
}

func saltLen(strength int) int {
	return 4 + 4*strength
}

func keyLen(strength int) int {
	return 8 + 8*strength
}

type winzipKeys struct {
	enc      []byte
	auth     []byte
	verifier []byte
}

func deriveWinZip(password string, salt []byte, strength int) winzipKeys {
	kl := keyLen(strength)
	dk := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 2*kl+verifierLen, sha1.New)
	return winzipKeys{enc: dk[:kl], auth: dk[kl : 2*kl], verifier: dk[2*kl:]}
}

// ctrLE is the AES-CTR variant used by WinZip: a little-endian counter
// starting at 1.
type ctrLE struct {
	block cipher.Block
	ctr   [aes.BlockSize]byte
	ks    [aes.BlockSize]byte
	pos   int
}

func newCTRLE(block cipher.Block) *ctrLE {
	return &ctrLE{block: block, pos: aes.BlockSize}
}

func (c *ctrLE) XORKeyStream(dst, src []byte) {
	for i := range src {
		if c.pos == aes.BlockSize {
			for j := range c.ctr {
				c.ctr[j]++
				if c.ctr[j] != 0 {
					break
				}
			}
			c.block.Encrypt(c.ks[:], c.ctr[:])
			c.pos = 0
		}
		dst[i] = src[i] ^ c.ks[c.pos]
		c.pos++
	}
}

// WinZipWriter encrypts an entry payload. The salt and verifier are written
// on creation, the authentication code on Close.
type WinZipWriter struct {
	w      io.Writer
	stream cipher.Stream
	mac    hash.Hash
	buf    []byte
	closed bool
}

// NewWinZipWriter starts an AES-256 AE-2 payload on w.
func NewWinZipWriter(w io.Writer, password types.Password) (*WinZipWriter, error) {
	salt := make([]byte, saltLen(AESStrength256))
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	keys := deriveWinZip(password.Reveal(), salt, AESStrength256)
	block, err := aes.NewCipher(keys.enc)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	if _, err := w.Write(append(salt, keys.verifier...)); err != nil {
		return nil, err
	}
	return &WinZipWriter{
		w:      w,
		stream: newCTRLE(block),
		mac:    hmac.New(sha1.New, keys.auth),
	}, nil
}

// Write encrypts p and feeds the ciphertext to the authentication code.
func (z *WinZipWriter) Write(p []byte) (int, error) {
	if cap(z.buf) < len(p) {
		z.buf = make([]byte, len(p))
	}
	out := z.buf[:len(p)]
	z.stream.XORKeyStream(out, p)
	z.mac.Write(out)
	if _, err := z.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close writes the authentication code. It does not close the underlying
// writer.
func (z *WinZipWriter) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	_, err := z.w.Write(z.mac.Sum(nil)[:authCodeLen])
	return err
}

// WinZipReader decrypts an entry payload and checks the authentication code
// at the end of the stream.
type WinZipReader struct {
	r      io.Reader
	stream cipher.Stream
	mac    hash.Hash
	left   int64
	done   bool
}

// NewWinZipReader reads the salt and verifier from r and returns a reader of
// the decrypted payload. size is the total stored size of the entry,
// including salt, verifier and authentication code.
func NewWinZipReader(r io.Reader, password types.Password, strength int, size int64) (*WinZipReader, error) {
	if strength < 1 || strength > 3 {
		return nil, fmt.Errorf("%w: aes strength %d", types.ErrCorruptArchive, strength)
	}
	payload := size - int64(WinZipOverhead(strength))
	if payload < 0 {
		return nil, fmt.Errorf("%w: aes entry too short", types.ErrCorruptArchive)
	}

	head := make([]byte, saltLen(strength)+verifierLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: read aes header: %w", types.ErrCorruptArchive, err)
	}
	salt, verifier := head[:saltLen(strength)], head[saltLen(strength):]
	keys := deriveWinZip(password.Reveal(), salt, strength)
	if subtle.ConstantTimeCompare(keys.verifier, verifier) != 1 {
		return nil, types.ErrIncorrectPassword
	}
	block, err := aes.NewCipher(keys.enc)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &WinZipReader{
		r:      r,
		stream: newCTRLE(block),
		mac:    hmac.New(sha1.New, keys.auth),
		left:   payload,
	}, nil
}

// Read decrypts entry data. At the end of the data it compares the stored
// authentication code and reports a mismatch as
// types.ErrIncorrectPassword.
func (z *WinZipReader) Read(p []byte) (int, error) {
	if z.left <= 0 {
		if z.done {
			return 0, io.EOF
		}
		return 0, z.verify()
	}
	if int64(len(p)) > z.left {
		p = p[:z.left]
	}
	n, err := z.r.Read(p)
	z.left -= int64(n)
	z.mac.Write(p[:n])
	z.stream.XORKeyStream(p[:n], p[:n])
	if err == io.EOF && z.left > 0 {
		return n, fmt.Errorf("%w: aes payload truncated", types.ErrCorruptArchive)
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (z *WinZipReader) verify() error {
	code := make([]byte, authCodeLen)
	if _, err := io.ReadFull(z.r, code); err != nil {
		return fmt.Errorf("%w: read aes authentication code: %w", types.ErrCorruptArchive, err)
	}
	if !hmac.Equal(code, z.mac.Sum(nil)[:authCodeLen]) {
		return fmt.Errorf("%w: authentication code mismatch", types.ErrIncorrectPassword)
	}
	z.done = true
	return io.EOF
}
