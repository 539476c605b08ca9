package sevenzip

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func writeTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.bin"), bytes.Repeat([]byte("0123456789"), 5000), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nil"), nil, 0o644))
	return root
}

func create(t *testing.T, opts container.WriteOptions, sources ...string) string {
	t.Helper()
	groups, err := container.Expand(context.Background(), sources, "")
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "out.7z")
	require.NoError(t, NewWriter().Write(context.Background(), dest, groups, opts, nil))
	return dest
}

func list(t *testing.T, path string, pw types.Password) []types.Entry {
	t.Helper()
	a, err := Open(path, container.ReadOptions{Password: pw})
	require.NoError(t, err)
	defer a.Close()
	entries, err := container.Collect(a.Entries(context.Background()))
	require.NoError(t, err)
	return entries
}

func extract(t *testing.T, path string, pw types.Password) (string, error) {
	t.Helper()
	a, err := Open(path, container.ReadOptions{Password: pw})
	require.NoError(t, err)
	defer a.Close()
	dest := t.TempDir()
	_, err = container.Extract(context.Background(), a, container.ExtractOptions{Dest: dest})
	return dest, err
}

func TestRoundTrip(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Level: 5}, root)

	entries := list(t, path, "")
	byPath := map[string]types.Entry{}
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
		byPath[e.Path] = e
		assert.False(t, e.Encrypted, e.Path)
	}
	assert.Equal(t, []string{"data", "data/a.txt", "data/sub", "data/sub/b.bin", "data/sub/empty", "data/sub/nil"}, paths)
	assert.True(t, byPath["data/sub/empty"].IsDir)
	assert.Equal(t, uint64(50000), byPath["data/sub/b.bin"].Size)
	assert.Equal(t, os.FileMode(0o600), byPath["data/sub/b.bin"].Mode.Perm())
	assert.False(t, byPath["data/a.txt"].ModTime.IsZero())

	dest, err := extract(t, path, "")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "data", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	got, err = os.ReadFile(filepath.Join(dest, "data", "sub", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("0123456789"), 5000), got)
	assert.DirExists(t, filepath.Join(dest, "data", "sub", "empty"))
	assert.FileExists(t, filepath.Join(dest, "data", "sub", "nil"))
}

func TestOnlyDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "skeleton")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y"), 0o755))
	path := create(t, container.WriteOptions{}, root)

	entries := list(t, path, "")
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.IsDir)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Password: "secret"}, root)

	// Listing does not need the password; headers are not encrypted.
	for _, e := range list(t, path, "") {
		assert.Equal(t, !e.IsDir && e.Size > 0, e.Encrypted, e.Path)
	}

	dest, err := extract(t, path, "secret")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dest, "data", "sub", "b.bin"))
	require.NoError(t, err)
	assert.Len(t, got, 50000)
}

func TestMissingPassword(t *testing.T) {
	path := create(t, container.WriteOptions{Password: "secret"}, writeTree(t))
	_, err := extract(t, path, "")
	assert.ErrorIs(t, err, types.ErrPasswordRequired)
}

func TestWrongPassword(t *testing.T) {
	path := create(t, container.WriteOptions{Password: "secret"}, writeTree(t))
	_, err := extract(t, path, "nope")
	assert.ErrorIs(t, err, types.ErrIncorrectPassword)
}

func TestNumberEncoding(t *testing.T) {
	for _, v := range []uint64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1 << 20, 1<<56 - 1, 1 << 56, 1<<64 - 1} {
		b := appendNumber(nil, v)
		got, err := newHeaderReader(bytes.NewReader(b)).number()
		require.NoError(t, err)
		assert.Equal(t, v, got, "%#x encoded as % x", v, b)
	}
	assert.Equal(t, []byte{0x7f}, appendNumber(nil, 0x7f))
	assert.Equal(t, []byte{0x80, 0x80}, appendNumber(nil, 0x80))
}

func TestBoolVector(t *testing.T) {
	v := []bool{true, false, false, true, false, false, false, false, true}
	b := appendBits(nil, v)
	assert.Equal(t, []byte{0x90, 0x80}, b)
	got, err := newHeaderReader(bytes.NewReader(b)).boolVector(len(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestProbeFlagsEncryptedFolders(t *testing.T) {
	root := writeTree(t)

	p, err := probeFile(create(t, container.WriteOptions{Password: "pw"}, root))
	require.NoError(t, err)
	assert.False(t, p.headerEncrypted)
	// data, a.txt, sub, b.bin, empty, nil
	assert.Equal(t, []bool{false, true, false, true, false, false}, p.fileEncrypted)

	p, err = probeFile(create(t, container.WriteOptions{}, root))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, false, false, false}, p.fileEncrypted)
}

// encryptedHeaderArchive assembles an archive whose header database is
// stored in a 7zAES folder, as 7-Zip writes with -mhe=on.
func encryptedHeaderArchive(t *testing.T) string {
	t.Helper()
	packed := bytes.Repeat([]byte{0xa5}, 32)

	params := crypto.SevenZipParams{Cycles: 19, IV: bytes.Repeat([]byte{7}, 16)}
	props := params.Marshal()

	h := []byte{idEncodedHeader, idPackInfo}
	h = appendNumber(h, 0)
	h = appendNumber(h, 1)
	h = append(h, idSize)
	h = appendNumber(h, uint64(len(packed)))
	h = append(h, idEnd)
	h = append(h, idUnpackInfo, idFolder)
	h = appendNumber(h, 1)
	h = append(h, 0)
	h = appendNumber(h, 1)
	h = append(h, 0x20|byte(len(crypto.SevenZipAESMethod)))
	h = append(h, crypto.SevenZipAESMethod...)
	h = appendNumber(h, uint64(len(props)))
	h = append(h, props...)
	h = append(h, idCodersUnpackSize)
	h = appendNumber(h, 30)
	h = append(h, idEnd, idEnd)

	var buf bytes.Buffer
	buf.Write(signatureHeader(int64(len(packed)), h))
	buf.Write(packed)
	buf.Write(h)

	path := filepath.Join(t.TempDir(), "hidden.7z")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestEncryptedHeaders(t *testing.T) {
	path := encryptedHeaderArchive(t)

	p, err := probeFile(path)
	require.NoError(t, err)
	assert.True(t, p.headerEncrypted)

	_, err = Open(path, container.ReadOptions{})
	assert.ErrorIs(t, err, types.ErrPasswordRequired)

	_, err = Open(path, container.ReadOptions{Password: "guess"})
	assert.ErrorIs(t, err, types.ErrIncorrectPassword)
}

func TestSignatureHeaderChecksums(t *testing.T) {
	hdr := []byte{idHeader, idEnd}
	b := signatureHeader(100, hdr)
	require.Len(t, b, signatureHeaderLen)
	assert.Equal(t, signature, b[:6])
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(b[12:]))
	assert.Equal(t, crc32.ChecksumIEEE(hdr), binary.LittleEndian.Uint32(b[28:]))
	assert.Equal(t, crc32.ChecksumIEEE(b[12:]), binary.LittleEndian.Uint32(b[8:]))
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.7z")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, signature...), strings.Repeat("x", 40)...), 0o644))
	_, err := Open(path, container.ReadOptions{})
	assert.ErrorIs(t, err, types.ErrCorruptArchive)

	_, err = Open(filepath.Join(t.TempDir(), "none.7z"), container.ReadOptions{})
	assert.ErrorIs(t, err, types.ErrIO)
}
