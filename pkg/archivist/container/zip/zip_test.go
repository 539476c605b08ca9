package zip

import (
	"context"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	kzip "github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func writeTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "readme.md"), []byte("# readme\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "zero"), nil, 0o644))
	return root
}

func create(t *testing.T, opts container.WriteOptions, sources ...string) string {
	t.Helper()
	groups, err := container.Expand(context.Background(), sources, "")
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, NewWriter().Write(context.Background(), dest, groups, opts, nil))
	return dest
}

func list(t *testing.T, path string) []types.Entry {
	t.Helper()
	a, err := Open(path, container.ReadOptions{})
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRoundTripMethods(t *testing.T) {
	root := writeTree(t)
	for _, method := range []string{"lzma", "deflate", "store"} {
		t.Run(method, func(t *testing.T) {
			path := create(t, container.WriteOptions{Method: method, Level: 6}, root)

			var paths []string
			for _, e := range list(t, path) {
				paths = append(paths, e.Path)
				assert.False(t, e.Encrypted)
			}
			assert.Equal(t, []string{
				"proj", "proj/a.txt", "proj/docs", "proj/docs/empty",
				"proj/docs/readme.md", "proj/docs/zero",
			}, paths)

			dest, err := extract(t, path, "")
			require.NoError(t, err)
			assert.Equal(t, "hello world", readFile(t, filepath.Join(dest, "proj", "a.txt")))
			assert.Equal(t, "# readme\n", readFile(t, filepath.Join(dest, "proj", "docs", "readme.md")))
			assert.Empty(t, readFile(t, filepath.Join(dest, "proj", "docs", "zero")))
			assert.DirExists(t, filepath.Join(dest, "proj", "docs", "empty"))
		})
	}
}

func TestEntryMetadata(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{}, filepath.Join(root, "a.txt"))

	entries := list(t, path)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "a.txt", e.Path)
	assert.Equal(t, uint64(11), e.Size)
	assert.NotZero(t, e.CompressedSize)
	assert.False(t, e.ModTime.IsZero())
	assert.Equal(t, os.FileMode(0o644), e.Mode.Perm())
}

func TestUnknownMethodRejected(t *testing.T) {
	_, err := ParseMethod("ppmd")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestPasswordRoundTrip(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Password: "secret", Method: "lzma"}, filepath.Join(root, "a.txt"), filepath.Join(root, "docs"))

	for _, e := range list(t, path) {
		assert.Equal(t, !e.IsDir, e.Encrypted, e.Path)
	}

	dest, err := extract(t, path, "secret")
	require.NoError(t, err)
	assert.Equal(t, "hello world", readFile(t, filepath.Join(dest, "a.txt")))
	assert.Equal(t, "# readme\n", readFile(t, filepath.Join(dest, "docs", "readme.md")))
}

func TestPasswordDeflate(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Password: "secret", Method: "deflate"}, filepath.Join(root, "a.txt"))

	dest, err := extract(t, path, "secret")
	require.NoError(t, err)
	assert.Equal(t, "hello world", readFile(t, filepath.Join(dest, "a.txt")))
}

func TestMissingPassword(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Password: "secret"}, filepath.Join(root, "a.txt"))

	_, err := extract(t, path, "")
	assert.ErrorIs(t, err, types.ErrPasswordRequired)
}

func TestWrongPassword(t *testing.T) {
	root := writeTree(t)
	path := create(t, container.WriteOptions{Password: "secret"}, filepath.Join(root, "a.txt"))

	dest, err := extract(t, path, "wrong")
	assert.ErrorIs(t, err, types.ErrIncorrectPassword)
	assert.NoFileExists(t, filepath.Join(dest, "a.txt"))
}

func TestUnicodeNameEncrypted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "résumé.txt")
	require.NoError(t, os.WriteFile(src, []byte("cv"), 0o644))
	path := create(t, container.WriteOptions{Password: "pw"}, src)

	entries := list(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "résumé.txt", entries[0].Path)

	dest, err := extract(t, path, "pw")
	require.NoError(t, err)
	assert.Equal(t, "cv", readFile(t, filepath.Join(dest, "résumé.txt")))
}

// writeRaw builds a single-entry archive from a prepared header and payload.
func writeRaw(t *testing.T, hdr *kzip.FileHeader, payload []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := kzip.NewWriter(f)
	w, err := zw.CreateRaw(hdr)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func zipCryptoFixture(t *testing.T, password types.Password, data []byte) string {
	t.Helper()
	sum := crc32.ChecksumIEEE(data)
	head := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, byte(sum >> 24)}
	payload := append(head, data...)
	crypto.NewZipCrypto(password).Encrypt(payload)

	return writeRaw(t, &kzip.FileHeader{
		Name:               "legacy.txt",
		Method:             kzip.Store,
		Flags:              flagEncrypted,
		CRC32:              sum,
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: uint64(len(data)),
	}, payload)
}

func TestZipCryptoRead(t *testing.T) {
	path := zipCryptoFixture(t, "secret", []byte("legacy content"))

	entries := list(t, path)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Encrypted)

	dest, err := extract(t, path, "secret")
	require.NoError(t, err)
	assert.Equal(t, "legacy content", readFile(t, filepath.Join(dest, "legacy.txt")))

	_, err = extract(t, path, "not-it")
	assert.ErrorIs(t, err, types.ErrIncorrectPassword)

	_, err = extract(t, path, "")
	assert.ErrorIs(t, err, types.ErrPasswordRequired)
}

func TestCRCMismatchIsCorrupt(t *testing.T) {
	data := []byte("payload")
	path := writeRaw(t, &kzip.FileHeader{
		Name:               "bad.txt",
		Method:             kzip.Store,
		CRC32:              crc32.ChecksumIEEE(data) ^ 1,
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}, data)

	_, err := extract(t, path, "")
	assert.ErrorIs(t, err, types.ErrCorruptArchive)
}

func TestTraversalRejected(t *testing.T) {
	data := []byte("evil")
	path := writeRaw(t, &kzip.FileHeader{
		Name:               "../../evil.txt",
		Method:             kzip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}, data)

	dest, err := extract(t, path, "")
	assert.ErrorIs(t, err, types.ErrPathTraversal)
	assert.NoFileExists(t, filepath.Join(dest, "..", "..", "evil.txt"))
}

func TestOpenNotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.zip")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip file"), 0o644))
	_, err := Open(path, container.ReadOptions{})
	assert.ErrorIs(t, err, types.ErrCorruptArchive)

	_, err = Open(filepath.Join(t.TempDir(), "missing.zip"), container.ReadOptions{})
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestWriteCancelled(t *testing.T) {
	root := writeTree(t)
	groups, err := container.Expand(context.Background(), []string{root}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "out.zip")
	err = NewWriter().Write(ctx, dest, groups, container.WriteOptions{}, nil)
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.NoFileExists(t, dest)
}

func TestProgressPerSource(t *testing.T) {
	root := writeTree(t)
	groups, err := container.Expand(context.Background(), []string{filepath.Join(root, "a.txt"), filepath.Join(root, "docs")}, "")
	require.NoError(t, err)

	var got []types.Progress
	dest := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, NewWriter().Write(context.Background(), dest, groups, container.WriteOptions{}, func(p types.Progress) {
		got = append(got, p)
	}))
	assert.Equal(t, []types.Progress{
		{Completed: 1, Total: 2, Current: "a.txt"},
		{Completed: 2, Total: 2, Current: "docs"},
	}, got)
}
