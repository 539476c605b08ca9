package detect

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func tarBytes(t *testing.T, c types.Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := codec.NewWriter(c, &buf, 6)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "a.txt", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFromExtension(t *testing.T) {
	tests := []struct {
		name   string
		format types.Format
		comp   types.Compression
	}{
		{"a.zip", types.FormatZip, types.CompressionNone},
		{"A.ZIPX", types.FormatZip, types.CompressionNone},
		{"lib.jar", types.FormatZip, types.CompressionNone},
		{"x.tar", types.FormatTar, types.CompressionNone},
		{"x.tar.gz", types.FormatTar, types.CompressionGzip},
		{"x.tgz", types.FormatTar, types.CompressionGzip},
		{"x.tar.bz2", types.FormatTar, types.CompressionBzip2},
		{"x.tbz", types.FormatTar, types.CompressionBzip2},
		{"x.tar.xz", types.FormatTar, types.CompressionXZ},
		{"x.tar.zst", types.FormatTar, types.CompressionZstd},
		{"x.tlz4", types.FormatTar, types.CompressionLZ4},
		{"dir/x.7z", types.FormatSevenZip, types.CompressionNone},
		{"x.rar", types.FormatRar, types.CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c, err := FromExtension(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.comp, c)
		})
	}

	for _, name := range []string{"notes.txt", "x.gz", ".zip", "archive"} {
		_, _, err := FromExtension(name)
		assert.ErrorIs(t, err, types.ErrUnsupportedFormat, name)
	}
}

func TestSniffMagic(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format types.Format
	}{
		{"zip", []byte("PK\x03\x04rest"), types.FormatZip},
		{"empty zip", append([]byte("PK\x05\x06"), make([]byte, 18)...), types.FormatZip},
		{"7z", []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c, 0, 4}, types.FormatSevenZip},
		{"rar4", []byte("Rar!\x1a\x07\x00\xcf"), types.FormatRar},
		{"rar5", []byte("Rar!\x1a\x07\x01\x00"), types.FormatRar},
		{"rar sfx", append(bytes.Repeat([]byte("MZ"), 200), []byte("Rar!\x1a\x07\x01\x00")...), types.FormatRar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The extension is deliberately misleading.
			f, c, err := Sniff(write(t, "file.bin", tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, types.CompressionNone, c)
		})
	}
}

func TestSniffTar(t *testing.T) {
	for _, c := range []types.Compression{
		types.CompressionNone, types.CompressionGzip, types.CompressionBzip2,
		types.CompressionXZ, types.CompressionZstd, types.CompressionLZ4,
	} {
		t.Run(c.String(), func(t *testing.T) {
			f, got, err := Sniff(write(t, "data", tarBytes(t, c)))
			require.NoError(t, err)
			assert.Equal(t, types.FormatTar, f)
			assert.Equal(t, c, got)
		})
	}
}

func TestSniffCompressedNonTar(t *testing.T) {
	var buf bytes.Buffer
	zw, err := codec.NewWriter(types.CompressionGzip, &buf, 6)
	require.NoError(t, err)
	_, err = zw.Write([]byte("just some text"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, _, err = Sniff(write(t, "notes.gz", buf.Bytes()))
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
}

func TestSniffUnknown(t *testing.T) {
	_, _, err := Sniff(write(t, "a.zip", []byte("hello world")))
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)

	_, _, err = Sniff(write(t, "empty", nil))
	assert.ErrorIs(t, err, types.ErrUnsupportedFormat)
}

func TestDetect(t *testing.T) {
	// Content wins over the name.
	f, _, err := Detect(write(t, "a.tar.gz", []byte("PK\x03\x04")))
	require.NoError(t, err)
	assert.Equal(t, types.FormatZip, f)

	// Missing files fall back to the name.
	f, c, err := Detect(filepath.Join(t.TempDir(), "new.tar.xz"))
	require.NoError(t, err)
	assert.Equal(t, types.FormatTar, f)
	assert.Equal(t, types.CompressionXZ, c)
}

func TestFormats(t *testing.T) {
	var names []string
	for _, info := range Formats() {
		names = append(names, info.Name())
		if info.Format == types.FormatRar {
			assert.False(t, info.Write)
		}
	}
	assert.Contains(t, names, "tar.gz")
	assert.Contains(t, names, "7z")
	assert.Contains(t, ReadExtensions(), ".rar")
}
