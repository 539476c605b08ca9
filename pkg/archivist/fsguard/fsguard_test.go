package fsguard

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func TestCleanEntryPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a.txt", want: "a.txt"},
		{in: "dir/sub/", want: "dir/sub"},
		{in: "./dir//a.txt", want: "dir/a.txt"},
		{in: `win\style\path.txt`, want: "win/style/path.txt"},
		{in: "./", want: ""},
		{in: "../../evil", wantErr: true},
		{in: "dir/../../evil", wantErr: true},
		{in: "dir/../ok", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: `C:\Windows\x`, wantErr: true},
		{in: `..\evil`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := CleanEntryPath(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, types.ErrPathTraversal, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, "dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dir", "a.txt"), got)

	_, err = Resolve(root, "../../evil")
	assert.ErrorIs(t, err, types.ErrPathTraversal)
}

func TestWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "dest")
	assert.True(t, Within(root, root))
	assert.True(t, Within(root, filepath.Join(root, "a", "b")))
	assert.False(t, Within(root, filepath.Join(root, "..", "other")))
	assert.False(t, Within(root, filepath.Join(string(filepath.Separator), "destination")))
}

func TestLinkInside(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "dir", "link")

	assert.True(t, LinkInside(root, link, "../file.txt"))
	assert.True(t, LinkInside(root, link, "sibling"))
	assert.False(t, LinkInside(root, link, "../../outside"))
	assert.False(t, LinkInside(root, link, "/etc/passwd"))
	assert.False(t, LinkInside(root, link, ""))
}

func TestRealWithin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "inner"), 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	assert.True(t, RealWithin(root, filepath.Join(root, "inner")))
	assert.False(t, RealWithin(root, filepath.Join(root, "escape")))
}

func TestFreeSpace(t *testing.T) {
	free, ok, err := FreeSpace(t.TempDir())
	require.NoError(t, err)
	if ok {
		assert.Positive(t, free)
	}
}
