package container

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

type memEntry struct {
	entry types.Entry
	data  string
}

// memArchive is an in-memory Archive used to exercise the shared helpers.
type memArchive struct {
	entries []memEntry
}

func (m *memArchive) Entries(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for _, me := range m.entries {
			if !yield(me.entry, nil) {
				return
			}
		}
	}
}

func (m *memArchive) Walk(ctx context.Context, fn WalkFunc) error {
	for _, me := range m.entries {
		data := me.data
		open := func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(data)), nil }
		if err := fn(me.entry, open); err != nil {
			return err
		}
	}
	return nil
}

func (m *memArchive) Close() error { return nil }

func file(p, data string) memEntry {
	return memEntry{entry: types.Entry{Path: p, Size: uint64(len(data))}, data: data}
}

func dir(p string) memEntry {
	return memEntry{entry: types.Entry{Path: p, IsDir: true}}
}

func TestNormalizeSynthesizesAncestors(t *testing.T) {
	got := Normalize([]types.Entry{{Path: "a/b/c.txt"}, {Path: "a/d.txt"}})

	var paths []string
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a", "a/b", "a/b/c.txt", "a/d.txt"}, paths)
	assert.True(t, got[0].Synthesized)
	assert.True(t, got[0].IsDir)
	assert.False(t, got[2].Synthesized)
}

func TestNormalizeLastWriteWins(t *testing.T) {
	got := Normalize([]types.Entry{
		{Path: "x.txt", Size: 1},
		{Path: "y.txt", Size: 2},
		{Path: "x.txt", Size: 3},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "x.txt", got[0].Path)
	assert.Equal(t, uint64(3), got[0].Size)
}

func TestNormalizeRecordedDirReplacesSynthesized(t *testing.T) {
	got := Normalize([]types.Entry{{Path: "d/f"}, {Path: "d", IsDir: true, Size: 0}})
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].Path)
	assert.False(t, got[0].Synthesized)
}

func TestNormalizeCleansMemberPaths(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"dot prefix", []string{"./x"}, []string{"x"}},
		{"doubled separator", []string{"a//b"}, []string{"a", "a/b"}},
		{"backslashes", []string{`w\v.txt`}, []string{"w", "w/v.txt"}},
		{"climbing", []string{"../../evil", "ok"}, []string{"ok"}},
		{"absolute", []string{"/abs", "/etc/passwd"}, nil},
		{"drive letter", []string{`C:\x`}, nil},
		{"archive root", []string{"./", "."}, nil},
		{"dot duplicate", []string{"a.txt", "./a.txt"}, []string{"a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]types.Entry, len(tt.raw))
			for i, p := range tt.raw {
				raw[i] = types.Entry{Path: p}
			}
			var paths []string
			for _, e := range Normalize(raw) {
				paths = append(paths, e.Path)
				assert.NotContains(t, e.Path, "..")
				assert.False(t, strings.HasPrefix(e.Path, "/"), e.Path)
			}
			assert.Equal(t, tt.want, paths)
		})
	}
}

func TestNormalizeCleanedDuplicateKeepsLastRecord(t *testing.T) {
	got := Normalize([]types.Entry{{Path: "a.txt", Size: 1}, {Path: "./a.txt", Size: 7}})
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", got[0].Path)
	assert.Equal(t, uint64(7), got[0].Size)
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"a", "a/b"}, Ancestors("a/b/c"))
	assert.Empty(t, Ancestors("top"))
}

func TestSelector(t *testing.T) {
	s := NewSelector([]string{"docs/", "a.txt", "missing"})
	assert.True(t, s.Match("a.txt"))
	assert.True(t, s.Match("docs/readme.md"))
	assert.True(t, s.Match("docs"))
	assert.False(t, s.Match("docsextra/x"))
	assert.False(t, s.Match("b.txt"))
	assert.Equal(t, []string{"missing"}, s.Missing())

	all := NewSelector(nil)
	assert.True(t, all.All())
	assert.True(t, all.Match("anything"))
	assert.True(t, NewSelector([]string{"./"}).All())
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	single := filepath.Join(root, "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("s"), 0o644))
	skip := filepath.Join(src, "out.zip")
	require.NoError(t, os.WriteFile(skip, []byte("z"), 0o644))

	groups, err := Expand(context.Background(), []string{src, single}, skip)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	var names []string
	for _, it := range groups[0].Items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{
		"project",
		"project/a.txt",
		"project/sub",
		"project/sub/b.txt",
		"project/sub/empty",
	}, names)
	assert.Equal(t, "single.txt", groups[1].Name)
	require.Len(t, groups[1].Items, 1)
	assert.True(t, groups[1].Items[0].IsRegular())
	assert.Equal(t, 6, CountItems(groups))
}

func TestExpandMissingSource(t *testing.T) {
	_, err := Expand(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, "")
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestExtract(t *testing.T) {
	a := &memArchive{entries: []memEntry{
		dir("docs/"),
		file("docs/readme.md", "read me"),
		file("a.txt", "hello world"),
		file("./nested/deep/b.txt", "b"),
	}}
	dest := t.TempDir()

	var events []types.Progress
	n, err := Extract(context.Background(), a, ExtractOptions{
		Dest:     dest,
		Total:    4,
		Progress: func(p types.Progress) { events = append(events, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.FileExists(t, filepath.Join(dest, "nested", "deep", "b.txt"))
	assert.DirExists(t, filepath.Join(dest, "docs"))

	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Completed)
		assert.Equal(t, 4, ev.Total)
	}
	assert.Equal(t, "a.txt", events[2].Current)
}

func TestExtractMembers(t *testing.T) {
	a := &memArchive{entries: []memEntry{
		file("keep/one.txt", "1"),
		file("skip/two.txt", "2"),
		file("three.txt", "3"),
	}}
	dest := t.TempDir()

	n, err := Extract(context.Background(), a, ExtractOptions{Dest: dest, Members: []string{"keep", "three.txt"}, Total: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dest, "keep", "one.txt"))
	assert.FileExists(t, filepath.Join(dest, "three.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "skip", "two.txt"))
}

func TestExtractRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "out")
	a := &memArchive{entries: []memEntry{file("../../evil.txt", "x")}}

	_, err := Extract(context.Background(), a, ExtractOptions{Dest: dest, Total: 1})
	require.ErrorIs(t, err, types.ErrPathTraversal)
	assert.NoFileExists(t, filepath.Join(base, "evil.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(base), "evil.txt"))
}

func TestExtractSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	inside := memEntry{entry: types.Entry{Path: "link", Mode: os.ModeSymlink, Linkname: "a.txt"}}
	outside := memEntry{entry: types.Entry{Path: "bad", Mode: os.ModeSymlink, Linkname: "../../etc/passwd"}}

	dest := t.TempDir()
	_, err := Extract(context.Background(), &memArchive{entries: []memEntry{file("a.txt", "a"), inside}}, ExtractOptions{Dest: dest})
	require.NoError(t, err)
	target, err := os.Readlink(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	_, err = Extract(context.Background(), &memArchive{entries: []memEntry{outside}}, ExtractOptions{Dest: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrPathTraversal)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &memArchive{entries: []memEntry{file("a.txt", "a")}}

	n, err := Extract(ctx, a, ExtractOptions{Dest: t.TempDir(), Total: 1})
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.Zero(t, n)
}

func TestExtractIdempotent(t *testing.T) {
	a := &memArchive{entries: []memEntry{file("d/a.txt", "same")}}
	dest := t.TempDir()
	for range 2 {
		_, err := Extract(context.Background(), a, ExtractOptions{Dest: dest, Total: 1})
		require.NoError(t, err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "d", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "same", string(got))
}

func TestCollect(t *testing.T) {
	a := &memArchive{entries: []memEntry{file("a", "1"), file("b", "2")}}
	got, err := Collect(a.Entries(context.Background()))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
