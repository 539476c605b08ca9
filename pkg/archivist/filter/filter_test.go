package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entries() []types.Entry {
	return []types.Entry{
		{Path: "project", IsDir: true},
		{Path: "project/README.md", Size: 300, ModTime: base},
		{Path: "project/src", IsDir: true},
		{Path: "project/src/main.go", Size: 1200, ModTime: base.Add(time.Hour)},
		{Path: "project/src/main_test.go", Size: 800, ModTime: base.Add(2 * time.Hour)},
		{Path: "project/assets/logo.PNG", Size: 50000, ModTime: base.Add(-time.Hour)},
	}
}

func pathsOf(es []types.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Path
	}
	return out
}

func TestDefaultKeepsEverything(t *testing.T) {
	f := New()
	assert.Equal(t, pathsOf(entries()), pathsOf(f.Apply(entries())))
	assert.NoError(t, f.Err())
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "files only",
			opts: []Option{WithFilesOnly(true)},
			want: []string{"project/README.md", "project/src/main.go", "project/src/main_test.go", "project/assets/logo.PNG"},
		},
		{
			name: "base name include",
			opts: []Option{WithInclude("*.go")},
			want: []string{"project/src/main.go", "project/src/main_test.go"},
		},
		{
			name: "path include",
			opts: []Option{WithInclude("project/src/**")},
			want: []string{"project/src/main.go", "project/src/main_test.go"},
		},
		{
			name: "exclude wins",
			opts: []Option{WithInclude("*.go"), WithExclude("*_test.go")},
			want: []string{"project/src/main.go"},
		},
		{
			name: "min size spares directories",
			opts: []Option{WithMinSize(1000)},
			want: []string{"project", "project/src", "project/src/main.go", "project/assets/logo.PNG"},
		},
		{
			name: "extensions are case-insensitive",
			opts: []Option{WithExtensions("png", ".md"), WithFilesOnly(true)},
			want: []string{"project/README.md", "project/assets/logo.PNG"},
		},
		{
			name: "max depth",
			opts: []Option{WithMaxDepth(2)},
			want: []string{"project", "project/README.md", "project/src"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.opts...).Apply(entries())
			assert.Equal(t, tt.want, pathsOf(got))
		})
	}
}

func TestSort(t *testing.T) {
	files := New(WithFilesOnly(true))

	bySize := New(WithFilesOnly(true), WithSortBy(SortSize), WithSortDescending(true))
	assert.Equal(t, []string{
		"project/assets/logo.PNG", "project/src/main.go", "project/src/main_test.go", "project/README.md",
	}, pathsOf(bySize.Apply(entries())))

	byTime := New(WithFilesOnly(true), WithSortBy(SortTime))
	assert.Equal(t, "project/assets/logo.PNG", byTime.Apply(entries())[0].Path)

	byName := New(WithFilesOnly(true), WithSortBy(SortName))
	assert.Equal(t, []string{
		"project/README.md", "project/assets/logo.PNG", "project/src/main.go", "project/src/main_test.go",
	}, pathsOf(byName.Apply(entries())))

	byPath := New(WithSortBy(SortPath))
	assert.Equal(t, "project/assets/logo.PNG", byPath.Apply(entries())[2].Path)

	reversed := New(WithFilesOnly(true), WithSortDescending(true))
	assert.Equal(t, "project/assets/logo.PNG", reversed.Apply(entries())[0].Path)

	in := entries()
	files.Sort(in)
	assert.Equal(t, entries(), in, "input must not be modified")
}

func TestLimit(t *testing.T) {
	got := New(WithFilesOnly(true), WithSortBy(SortSize), WithSortDescending(true), WithLimit(2)).Apply(entries())
	assert.Equal(t, []string{"project/assets/logo.PNG", "project/src/main.go"}, pathsOf(got))

	assert.Equal(t, 0, New(WithLimit(-5)).Limit)
}

func TestInvalidPattern(t *testing.T) {
	f := New(WithInclude("[unterminated"), WithExclude("*.md"))
	require.Error(t, f.Err())
	assert.ErrorIs(t, f.Err(), ErrInvalidPattern)
	assert.Empty(t, f.Apply(entries()))
}

func TestParseSortField(t *testing.T) {
	for _, name := range SortFields() {
		field, err := ParseSortField(name)
		require.NoError(t, err)
		assert.Equal(t, name, field.String())
	}
	field, err := ParseSortField("MTIME")
	require.NoError(t, err)
	assert.Equal(t, SortTime, field)

	_, err = ParseSortField("colour")
	assert.ErrorIs(t, err, ErrInvalidSortField)
}
