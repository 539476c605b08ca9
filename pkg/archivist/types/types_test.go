package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"zip", FormatZip},
		{"ZIP", FormatZip},
		{"7z", FormatSevenZip},
		{"sevenzip", FormatSevenZip},
		{" tar ", FormatTar},
		{"rar", FormatRar},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("arj")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatWritable(t *testing.T) {
	assert.True(t, FormatZip.Writable())
	assert.True(t, FormatTar.Writable())
	assert.True(t, FormatSevenZip.Writable())
	assert.False(t, FormatRar.Writable())
	assert.False(t, FormatUnknown.Writable())
}

func TestProgressPercent(t *testing.T) {
	assert.InDelta(t, 100.0, Progress{}.Percent(), 0.001)
	assert.InDelta(t, 50.0, Progress{Completed: 1, Total: 2}.Percent(), 0.001)
	assert.InDelta(t, 100.0, Progress{Completed: 3, Total: 3}.Percent(), 0.001)
}

func TestPasswordIsRedacted(t *testing.T) {
	p := Password("hunter2")

	assert.Equal(t, "[redacted]", p.String())
	assert.Equal(t, "[redacted]", fmt.Sprintf("%v", p))
	assert.Equal(t, "[redacted]", fmt.Sprintf("%#v", p))
	assert.NotContains(t, fmt.Sprintf("%+v", struct{ P Password }{p}), "hunter2")
	assert.Equal(t, "hunter2", p.Reveal())
	assert.True(t, p.IsSet())
	assert.False(t, Password("").IsSet())
}

func TestKindOf(t *testing.T) {
	base := fmt.Errorf("%w: bad entry", ErrPathTraversal)
	wrapped := fmt.Errorf("extract foo.zip: %w", base)

	assert.Equal(t, ErrPathTraversal, KindOf(wrapped))
	assert.Nil(t, KindOf(nil))
	assert.Nil(t, KindOf(fmt.Errorf("plain")))
	assert.True(t, IsPasswordError(fmt.Errorf("x: %w", ErrIncorrectPassword)))
	assert.True(t, IsPasswordError(ErrPasswordRequired))
	assert.False(t, IsPasswordError(ErrIO))
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "a.txt", Entry{Path: "dir/sub/a.txt"}.Name())
	assert.Equal(t, "sub", Entry{Path: "dir/sub/", IsDir: true}.Name())
	assert.Equal(t, "top", Entry{Path: "top"}.Name())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "bytes suffix", input: "512B", want: 512},
		{name: "kilobytes", input: "100K", want: 100 * KiB},
		{name: "megabytes iec", input: "50MiB", want: 50 * MiB},
		{name: "gigabytes lower", input: "2g", want: 2 * GiB},
		{name: "decimal truncated", input: "1.5G", want: 1610612736},
		{name: "whitespace", input: "  10MB ", want: 10 * MiB},
		{name: "empty", input: "", wantErr: true},
		{name: "bad suffix", input: "100X", wantErr: true},
		{name: "negative", input: "-1M", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "1.5 MiB", FormatSize(1536*1024))
}
