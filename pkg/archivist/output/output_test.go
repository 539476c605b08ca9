package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func sample() *Result {
	return &Result{
		Archive: "/tmp/backup.zip",
		Format:  "zip",
		Entries: []types.Entry{
			{Path: "docs", IsDir: true, Mode: 0o755 | 1<<31},
			{Path: "docs/a.txt", Size: 2048, CompressedSize: 512, Mode: 0o644,
				ModTime: time.Date(2024, 3, 4, 5, 6, 0, 0, time.UTC)},
			{Path: "secret.bin", Size: 11, CompressedSize: 39, Encrypted: true},
		},
		TotalEntries: 5,
	}
}

func render(t *testing.T, name string, r *Result) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "jsonl", "plain", "pretty", "template", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)

	reg := NewRegistry()
	reg.Register("plain", func() Formatter { return &PlainFormatter{} })
	assert.Equal(t, []string{"plain"}, reg.Available())
}

func TestResultTotals(t *testing.T) {
	r := sample()
	assert.Equal(t, uint64(2059), r.TotalSize())
	assert.Equal(t, uint64(551), r.TotalCompressed())
	files, dirs := r.Counts()
	assert.Equal(t, 2, files)
	assert.Equal(t, 1, dirs)
	assert.True(t, r.Encrypted())
}

func TestPlain(t *testing.T) {
	out := render(t, "plain", sample())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ATTR"))
	assert.Contains(t, lines[1], "docs/")
	assert.Contains(t, lines[2], "2.0 KiB")
	assert.Contains(t, lines[2], "2024-03-04 05:06")
	assert.Contains(t, lines[3], "-*")
	assert.Contains(t, lines[3], "secret.bin")
}

func TestPretty(t *testing.T) {
	out := render(t, "pretty", sample())
	assert.Contains(t, out, "/tmp/backup.zip")
	assert.Contains(t, out, "encrypted")
	assert.Contains(t, out, "docs/a.txt")
	assert.Contains(t, out, "3 of 5 entries shown")

	empty := render(t, "pretty", &Result{Archive: "x.tar", Format: "tar"})
	assert.Contains(t, empty, "No entries match")
}

func TestJSON(t *testing.T) {
	var doc struct {
		Entries []map[string]any `json:"entries"`
		Meta    map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(render(t, "json", sample())), &doc))
	require.Len(t, doc.Entries, 3)
	assert.Equal(t, "docs/a.txt", doc.Entries[1]["path"])
	assert.Equal(t, "2.0 KiB", doc.Entries[1]["size_human"])
	assert.Equal(t, true, doc.Entries[2]["encrypted"])
	assert.NotContains(t, doc.Entries[2], "mod_time")
	assert.Equal(t, "zip", doc.Meta["format"])
	assert.InDelta(t, 2059, doc.Meta["total_size"], 0)
}

func TestJSONL(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(render(t, "jsonl", sample())), "\n")
	require.Len(t, lines, 3)
	var e map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, true, e["is_dir"])
}

func TestYAML(t *testing.T) {
	var doc document
	require.NoError(t, yaml.Unmarshal([]byte(render(t, "yaml", sample())), &doc))
	require.Len(t, doc.Entries, 3)
	assert.Equal(t, "-rw-r--r--", doc.Entries[1].Mode)
	assert.Equal(t, 5, doc.Meta.TotalEntries)
}

func TestTemplate(t *testing.T) {
	assert.Equal(t, "0 B\tdocs\n2.0 KiB\tdocs/a.txt\n11 B\tsecret.bin\n", render(t, "template", sample()))

	f := NewTemplateFormatter(`{{len .Entries}} {{bytes .TotalSize}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sample()))
	assert.Equal(t, "3 2.0 KiB", buf.String())

	f.SetTemplate("{{.Nope")
	assert.Error(t, f.Format(&buf, sample()))
}
