package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// document is the structure shared by the json and yaml formatters.
type document struct {
	Entries []docEntry `json:"entries" yaml:"entries"`
	Meta    docMeta    `json:"meta" yaml:"meta"`
}

type docEntry struct {
	Path           string    `json:"path" yaml:"path"`
	IsDir          bool      `json:"is_dir" yaml:"is_dir"`
	Size           uint64    `json:"size" yaml:"size"`
	SizeHuman      string    `json:"size_human" yaml:"size_human"`
	CompressedSize uint64    `json:"compressed_size" yaml:"compressed_size"`
	Encrypted      bool      `json:"encrypted" yaml:"encrypted"`
	ModTime        time.Time `json:"mod_time,omitzero" yaml:"mod_time,omitempty"`
	Mode           string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Linkname       string    `json:"linkname,omitempty" yaml:"linkname,omitempty"`
	Synthesized    bool      `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
}

type docMeta struct {
	Archive         string `json:"archive" yaml:"archive"`
	Format          string `json:"format" yaml:"format"`
	Files           int    `json:"files" yaml:"files"`
	Dirs            int    `json:"dirs" yaml:"dirs"`
	TotalEntries    int    `json:"total_entries" yaml:"total_entries"`
	TotalSize       uint64 `json:"total_size" yaml:"total_size"`
	TotalCompressed uint64 `json:"total_compressed" yaml:"total_compressed"`
	Encrypted       bool   `json:"encrypted" yaml:"encrypted"`
}

func toDocEntry(e types.Entry) docEntry {
	d := docEntry{
		Path:           e.Path,
		IsDir:          e.IsDir,
		Size:           e.Size,
		SizeHuman:      humanize.IBytes(e.Size),
		CompressedSize: e.CompressedSize,
		Encrypted:      e.Encrypted,
		ModTime:        e.ModTime,
		Linkname:       e.Linkname,
		Synthesized:    e.Synthesized,
	}
	if e.Mode != 0 {
		d.Mode = e.Mode.String()
	}
	return d
}

func buildDocument(r *Result) document {
	entries := make([]docEntry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = toDocEntry(e)
	}
	files, dirs := r.Counts()
	return document{
		Entries: entries,
		Meta: docMeta{
			Archive:         r.Archive,
			Format:          r.Format,
			Files:           files,
			Dirs:            dirs,
			TotalEntries:    r.TotalEntries,
			TotalSize:       r.TotalSize(),
			TotalCompressed: r.TotalCompressed(),
			Encrypted:       r.Encrypted(),
		},
	}
}

// JSONFormatter formats output as a single indented JSON object with
// entries and meta sections.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

// JSONLFormatter writes one compact JSON object per entry, for streaming
// into tools like jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, e := range r.Entries {
		data, err := json.Marshal(toDocEntry(e))
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

// YAMLFormatter formats output as YAML with the same structure as
// JSONFormatter.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildDocument(r)); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
	Register("yaml", func() Formatter { return &YAMLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
)
