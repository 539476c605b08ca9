// Package output provides formatters for archive listings in several
// output formats (pretty, plain, json, jsonl, yaml, template).
//
// The package uses a registry pattern so the CLI can select a formatter by
// name at runtime.
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// logger is the package-level logger for output operations.
var logger = logging.Get("output")

// Result is one archive listing prepared for display.
type Result struct {
	// Archive is the path of the listed archive.
	Archive string

	// Format is the detected format name, e.g. "zip" or "tar.gz".
	Format string

	// Entries are the entries to display, already filtered and sorted.
	Entries []types.Entry

	// TotalEntries is the number of entries before filtering.
	TotalEntries int
}

// TotalSize returns the summed uncompressed size of the displayed files.
func (r *Result) TotalSize() uint64 {
	var total uint64
	for _, e := range r.Entries {
		total += e.Size
	}
	return total
}

// TotalCompressed returns the summed stored size of the displayed files.
func (r *Result) TotalCompressed() uint64 {
	var total uint64
	for _, e := range r.Entries {
		total += e.CompressedSize
	}
	return total
}

// Counts returns the number of displayed files and directories.
func (r *Result) Counts() (files, dirs int) {
	for _, e := range r.Entries {
		if e.IsDir {
			dirs++
		} else {
			files++
		}
	}
	return files, dirs
}

// Encrypted reports whether any displayed entry needs a password.
func (r *Result) Encrypted() bool {
	for _, e := range r.Entries {
		if e.Encrypted {
			return true
		}
	}
	return false
}

// displayPath renders directories with a trailing slash.
func displayPath(e types.Entry) string {
	if e.IsDir {
		return e.Path + "/"
	}
	return e.Path
}

// flags renders the one-letter attribute column: d for directories,
// l for links, * for encrypted content.
func flags(e types.Entry) string {
	var sb strings.Builder
	switch {
	case e.IsDir:
		sb.WriteByte('d')
	case e.IsSymlink():
		sb.WriteByte('l')
	default:
		sb.WriteByte('-')
	}
	if e.Encrypted {
		sb.WriteByte('*')
	} else {
		sb.WriteByte(' ')
	}
	return sb.String()
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		logger.Debug("unknown formatter requested", "name", name)
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
