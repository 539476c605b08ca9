// Package engine orchestrates archive operations: it detects formats,
// lists archives, validates requests and runs extraction and creation
// through the container packages, mapping every outcome onto a terminal
// state.
package engine

import (
	"context"
	"fmt"
	"iter"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/container/rar"
	"github.com/jamesainslie/archivist/pkg/archivist/container/sevenzip"
	"github.com/jamesainslie/archivist/pkg/archivist/container/tar"
	"github.com/jamesainslie/archivist/pkg/archivist/container/zip"
	"github.com/jamesainslie/archivist/pkg/archivist/detect"
	"github.com/jamesainslie/archivist/pkg/archivist/fsguard"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// FreeSpaceFunc reports the bytes available on the filesystem holding
// path; ok is false when that is unknown.
type FreeSpaceFunc func(path string) (free uint64, ok bool, err error)

// Engine runs archive operations. It holds configuration only; every
// operation opens and closes its own archive handle.
type Engine struct {
	level     int
	zipMethod string
	freeSpace FreeSpaceFunc
	log       *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLevel sets the compression level used when a request asks for
// DefaultLevel.
func WithLevel(level int) Option {
	return func(e *Engine) {
		e.level = level
	}
}

// WithZipMethod sets the default ZIP compression method.
func WithZipMethod(method string) Option {
	return func(e *Engine) {
		e.zipMethod = method
	}
}

// WithFreeSpace replaces the free space probe used before extraction.
func WithFreeSpace(fn FreeSpaceFunc) Option {
	return func(e *Engine) {
		e.freeSpace = fn
	}
}

// New returns an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		level:     codec.DefaultLevel,
		freeSpace: fsguard.FreeSpace,
		log:       logging.Get("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectFormat identifies the archive at path. Existing files are sniffed;
// names of files that do not exist yet are matched by extension.
func (e *Engine) DetectFormat(path string) (types.Format, types.Compression, error) {
	return detect.Detect(path)
}

// open detects the format of an existing archive and opens it.
func (e *Engine) open(path string, password types.Password) (container.Archive, types.Format, error) {
	format, compression, err := detect.Sniff(path)
	if err != nil {
		return nil, types.FormatUnknown, err
	}
	opts := container.ReadOptions{Password: password}

	var a container.Archive
	switch format {
	case types.FormatZip:
		a, err = zip.Open(path, opts)
	case types.FormatTar:
		a, err = tar.Open(path, compression)
	case types.FormatSevenZip:
		a, err = sevenzip.Open(path, opts)
	case types.FormatRar:
		a, err = rar.Open(path, opts)
	default:
		err = fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, format, err
	}
	return a, format, nil
}

// List returns the normalized listing of the archive at path: duplicate
// paths collapse onto the last record and missing ancestor directories
// are synthesized. Listing needs a password only for archives whose
// headers are encrypted.
func (e *Engine) List(ctx context.Context, path string, password types.Password) ([]types.Entry, error) {
	a, format, err := e.open(path, password)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	raw, err := container.Collect(a.Entries(ctx))
	if err != nil {
		return nil, err
	}
	entries := container.Normalize(raw)
	e.log.Debug("listed archive", "archive", path, "format", format, "entries", len(entries))
	return entries, nil
}

// Entries streams the raw records of the archive at path in container
// order. Each iteration opens the archive again and starts from the
// beginning; the handle is closed when iteration stops.
func (e *Engine) Entries(ctx context.Context, path string, password types.Password) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		a, _, err := e.open(path, password)
		if err != nil {
			yield(types.Entry{}, err)
			return
		}
		defer a.Close()
		for entry, err := range a.Entries(ctx) {
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func (e *Engine) writer(format types.Format) (container.Writer, error) {
	switch format {
	case types.FormatZip:
		return zip.NewWriter(), nil
	case types.FormatTar:
		return tar.NewWriter(), nil
	case types.FormatSevenZip:
		return sevenzip.NewWriter(), nil
	}
	return nil, fmt.Errorf("%w: cannot write %s archives", types.ErrUnsupportedFormat, format)
}
