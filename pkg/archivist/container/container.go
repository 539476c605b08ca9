// Package container defines the reader and writer contracts implemented by
// each archive format, plus the format independent pieces built on them:
// listing normalisation, source expansion for writers and the extraction
// driver.
package container

import (
	"context"
	"io"
	"iter"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// OpenFunc opens the content of the entry it was handed with. It is only
// valid during the WalkFunc call.
type OpenFunc func() (io.ReadCloser, error)

// WalkFunc is called for each entry in container order.
type WalkFunc func(e types.Entry, open OpenFunc) error

// Archive is an opened archive of a fixed format.
type Archive interface {
	// Entries lists the recorded entries lazily. Each call starts again
	// from the beginning of the archive.
	Entries(ctx context.Context) iter.Seq2[types.Entry, error]

	// Walk visits every recorded entry with access to its content.
	Walk(ctx context.Context, fn WalkFunc) error

	// Close releases the underlying file.
	Close() error
}

// Writer creates an archive of one format.
type Writer interface {
	Write(ctx context.Context, dest string, groups []Group, opts WriteOptions, progress func(types.Progress)) error
}

// WriteOptions tune archive creation.
type WriteOptions struct {
	Password    types.Password
	Level       int
	Compression types.Compression

	// Method names the ZIP compression method: "lzma", "deflate" or "store".
	Method string
}

// ReadOptions tune archive reading.
type ReadOptions struct {
	Password types.Password
}

// Collect drains an entry sequence into a slice.
func Collect(seq iter.Seq2[types.Entry, error]) ([]types.Entry, error) {
	var out []types.Entry
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ReportGroup emits the progress tick for a finished top-level source.
func ReportGroup(progress func(types.Progress), done, total int, g Group) {
	if progress != nil {
		progress(types.Progress{Completed: done, Total: total, Current: g.Name})
	}
}
