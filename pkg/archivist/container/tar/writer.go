package tar

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Writer creates tar archives.
type Writer struct{}

var _ container.Writer = Writer{}

// NewWriter returns a tar writer.
func NewWriter() Writer {
	return Writer{}
}

// Write stores the groups in a new archive at dest, compressed with
// opts.Compression. Tar has no encryption, so a password is rejected.
func (Writer) Write(ctx context.Context, dest string, groups []container.Group, opts container.WriteOptions, progress func(types.Progress)) error {
	if opts.Password.IsSet() {
		return fmt.Errorf("%w: tar archives cannot be encrypted", types.ErrInvalidRequest)
	}
	log := logging.Get("container")

	return container.CreateFile(dest, func(f *os.File) error {
		cw, err := codec.NewWriter(opts.Compression, f, opts.Level)
		if err != nil {
			return err
		}
		tw := tar.NewWriter(cw)

		for i, g := range groups {
			for _, it := range g.Items {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %w", types.ErrCancelled, err)
				}
				if !it.IsDir() && !it.IsRegular() && !it.IsSymlink() {
					log.Warn("skipping special file", "path", it.Path, "mode", it.Info.Mode().String())
					continue
				}
				if err := addItem(tw, it); err != nil {
					return fmt.Errorf("add %s: %w", it.Name, err)
				}
			}
			container.ReportGroup(progress, i+1, len(groups), g)
		}

		if err := tw.Close(); err != nil {
			return fmt.Errorf("%w: finish tar: %w", types.ErrIO, err)
		}
		if err := cw.Close(); err != nil {
			return fmt.Errorf("%w: finish %s stream: %w", types.ErrIO, opts.Compression, err)
		}
		return nil
	})
}

func addItem(tw *tar.Writer, it container.Item) error {
	var link string
	if it.IsSymlink() {
		target, err := os.Readlink(it.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrIO, err)
		}
		link = target
	}

	hdr, err := tar.FileInfoHeader(it.Info, link)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	hdr.Name = it.Name
	if it.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if !it.IsRegular() {
		return nil
	}

	src, err := os.Open(it.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	defer src.Close()
	// The header size is fixed; a file that grew is cut to it.
	if _, err := io.CopyN(tw, src, hdr.Size); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	return nil
}
