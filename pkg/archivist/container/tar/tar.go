// Package tar reads and writes tar archives, optionally wrapped in one of
// the stream compressions of the codec package.
package tar

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Archive is a tar file. Being a stream format, every listing or walk
// reopens and decodes the file from the start.
type Archive struct {
	path        string
	compression types.Compression
}

var _ container.Archive = (*Archive)(nil)

// Open checks that path holds a readable tar stream with the given outer
// compression.
func Open(path string, compression types.Compression) (*Archive, error) {
	a := &Archive{path: path, compression: compression}
	s, err := a.stream()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if _, err := s.next(); err != nil && err != io.EOF {
		return nil, err
	}
	return a, nil
}

// Close is a no-op; files are only held open during a pass.
func (a *Archive) Close() error { return nil }

// Compression returns the outer stream compression.
func (a *Archive) Compression() types.Compression { return a.compression }

type stream struct {
	f  *os.File
	dc io.ReadCloser
	tr *tar.Reader
}

func (a *Archive) stream() (*stream, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, a.path, err)
	}
	dc, err := codec.NewReader(a.compression, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &stream{f: f, dc: dc, tr: tar.NewReader(dc)}, nil
}

func (s *stream) next() (*tar.Header, error) {
	hdr, err := s.tr.Next()
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil && types.KindOf(err) != nil:
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: read tar header: %w", types.ErrCorruptArchive, err)
	}
	return hdr, nil
}

func (s *stream) Close() error {
	_ = s.dc.Close()
	return s.f.Close()
}

// Entries lists the tar members in stream order. Device nodes and FIFOs
// are not reported.
func (a *Archive) Entries(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		err := a.each(ctx, func(e types.Entry, _ *stream) error {
			if !yield(e, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(types.Entry{}, err)
		}
	}
}

var errStop = errors.New("stop")

// Walk visits every member with access to its content. Hard links are
// served from the content of their target.
func (a *Archive) Walk(ctx context.Context, fn container.WalkFunc) error {
	return a.each(ctx, func(e types.Entry, s *stream) error {
		open := func() (io.ReadCloser, error) {
			if e.Linkname != "" && !e.IsSymlink() {
				return a.openLink(ctx, e.Linkname)
			}
			return io.NopCloser(&dataReader{r: s.tr}), nil
		}
		return fn(e, open)
	})
}

func (a *Archive) each(ctx context.Context, fn func(types.Entry, *stream) error) error {
	s, err := a.stream()
	if err != nil {
		return err
	}
	defer s.Close()

	log := logging.Get("container")
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		hdr, err := s.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		e, ok := entryOf(hdr)
		if !ok {
			log.Debug("skipping tar member", "name", hdr.Name, "type", string(hdr.Typeflag))
			continue
		}
		if err := fn(e, s); err != nil {
			return err
		}
	}
}

// openLink reopens the archive and returns the content of the member
// named target.
func (a *Archive) openLink(ctx context.Context, target string) (io.ReadCloser, error) {
	s, err := a.stream()
	if err != nil {
		return nil, err
	}
	want := cleanName(target)
	for {
		if err := ctx.Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		hdr, err := s.next()
		if err == io.EOF {
			_ = s.Close()
			return nil, fmt.Errorf("%w: hard link target %q not found", types.ErrCorruptArchive, target)
		}
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if cleanName(hdr.Name) == want && isRegular(hdr.Typeflag) {
			return struct {
				io.Reader
				io.Closer
			}{&dataReader{r: s.tr}, s}, nil
		}
	}
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	return strings.TrimSuffix(name, "/")
}

func isRegular(flag byte) bool {
	//nolint:staticcheck // old archives still carry TypeRegA
	return flag == tar.TypeReg || flag == tar.TypeRegA || flag == tar.TypeGNUSparse || flag == tar.TypeCont
}

func entryOf(hdr *tar.Header) (types.Entry, bool) {
	e := types.Entry{
		Path:    cleanName(hdr.Name),
		ModTime: hdr.ModTime,
		Mode:    fs.FileMode(hdr.Mode).Perm(),
	}
	if e.Path == "" {
		return e, false
	}
	switch {
	case hdr.Typeflag == tar.TypeDir:
		e.IsDir = true
		e.Mode |= fs.ModeDir
	case hdr.Typeflag == tar.TypeSymlink:
		e.Mode |= fs.ModeSymlink
		e.Linkname = hdr.Linkname
	case hdr.Typeflag == tar.TypeLink:
		e.Linkname = hdr.Linkname
	case isRegular(hdr.Typeflag):
		e.Size = uint64(max(hdr.Size, 0))
	default:
		return e, false
	}
	return e, true
}

// dataReader reports truncated member data as corruption.
type dataReader struct {
	r io.Reader
}

func (d *dataReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF && types.KindOf(err) == nil {
		err = fmt.Errorf("%w: read tar data: %w", types.ErrCorruptArchive, err)
	}
	return n, err
}
