// Package sevenzip reads and writes 7z archives. Content is decoded by
// github.com/bodgit/sevenzip; archivist parses the header database itself
// to learn which entries are encrypted, which that library does not
// expose, and writes archives with its own encoder.
package sevenzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/bodgit/sevenzip"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Archive is an opened 7z file.
type Archive struct {
	rc       *sevenzip.ReadCloser
	probe    *probe
	password types.Password
}

var _ container.Archive = (*Archive)(nil)

// Open reads the headers of the 7z file at path. A password is needed at
// this point only when the headers are encrypted.
func Open(path string, opts container.ReadOptions) (*Archive, error) {
	p, perr := probeFile(path)
	if perr != nil {
		if errors.Is(perr, types.ErrIO) {
			return nil, perr
		}
		logging.Get("container").Debug("7z header probe failed", "path", path, "error", perr)
	}
	headerEncrypted := p != nil && p.headerEncrypted
	if headerEncrypted && !opts.Password.IsSet() {
		return nil, fmt.Errorf("%w: %s has encrypted headers", types.ErrPasswordRequired, path)
	}

	rc, err := sevenzip.OpenReaderWithPassword(path, opts.Password.Reveal())
	if err != nil {
		var pe *fs.PathError
		switch {
		case errors.As(err, &pe):
			return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
		case headerEncrypted:
			return nil, fmt.Errorf("%w: cannot decrypt headers: %w", types.ErrIncorrectPassword, err)
		}
		return nil, fmt.Errorf("%w: %w", types.ErrCorruptArchive, err)
	}
	if p == nil {
		p = &probe{}
	}
	return &Archive{rc: rc, probe: p, password: opts.Password}, nil
}

// Close releases the file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Entries lists the files in header order.
func (a *Archive) Entries(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for i, f := range a.rc.File {
			if err := ctx.Err(); err != nil {
				yield(types.Entry{}, fmt.Errorf("%w: %w", types.ErrCancelled, err))
				return
			}
			if !yield(a.entryOf(i, f), nil) {
				return
			}
		}
	}
}

// Walk visits every file with access to its decoded content.
func (a *Archive) Walk(ctx context.Context, fn container.WalkFunc) error {
	for i, f := range a.rc.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		e := a.entryOf(i, f)
		if err := fn(e, func() (io.ReadCloser, error) { return a.open(f, e) }); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) entryOf(i int, f *sevenzip.File) types.Entry {
	info := f.FileInfo()
	e := types.Entry{
		Path:    strings.TrimSuffix(strings.ReplaceAll(f.Name, `\`, "/"), "/"),
		IsDir:   info.IsDir(),
		ModTime: f.Modified,
		Mode:    info.Mode().Perm(),
	}
	if e.IsDir {
		e.Mode |= fs.ModeDir
		return e
	}
	// Links are restored as regular files holding the target path.
	e.Size = f.UncompressedSize
	switch {
	case a.probe.headerEncrypted:
		e.Encrypted = e.Size > 0
	case i < len(a.probe.fileEncrypted):
		e.Encrypted = a.probe.fileEncrypted[i]
	}
	return e
}

func (a *Archive) open(f *sevenzip.File, e types.Entry) (io.ReadCloser, error) {
	if e.Encrypted && !a.password.IsSet() {
		return nil, fmt.Errorf("%w: %s is encrypted", types.ErrPasswordRequired, e.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, a.classify(e, err)
	}
	er := &entryReader{a: a, e: e, r: rc, c: rc}
	// An undefined digest reads back as zero.
	if f.CRC32 != 0 {
		er.r = codec.NewCRCReader(rc, f.CRC32)
	}
	return er, nil
}

// classify maps a decode failure onto the error kinds. Decoding with a
// wrong key fails like corruption does, so failures in encrypted folders
// are reported as a password problem.
func (a *Archive) classify(e types.Entry, err error) error {
	if types.IsPasswordError(err) || errors.Is(err, types.ErrCancelled) {
		return err
	}
	encrypted := e.Encrypted
	var re *sevenzip.ReadError
	if errors.As(err, &re) && re.Encrypted {
		encrypted = true
	}
	switch {
	case encrypted && !a.password.IsSet():
		return fmt.Errorf("%w: %s: %w", types.ErrPasswordRequired, e.Path, err)
	case encrypted:
		return fmt.Errorf("%w: %s: %w", types.ErrIncorrectPassword, e.Path, err)
	case types.KindOf(err) != nil:
		return fmt.Errorf("%s: %w", e.Path, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrCorruptArchive, e.Path, err)
}

type entryReader struct {
	a *Archive
	e types.Entry
	r io.Reader
	c io.Closer
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = r.a.classify(r.e, err)
	}
	return n, err
}

func (r *entryReader) Close() error {
	return r.c.Close()
}
