// Package rar lists and extracts RAR archives. Entry metadata comes from a
// header scanner so that listing never needs the decoder or a password
// unless the headers themselves are encrypted; content is decoded by
// github.com/nwaples/rardecode/v2. RAR archives cannot be written.
package rar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/nwaples/rardecode/v2"

	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Archive is an opened RAR file.
type Archive struct {
	path     string
	password types.Password
	version  int
	entries  []types.Entry
	byPath   map[string]types.Entry

	// order holds one record per file header in stream order, including
	// headers without a usable name, so it lines up with the decoder.
	order []types.Entry
}

var _ container.Archive = (*Archive)(nil)

// Open scans the headers of the RAR file at path. A password is needed at
// this point only when the headers are encrypted.
func Open(path string, opts container.ReadOptions) (*Archive, error) {
	res, err := scanFile(path)
	if err != nil {
		return nil, err
	}
	a := &Archive{path: path, password: opts.Password, version: res.version}

	if res.headerEncrypted {
		if !opts.Password.IsSet() {
			return nil, fmt.Errorf("%w: %s has encrypted headers", types.ErrPasswordRequired, path)
		}
		if a.order, err = a.decodeHeaders(); err != nil {
			return nil, err
		}
	} else {
		for _, h := range res.files {
			a.order = append(a.order, entryOf(h))
		}
	}

	a.byPath = make(map[string]types.Entry, len(a.order))
	for _, e := range a.order {
		if e.Path == "" {
			continue
		}
		a.entries = append(a.entries, e)
		a.byPath[e.Path] = e
	}
	logging.Get("container").Debug("scanned rar archive", "path", path, "version", res.version,
		"entries", len(a.entries), "encrypted_headers", res.headerEncrypted)
	return a, nil
}

// Version returns the archive format generation: 4 for RAR 1.5 to 4.x, 5
// for RAR 5.
func (a *Archive) Version() int {
	return a.version
}

// Close is a no-op; files are opened per operation.
func (a *Archive) Close() error {
	return nil
}

// Entries lists the files in header order.
func (a *Archive) Entries(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for _, e := range a.entries {
			if err := ctx.Err(); err != nil {
				yield(types.Entry{}, fmt.Errorf("%w: %w", types.ErrCancelled, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Walk decodes the archive in order, handing each entry to fn.
func (a *Archive) Walk(ctx context.Context, fn container.WalkFunc) error {
	rc, err := a.openReader()
	if err != nil {
		return err
	}
	defer rc.Close()

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// The failing header is the one expected next.
			var pending types.Entry
			if i < len(a.order) {
				pending = a.order[i]
			}
			return a.classify(pending, err)
		}

		e := a.known(i, headerEntry(hdr))
		if e.Path == "" {
			continue
		}
		err = fn(e, func() (io.ReadCloser, error) {
			if e.Encrypted && !a.password.IsSet() {
				return nil, fmt.Errorf("%w: %s is encrypted", types.ErrPasswordRequired, e.Path)
			}
			return &entryReader{a: a, e: e, r: rc}, nil
		})
		if err != nil {
			return err
		}
	}
}

func (a *Archive) openReader() (*rardecode.ReadCloser, error) {
	var opts []rardecode.Option
	if a.password.IsSet() {
		opts = append(opts, rardecode.Password(a.password.Reveal()))
	}
	rc, err := rardecode.OpenReader(a.path, opts...)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, a.path, err)
		}
		return nil, a.classify(types.Entry{Path: a.path}, err)
	}
	return rc, nil
}

// decodeHeaders lists an archive with encrypted headers through the
// decoder. Every file in such an archive is encrypted.
func (a *Archive) decodeHeaders() ([]types.Entry, error) {
	rc, err := a.openReader()
	if err != nil {
		return nil, a.headerError(err)
	}
	defer rc.Close()

	var out []types.Entry
	for {
		hdr, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, a.headerError(err)
		}
		e := headerEntry(hdr)
		e.Encrypted = e.Path != "" && !e.IsDir
		out = append(out, e)
	}
}

// known returns the scanned record for the i-th header the decoder yields.
// It matches by path first; when the decoder spells the name differently
// it falls back to the header at the same position and keeps the
// decoder's path.
func (a *Archive) known(i int, e types.Entry) types.Entry {
	if k, ok := a.byPath[e.Path]; ok {
		return k
	}
	if i < len(a.order) {
		k := a.order[i]
		e.Encrypted = k.Encrypted
		if e.Size == 0 {
			e.Size = k.Size
		}
	}
	return e
}

// headerError reports a failure to decrypt the headers. With a wrong key
// the decrypted headers fail their checksums, which the decoder reports
// as corruption.
func (a *Archive) headerError(err error) error {
	if types.KindOf(err) != nil && !errors.Is(err, types.ErrCorruptArchive) {
		return err
	}
	return fmt.Errorf("%w: cannot decrypt headers of %s: %w", types.ErrIncorrectPassword, a.path, err)
}

// classify maps a decoder failure onto the error kinds.
func (a *Archive) classify(e types.Entry, err error) error {
	if types.KindOf(err) != nil {
		return err
	}
	switch {
	case e.Encrypted && !a.password.IsSet():
		return fmt.Errorf("%w: %s: %w", types.ErrPasswordRequired, e.Path, err)
	case e.Encrypted:
		return fmt.Errorf("%w: %s: %w", types.ErrIncorrectPassword, e.Path, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrCorruptArchive, e.Path, err)
}

func entryOf(h header) types.Entry {
	return types.Entry{
		Path:           h.name,
		IsDir:          h.dir,
		Size:           h.size,
		CompressedSize: h.packed,
		Encrypted:      h.encrypted,
		ModTime:        h.modTime,
		Mode:           h.mode,
	}
}

func headerEntry(hdr *rardecode.FileHeader) types.Entry {
	e := types.Entry{
		Path:    cleanName(hdr.Name),
		IsDir:   hdr.IsDir,
		ModTime: hdr.ModificationTime,
		Mode:    hdr.Mode().Perm(),
	}
	if e.IsDir {
		e.Mode |= fs.ModeDir
		return e
	}
	if hdr.UnPackedSize > 0 {
		e.Size = uint64(hdr.UnPackedSize)
	}
	if hdr.PackedSize > 0 {
		e.CompressedSize = uint64(hdr.PackedSize)
	}
	return e
}

// cleanName converts a stored name to a slash separated path without a
// trailing separator.
func cleanName(name string) string {
	return strings.TrimSuffix(strings.ReplaceAll(name, `\`, "/"), "/")
}

// entryReader reads the current file of the decoder. Closing it leaves
// the decoder in place; the next call to Next skips any unread data.
type entryReader struct {
	a *Archive
	e types.Entry
	r io.Reader
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = r.a.classify(r.e, err)
	}
	return n, err
}

func (r *entryReader) Close() error {
	return nil
}
