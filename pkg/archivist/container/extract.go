package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jamesainslie/archivist/pkg/archivist/fsguard"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// ExtractOptions configure Extract.
type ExtractOptions struct {
	// Dest is the destination directory. It is created when missing.
	Dest string

	// Members restricts extraction; empty means every entry.
	Members []string

	// Total is the number of entries that will be extracted, used for
	// progress reporting.
	Total int

	Progress func(types.Progress)
}

// Extract writes the selected entries of a below opts.Dest in container
// order and returns the number of entries written. Cancellation is checked
// between entries; output already written is left in place.
func Extract(ctx context.Context, a Archive, opts ExtractOptions) (int, error) {
	log := logging.Get("container")
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve destination: %w", types.ErrIO, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create destination: %w", types.ErrIO, err)
	}

	sel := NewSelector(opts.Members)
	done := 0
	err = a.Walk(ctx, func(e types.Entry, open OpenFunc) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		clean, err := fsguard.CleanEntryPath(e.Path)
		if err != nil {
			return err
		}
		if clean == "" || !sel.Match(clean) {
			return nil
		}
		target, err := fsguard.Resolve(dest, clean)
		if err != nil {
			return err
		}

		switch {
		case e.IsDir:
			err = writeDir(dest, target)
		case e.IsSymlink():
			err = writeSymlink(dest, target, e.Linkname)
		default:
			err = writeFile(dest, target, e, open)
		}
		if err != nil {
			return fmt.Errorf("extract %s: %w", clean, err)
		}

		done++
		log.Debug("extracted entry", "path", clean, "done", done, "total", opts.Total)
		if opts.Progress != nil {
			opts.Progress(types.Progress{Completed: done, Total: opts.Total, Current: clean})
		}
		return nil
	})
	return done, err
}

func ensureParent(dest, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", types.ErrIO, parent, err)
	}
	if !fsguard.RealWithin(dest, parent) {
		return fmt.Errorf("%w: %s is reached through a link outside the destination", types.ErrPathTraversal, parent)
	}
	return nil
}

func writeDir(dest, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %w", types.ErrIO, err)
	}
	if !fsguard.RealWithin(dest, target) {
		return fmt.Errorf("%w: directory resolves outside the destination", types.ErrPathTraversal)
	}
	return nil
}

func writeSymlink(dest, target, linkname string) error {
	if !fsguard.LinkInside(dest, target, linkname) {
		return fmt.Errorf("%w: link target %q leaves the destination", types.ErrPathTraversal, linkname)
	}
	if err := ensureParent(dest, target); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: replace link: %w", types.ErrIO, err)
	}
	if err := os.Symlink(filepath.FromSlash(linkname), target); err != nil {
		return fmt.Errorf("%w: create link: %w", types.ErrIO, err)
	}
	return nil
}

func writeFile(dest, target string, e types.Entry, open OpenFunc) error {
	if err := ensureParent(dest, target); err != nil {
		return err
	}

	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// A link left by an earlier entry must not be written through.
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("%w: replace link: %w", types.ErrIO, err)
		}
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm(e.Mode))
	if err != nil {
		return fmt.Errorf("%w: create file: %w", types.ErrIO, err)
	}
	_, copyErr := io.Copy(f, rc)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(target)
		if types.KindOf(copyErr) == nil {
			return fmt.Errorf("%w: write file: %w", types.ErrIO, copyErr)
		}
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close file: %w", types.ErrIO, closeErr)
	}
	if !e.ModTime.IsZero() {
		_ = os.Chtimes(target, e.ModTime, e.ModTime)
	}
	return nil
}

func filePerm(m fs.FileMode) fs.FileMode {
	perm := m.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm | 0o600
}
