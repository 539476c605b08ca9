package container

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Item is one filesystem object to be stored in an archive.
type Item struct {
	// Name is the slash-separated path inside the archive.
	Name string

	// Path is the filesystem path.
	Path string

	Info fs.FileInfo
}

// IsDir reports whether the item is a directory.
func (i Item) IsDir() bool { return i.Info.IsDir() }

// IsSymlink reports whether the item is a symbolic link.
func (i Item) IsSymlink() bool { return i.Info.Mode()&fs.ModeSymlink != 0 }

// IsRegular reports whether the item is a regular file.
func (i Item) IsRegular() bool { return i.Info.Mode().IsRegular() }

// Group is everything stored for one top-level source, in archive order.
type Group struct {
	// Name is the base name the source is stored under.
	Name   string
	Source string
	Items  []Item
}

// Expand turns the requested sources into groups of items. A file is
// stored under its base name; a directory is stored with its whole subtree
// under its base name. Symbolic links are not followed. skip, when set, is
// an absolute path never included (the archive being written).
func Expand(ctx context.Context, sources []string, skip string) ([]Group, error) {
	groups := make([]Group, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
		}
		g, err := expandOne(src, skip)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func expandOne(src, skip string) (Group, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return Group{}, fmt.Errorf("%w: resolve %s: %w", types.ErrIO, src, err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return Group{}, fmt.Errorf("%w: stat %s: %w", types.ErrIO, src, err)
	}

	name := filepath.Base(abs)
	g := Group{Name: name, Source: abs}
	g.Items = append(g.Items, Item{Name: name, Path: abs, Info: info})
	if !info.IsDir() {
		return g, nil
	}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == abs || p == skip {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		item := Item{Name: name + "/" + filepath.ToSlash(rel), Path: p, Info: fi}

		mu.Lock()
		g.Items = append(g.Items, item)
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		return Group{}, fmt.Errorf("%w: walk %s: %w", types.ErrIO, src, walkErr)
	}

	// fastwalk visits in no particular order; archives are written sorted
	// so that parents precede children and output is reproducible.
	slices.SortFunc(g.Items, func(a, b Item) int { return strings.Compare(a.Name, b.Name) })
	return g, nil
}

// CountItems returns the number of items across groups.
func CountItems(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	return n
}
