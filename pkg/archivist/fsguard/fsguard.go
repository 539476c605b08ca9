// Package fsguard validates archive member paths against an extraction
// root and probes the filesystem for free space.
package fsguard

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// CleanEntryPath normalises an archive member name to a clean, relative,
// slash-separated path. Backslashes are treated as separators. Names that
// are absolute, carry a drive letter or climb with ".." are rejected with
// types.ErrPathTraversal. A name that refers to the archive root ("./")
// cleans to "".
func CleanEntryPath(name string) (string, error) {
	p := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(p, "/") || hasDriveLetter(p) {
		return "", fmt.Errorf("%w: absolute member path %q", types.ErrPathTraversal, name)
	}
	for seg := range strings.SplitSeq(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: member path %q leaves the archive root", types.ErrPathTraversal, name)
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", nil
	}
	return p, nil
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// Resolve returns the filesystem path for member name under root. It
// applies CleanEntryPath and then confirms the joined path stays inside
// root.
func Resolve(root, name string) (string, error) {
	clean, err := CleanEntryPath(name)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return filepath.Clean(root), nil
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	if !Within(root, target) {
		return "", fmt.Errorf("%w: %q resolves outside %s", types.ErrPathTraversal, name, root)
	}
	return target, nil
}

// Within reports whether target is root or lies beneath it. Both paths
// are compared lexically.
func Within(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel))
}

// LinkInside reports whether a symbolic link at linkPath pointing to target
// resolves inside root. Absolute targets are never inside.
func LinkInside(root, linkPath, target string) bool {
	if target == "" || filepath.IsAbs(target) || strings.HasPrefix(target, "/") || hasDriveLetter(target) {
		return false
	}
	resolved := filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(target))
	return Within(root, resolved)
}

// RealWithin reports whether the existing directory dir lies inside root
// once symbolic links in both are resolved. It catches links planted in the
// destination tree.
func RealWithin(root, dir string) bool {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return false
	}
	return Within(realRoot, realDir)
}
