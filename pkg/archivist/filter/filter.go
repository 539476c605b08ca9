package filter

import (
	"cmp"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Filter defines criteria for filtering, sorting and limiting a listing.
type Filter struct {
	// Include contains glob patterns. If non-empty, entries must match at
	// least one. A pattern without a slash is matched against the final
	// path element, one with a slash against the whole path.
	Include []string

	// Exclude contains glob patterns. Matching entries are excluded.
	Exclude []string

	// Extensions contains file extensions to include (e.g. ".go").
	Extensions []string

	// FilesOnly drops directory entries.
	FilesOnly bool

	// MinSize is the minimum uncompressed size of files. Directories are
	// not affected.
	MinSize uint64

	// MaxDepth limits how many path elements an entry may have. 0 means
	// unlimited.
	MaxDepth int

	SortBy         SortField
	SortDescending bool

	// Limit is the maximum number of entries to return. 0 means unlimited.
	Limit int

	include []glob.Glob
	exclude []glob.Glob
	errs    []error
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter with the given options. The default keeps every
// entry in container order.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	f.include = f.compile(f.Include)
	f.exclude = f.compile(f.Exclude)
	return f
}

func (f *Filter) compile(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			f.errs = append(f.errs, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, p, err))
			continue
		}
		out = append(out, matcher{g: g, base: !strings.Contains(p, "/")})
	}
	return out
}

// Err reports patterns that failed to compile. Invalid patterns are
// otherwise ignored.
func (f *Filter) Err() error {
	return errors.Join(f.errs...)
}

// matcher applies a compiled pattern to the base name or the full path.
type matcher struct {
	g    glob.Glob
	base bool
}

func (m matcher) Match(p string) bool {
	if m.base {
		return m.g.Match(path.Base(p))
	}
	return m.g.Match(p)
}

// WithInclude sets the include glob patterns.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithExtensions sets the file extensions to include.
// Extensions are normalized: lowercase and prefixed with "." if missing.
func WithExtensions(extensions ...string) Option {
	return func(f *Filter) {
		normalized := make([]string, 0, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			normalized = append(normalized, ext)
		}
		f.Extensions = normalized
	}
}

// WithFilesOnly drops directory entries.
func WithFilesOnly(filesOnly bool) Option {
	return func(f *Filter) {
		f.FilesOnly = filesOnly
	}
}

// WithMinSize sets the minimum file size in bytes.
func WithMinSize(minSize uint64) Option {
	return func(f *Filter) {
		f.MinSize = minSize
	}
}

// WithMaxDepth sets the maximum path depth. Negative values are set to 0.
func WithMaxDepth(depth int) Option {
	return func(f *Filter) {
		if depth < 0 {
			depth = 0
		}
		f.MaxDepth = depth
	}
}

// WithSortBy sets the field to sort results by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// WithLimit sets the maximum number of entries to return.
// If limit < 0, it is set to 0 (unlimited).
func WithLimit(limit int) Option {
	return func(f *Filter) {
		if limit < 0 {
			limit = 0
		}
		f.Limit = limit
	}
}

// Match returns true if the entry matches all filter criteria.
func (f *Filter) Match(e types.Entry) bool {
	if f.FilesOnly && e.IsDir {
		return false
	}
	if !e.IsDir && f.MinSize > 0 && e.Size < f.MinSize {
		return false
	}
	if !f.matchExtension(e) {
		return false
	}
	if f.MaxDepth > 0 && strings.Count(e.Path, "/")+1 > f.MaxDepth {
		return false
	}
	return f.matchPatterns(e.Path)
}

func (f *Filter) matchExtension(e types.Entry) bool {
	if len(f.Extensions) == 0 {
		return true
	}
	if e.IsDir {
		return !f.FilesOnly
	}
	return slices.Contains(f.Extensions, strings.ToLower(path.Ext(e.Path)))
}

func (f *Filter) matchPatterns(p string) bool {
	if matchesAny(p, f.exclude) {
		return false
	}
	if len(f.Include) > 0 && !matchesAny(p, f.include) {
		return false
	}
	return true
}

func matchesAny(p string, globs []glob.Glob) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of entries. SortNone keeps the input order.
func (f *Filter) Sort(entries []types.Entry) []types.Entry {
	sorted := slices.Clone(entries)
	if f.SortBy == SortNone {
		if f.SortDescending {
			slices.Reverse(sorted)
		}
		return sorted
	}

	slices.SortStableFunc(sorted, func(a, b types.Entry) int {
		var result int
		switch f.SortBy {
		case SortSize:
			result = cmp.Compare(a.Size, b.Size)
		case SortTime:
			result = a.ModTime.Compare(b.ModTime)
		case SortName:
			result = cmp.Compare(a.Name(), b.Name())
		default:
			result = cmp.Compare(a.Path, b.Path)
		}
		if f.SortDescending {
			return -result
		}
		return result
	})
	return sorted
}

// Apply runs the complete pipeline: Match, Sort and Limit.
func (f *Filter) Apply(entries []types.Entry) []types.Entry {
	var matched []types.Entry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}

	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
