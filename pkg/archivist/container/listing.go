package container

import (
	"path"
	"slices"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/fsguard"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Normalize applies the listing invariants to raw container entries.
// Every path is cleaned first; records naming the archive root are dropped,
// and so are absolute or climbing names, which Extract rejects with
// types.ErrPathTraversal. Later records with the same cleaned path replace
// earlier ones in place, and a synthesized directory entry is inserted
// ahead of the first entry that needs a missing ancestor.
func Normalize(raw []types.Entry) []types.Entry {
	log := logging.Get("container")
	index := make(map[string]int, len(raw))
	out := make([]types.Entry, 0, len(raw))

	add := func(e types.Entry) {
		if i, ok := index[e.Path]; ok {
			out[i] = e
			return
		}
		index[e.Path] = len(out)
		out = append(out, e)
	}

	for _, e := range raw {
		clean, err := fsguard.CleanEntryPath(e.Path)
		if err != nil {
			log.Warn("omitting unsafe member from listing", "path", e.Path)
			continue
		}
		if clean == "" {
			continue
		}
		e.Path = clean
		for _, dir := range Ancestors(e.Path) {
			if _, ok := index[dir]; !ok {
				add(types.Entry{Path: dir, IsDir: true, Synthesized: true})
			}
		}
		add(e)
	}
	return out
}

// Ancestors returns the parent directories of p, outermost first.
func Ancestors(p string) []string {
	var dirs []string
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}

// Selector decides whether an entry is part of an extraction request.
type Selector struct {
	members map[string]bool
	dirs    []string
}

// NewSelector builds a selector for the requested member paths. A member
// names a file exactly or a directory and its subtree. An empty request
// selects everything.
func NewSelector(members []string) *Selector {
	s := &Selector{members: make(map[string]bool, len(members))}
	for _, m := range members {
		m = strings.Trim(strings.ReplaceAll(m, `\`, "/"), "/")
		m = path.Clean(m)
		if m == "." {
			// The archive root selects everything.
			return &Selector{}
		}
		s.members[m] = false
		s.dirs = append(s.dirs, m+"/")
	}
	return s
}

// All reports whether the selector accepts every entry.
func (s *Selector) All() bool {
	return len(s.members) == 0
}

// Match reports whether the cleaned entry path p is selected and records
// which requested member it satisfied.
func (s *Selector) Match(p string) bool {
	if s.All() {
		return true
	}
	if _, ok := s.members[p]; ok {
		s.members[p] = true
		return true
	}
	for _, d := range s.dirs {
		if strings.HasPrefix(p, d) {
			s.members[strings.TrimSuffix(d, "/")] = true
			return true
		}
	}
	return false
}

// Missing returns the requested members that matched nothing.
func (s *Selector) Missing() []string {
	var out []string
	for m, seen := range s.members {
		if !seen {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}
