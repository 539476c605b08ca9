package selection

import (
	"path"
	"slices"
	"strings"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Tree is the checkbox tree of one archive listing.
type Tree struct {
	Root  *Node
	nodes map[string]*Node
}

// Build constructs a tree from a listing. Ancestor directories missing from
// the listing are synthesized; a later entry with the same path replaces
// an earlier one. Children are ordered directories first, then by name.
// Top-level directories start expanded.
func Build(entries []types.Entry) *Tree {
	t := &Tree{
		Root:  &Node{IsDir: true, Expanded: true},
		nodes: make(map[string]*Node),
	}
	t.nodes[""] = t.Root

	for _, e := range entries {
		p := strings.Trim(e.Path, "/")
		if p == "" {
			continue
		}
		parent := t.ensureDir(path.Dir(p))
		if n, ok := t.nodes[p]; ok {
			n.IsDir = e.IsDir || len(n.Children) > 0
			n.Size = e.Size
			n.Encrypted = e.Encrypted
			n.Synthesized = false
			continue
		}
		n := &Node{
			Path:        p,
			Name:        path.Base(p),
			IsDir:       e.IsDir,
			Size:        e.Size,
			Encrypted:   e.Encrypted,
			Synthesized: e.Synthesized,
		}
		parent.AddChild(n)
		t.nodes[p] = n
	}

	sortChildren(t.Root)
	for _, child := range t.Root.Children {
		if child.IsDir {
			child.Expanded = true
		}
	}
	return t
}

// ensureDir returns the node for directory dir, creating it and its
// ancestors as synthesized directories when missing.
func (t *Tree) ensureDir(dir string) *Node {
	if dir == "." || dir == "/" {
		dir = ""
	}
	if n, ok := t.nodes[dir]; ok {
		n.IsDir = true
		return n
	}
	parent := t.ensureDir(path.Dir(dir))
	n := &Node{Path: dir, Name: path.Base(dir), IsDir: true, Synthesized: true}
	parent.AddChild(n)
	t.nodes[dir] = n
	return n
}

func sortChildren(n *Node) {
	slices.SortStableFunc(n.Children, func(a, b *Node) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	for _, child := range n.Children {
		sortChildren(child)
	}
}

// Node returns the node for member path p, or nil.
func (t *Tree) Node(p string) *Node {
	return t.nodes[strings.Trim(p, "/")]
}

// Len returns the number of nodes, excluding the root.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Toggle flips the mark of the node at p: a checked node becomes
// unchecked, anything else becomes checked. The new mark propagates down
// and the ancestors are inferred. It reports whether p exists.
func (t *Tree) Toggle(p string) bool {
	n := t.Node(p)
	if n == nil {
		return false
	}
	next := Checked
	if n.State == Checked {
		next = Unchecked
	}
	t.set(n, next)
	return true
}

// Set marks the node at p with s (Checked or Unchecked). It reports
// whether p exists.
func (t *Tree) Set(p string, s State) bool {
	n := t.Node(p)
	if n == nil || s == Partial {
		return false
	}
	t.set(n, s)
	return true
}

func (t *Tree) set(n *Node, s State) {
	n.PropagateDown(s)
	n.InferUp()
}

// CheckAll marks every node checked.
func (t *Tree) CheckAll() { t.Root.PropagateDown(Checked) }

// UncheckAll clears every mark.
func (t *Tree) UncheckAll() { t.Root.PropagateDown(Unchecked) }

// Selected returns the member paths to request for extraction. A fully
// checked directory is returned once as "dir/" instead of its contents.
// When everything is checked the result is empty, meaning the whole
// archive.
func (t *Tree) Selected() []string {
	if t.Root.State == Checked {
		return nil
	}
	var out []string
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			switch c.State {
			case Checked:
				if c.IsDir {
					out = append(out, c.Path+"/")
				} else {
					out = append(out, c.Path)
				}
			case Partial:
				walk(c)
			}
		}
	}
	walk(t.Root)
	return out
}

// Any reports whether at least one node is checked.
func (t *Tree) Any() bool {
	return t.Root.State != Unchecked
}

// CheckedFiles returns the number and total size of checked files.
func (t *Tree) CheckedFiles() (count int, size uint64) {
	for _, n := range t.nodes {
		if !n.IsDir && n.State == Checked {
			count++
			size += n.Size
		}
	}
	return count, size
}

// Visible returns the displayed nodes in order. The root itself is not
// displayed.
func (t *Tree) Visible() []*Node {
	var out []*Node
	for _, c := range t.Root.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}
