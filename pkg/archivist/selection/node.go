// Package selection models the checkbox tree used to pick archive members
// for extraction. Each node carries a tri-state check mark; checking a node
// propagates down to its subtree and the marks of its ancestors are inferred
// from their children.
package selection

// State is a tri-state check mark.
type State int

const (
	Unchecked State = iota
	Checked
	Partial
)

// String returns "checked", "partial" or "unchecked".
func (s State) String() string {
	switch s {
	case Checked:
		return "checked"
	case Partial:
		return "partial"
	}
	return "unchecked"
}

// Node is a directory or file of an archive listing.
type Node struct {
	// Path is the slash-separated member path; empty for the root.
	Path string
	Name string

	IsDir bool
	Size  uint64

	// Encrypted is true for files whose content needs a password.
	Encrypted bool

	// Synthesized marks directories implied by a descendant only.
	Synthesized bool

	State    State
	Expanded bool

	Children []*Node
	Parent   *Node
}

// AddChild adds a child node and sets this node as the child's parent.
func (n *Node) AddChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// IsLeaf returns true if the node is a file or an empty directory.
func (n *Node) IsLeaf() bool {
	return !n.IsDir || len(n.Children) == 0
}

// Depth returns the depth of this node below the root (root = 0).
func (n *Node) Depth() int {
	depth := 0
	for p := n.Parent; p != nil; p = p.Parent {
		depth++
	}
	return depth
}

// Flatten returns the visible nodes in display order. Collapsed
// directories hide their children.
func (n *Node) Flatten() []*Node {
	result := []*Node{n}
	if n.IsDir && n.Expanded {
		for _, child := range n.Children {
			result = append(result, child.Flatten()...)
		}
	}
	return result
}

// ToggleExpanded expands or collapses a directory node.
func (n *Node) ToggleExpanded() {
	if n.IsDir {
		n.Expanded = !n.Expanded
	}
}

// ExpandAll expands this node and all descendant directories.
func (n *Node) ExpandAll() {
	if n.IsDir {
		n.Expanded = true
		for _, child := range n.Children {
			child.ExpandAll()
		}
	}
}

// CollapseAll collapses this node and all descendant directories.
func (n *Node) CollapseAll() {
	if n.IsDir {
		n.Expanded = false
		for _, child := range n.Children {
			child.CollapseAll()
		}
	}
}

// PropagateDown sets s on n and its whole subtree.
func (n *Node) PropagateDown(s State) {
	n.State = s
	for _, child := range n.Children {
		child.PropagateDown(s)
	}
}

// InferUp recomputes the marks of n's ancestors: a parent whose children
// agree takes their mark, otherwise it is Partial.
func (n *Node) InferUp() {
	for p := n.Parent; p != nil; p = p.Parent {
		p.State = inferred(p.Children)
	}
}

func inferred(children []*Node) State {
	if len(children) == 0 {
		return Unchecked
	}
	first := children[0].State
	for _, c := range children[1:] {
		if c.State != first {
			return Partial
		}
	}
	return first
}
