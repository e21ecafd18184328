package objstore

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// FileEntry is one blob referenced directly by a directory node.
type FileEntry struct {
	Mode  string
	Ident Ident
	Name  string
}

// node is one directory in the arena. Children are referenced by index
// into Tree.nodes rather than by pointer, and a node's parent is an index
// too (-1 for the root) so the arena can be walked, copied and diffed
// without worrying about ownership.
type node struct {
	name    string
	parent  int
	subdirs []int
	files   []FileEntry
	ident   Ident
	written bool
}

// Tree is an in-memory directory tree, built either from a flat index
// (BuildFromIndex, for write-tree) or from a stored root object
// (ReadTree, for checkout and diffing).
type Tree struct {
	nodes []node
}

// newTree returns a tree containing just an empty root.
func newTree() *Tree {
	return &Tree{nodes: []node{{name: "", parent: -1}}}
}

const rootIndex = 0

// FullPath joins a node's name with its ancestors' names down to (not
// including) the root, using "/" regardless of host OS so identifiers
// stay platform-independent.
func (t *Tree) FullPath(idx int) string {
	var parts []string
	for idx != rootIndex {
		n := &t.nodes[idx]
		parts = append([]string{n.name}, parts...)
		idx = n.parent
	}
	return strings.Join(parts, "/")
}

func (t *Tree) findSubdir(parentIdx int, name string) (int, bool) {
	for _, childIdx := range t.nodes[parentIdx].subdirs {
		if t.nodes[childIdx].name == name {
			return childIdx, true
		}
	}
	return -1, false
}

// findOrCreateSubdir walks (creating as needed) the chain of directory
// segments starting at parentIdx, returning the index of the final
// directory in the chain.
func (t *Tree) findOrCreateSubdir(parentIdx int, segments []string) int {
	current := parentIdx
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		if existing, ok := t.findSubdir(current, seg); ok {
			current = existing
			continue
		}
		t.nodes = append(t.nodes, node{name: seg, parent: current})
		newIdx := len(t.nodes) - 1
		t.nodes[current].subdirs = append(t.nodes[current].subdirs, newIdx)
		current = newIdx
	}
	return current
}

func splitPath(path string) []string {
	clean := filepath.ToSlash(filepath.Clean(path))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || clean == "" {
		return nil
	}
	return strings.Split(clean, "/")
}

// BuildFromIndex assembles an arena tree from a flat list of staged
// (mode, ident, path) entries, grouping each file under its directory
// chain (created on demand), mirroring build_tree's directory-of-filename
// grouping.
func BuildFromIndex(entries []IndexEntry) *Tree {
	t := newTree()
	for _, e := range entries {
		segments := splitPath(e.Path)
		if len(segments) == 0 {
			continue
		}
		dirSegments := segments[:len(segments)-1]
		name := segments[len(segments)-1]
		dirIdx := t.findOrCreateSubdir(rootIndex, dirSegments)
		t.nodes[dirIdx].files = append(t.nodes[dirIdx].files, FileEntry{
			Mode:  e.Mode,
			Ident: e.Ident,
			Name:  name,
		})
	}
	return t
}

// treeSubdirMode is the fixed mode written for TREE entries inside a
// parent directory's body, matching the original store's hardcoded value.
const treeSubdirMode = "755"

// WriteTree stores every directory node post-order (children before their
// parent, so a directory's body can always reference already-computed
// child identifiers) and returns the root's identifier.
func (t *Tree) WriteTree(store *Store) (Ident, error) {
	return t.writeNode(rootIndex, store)
}

func (t *Tree) writeNode(idx int, store *Store) (Ident, error) {
	n := &t.nodes[idx]
	if n.written {
		return n.ident, nil
	}
	for _, childIdx := range n.subdirs {
		if _, err := t.writeNode(childIdx, store); err != nil {
			return Ident{}, err
		}
	}

	var body bytes.Buffer
	for _, f := range n.files {
		fmt.Fprintf(&body, "%s %s %s %s\n", f.Mode, KindBlob, f.Ident.Hex(), f.Name)
	}
	for _, childIdx := range n.subdirs {
		child := &t.nodes[childIdx]
		fmt.Fprintf(&body, "%s %s %s %s\n", treeSubdirMode, KindTree, child.ident.Hex(), child.name)
	}

	id, err := store.Put(KindTree, body.Bytes())
	if err != nil {
		return Ident{}, fmt.Errorf("write tree node %q: %w", t.FullPath(idx), err)
	}
	n.ident = id
	n.written = true
	return id, nil
}

// TreeLine is one parsed row of a stored TREE object's body.
type TreeLine struct {
	Mode  string
	Kind  Kind
	Ident Ident
	Name  string
}

// ParseTreeBody decodes a TREE object's line-based body ("<mode> <KIND>
// <hexident> <name>\n" per line) into its entries.
func ParseTreeBody(body []byte) ([]TreeLine, error) {
	var lines []TreeLine
	for _, raw := range strings.Split(string(body), "\n") {
		if raw == "" {
			continue
		}
		fields := strings.SplitN(raw, " ", 4)
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed tree line %q", raw)
		}
		kind, err := ParseKind(fields[1])
		if err != nil {
			return nil, fmt.Errorf("tree line %q: %w", raw, err)
		}
		id, err := ParseIdent(fields[2])
		if err != nil {
			return nil, fmt.Errorf("tree line %q: %w", raw, err)
		}
		lines = append(lines, TreeLine{Mode: fields[0], Kind: kind, Ident: id, Name: fields[3]})
	}
	return lines, nil
}

// ReadTree reconstructs an arena tree from a stored root TREE identifier,
// recursively fetching subtrees.
func ReadTree(store *Store, rootIdent Ident) (*Tree, error) {
	t := newTree()
	if err := t.readNode(store, rootIndex, rootIdent); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) readNode(store *Store, idx int, ident Ident) error {
	kind, body, err := store.Get(ident)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", ident, err)
	}
	if kind != KindTree {
		return fmt.Errorf("read tree %s: expected TREE, got %s", ident, kind)
	}
	lines, err := ParseTreeBody(body)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", ident, err)
	}
	t.nodes[idx].ident = ident
	t.nodes[idx].written = true

	for _, line := range lines {
		switch line.Kind {
		case KindBlob:
			t.nodes[idx].files = append(t.nodes[idx].files, FileEntry{
				Mode: line.Mode, Ident: line.Ident, Name: line.Name,
			})
		case KindTree:
			t.nodes = append(t.nodes, node{name: line.Name, parent: idx})
			childIdx := len(t.nodes) - 1
			t.nodes[idx].subdirs = append(t.nodes[idx].subdirs, childIdx)
			if err := t.readNode(store, childIdx, line.Ident); err != nil {
				return err
			}
		default:
			return fmt.Errorf("read tree %s: unexpected entry kind %s", ident, line.Kind)
		}
	}
	return nil
}

// FlatFile is a file entry flattened out of a tree, with its full
// slash-joined path from the root.
type FlatFile struct {
	Mode  string
	Ident Ident
	Path  string
}

// AllFiles flattens the tree into every file it contains, each tagged
// with its full path, mirroring all_files's walk over a read tree.
func (t *Tree) AllFiles() []FlatFile {
	var out []FlatFile
	t.collectFiles(rootIndex, &out)
	return out
}

func (t *Tree) collectFiles(idx int, out *[]FlatFile) {
	n := &t.nodes[idx]
	dirPath := t.FullPath(idx)
	for _, f := range n.files {
		path := f.Name
		if dirPath != "" {
			path = dirPath + "/" + f.Name
		}
		*out = append(*out, FlatFile{Mode: f.Mode, Ident: f.Ident, Path: path})
	}
	for _, childIdx := range n.subdirs {
		t.collectFiles(childIdx, out)
	}
}

// AllDirs returns every directory node's full path (root excluded),
// deepest first, used by checkout to prune directories that became
// empty after a branch switch.
func (t *Tree) AllDirs() []string {
	var out []string
	t.collectDirs(rootIndex, &out)
	return out
}

func (t *Tree) collectDirs(idx int, out *[]string) {
	for _, childIdx := range t.nodes[idx].subdirs {
		t.collectDirs(childIdx, out)
	}
	if idx != rootIndex {
		*out = append(*out, t.FullPath(idx))
	}
}
