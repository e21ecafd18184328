// Package difference implements the DifferenceEngine: a comparator between
// any two "file universe" sides sharing a two-method capability contract
// (FilesList, Fetch) rather than a class hierarchy. The three sides that
// matter are the working tree on disk, the staged index, and a commit's
// tree.
package difference

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/systemshift/darkwiki/internal/diffengine"
	"github.com/systemshift/darkwiki/internal/objstore"
)

const diskFileMode = "644"

// FileRef names one file's mode, content identifier and path, the shared
// currency every Side's FilesList speaks.
type FileRef struct {
	Mode  string
	Ident objstore.Ident
	Path  string
}

// Side is the capability contract a file universe must provide to be
// compared: enumerate its files, and fetch one file's text content by
// identifier.
type Side interface {
	FilesList() ([]FileRef, error)
	Fetch(id objstore.Ident) (string, error)
}

// DiskSide is the working tree on disk: file identifiers are computed on
// the fly by hashing the current file contents, exactly as the index
// records a file, but never stored.
type DiskSide struct {
	repo      *objstore.Repository
	identMap  map[objstore.Ident]string
	files     []FileRef
	collected bool
}

// NewDiskSide returns a Side over repo's current working tree, using the
// index's file list to know which paths to look at.
func NewDiskSide(repo *objstore.Repository) *DiskSide {
	return &DiskSide{repo: repo, identMap: map[objstore.Ident]string{}}
}

func (d *DiskSide) collect() error {
	if d.collected {
		return nil
	}
	entries, err := d.repo.Store.ReadIndex()
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(d.repo.Root, e.Path))
		if err != nil {
			return fmt.Errorf("disk side: hash %s: %w", e.Path, err)
		}
		id := objstore.ComputeIdent(data)
		d.files = append(d.files, FileRef{Mode: diskFileMode, Ident: id, Path: e.Path})
		d.identMap[id] = e.Path
	}
	d.collected = true
	return nil
}

// FilesList returns the current on-disk (mode, ident, path) for every
// file the index tracks.
func (d *DiskSide) FilesList() ([]FileRef, error) {
	if err := d.collect(); err != nil {
		return nil, err
	}
	return d.files, nil
}

// Fetch reads a file's current on-disk contents by an identifier
// previously returned by FilesList.
func (d *DiskSide) Fetch(id objstore.Ident) (string, error) {
	if err := d.collect(); err != nil {
		return "", err
	}
	path, ok := d.identMap[id]
	if !ok {
		return "", fmt.Errorf("disk side: unknown ident %s", id)
	}
	data, err := os.ReadFile(filepath.Join(d.repo.Root, path))
	if err != nil {
		return "", fmt.Errorf("disk side: read %s: %w", path, err)
	}
	return string(data), nil
}

// IndexSide is the staged index: its files are whatever was last `add`ed,
// fetched directly from the object store.
type IndexSide struct {
	store *objstore.Store
}

// NewIndexSide returns a Side over the repository's staged index.
func NewIndexSide(store *objstore.Store) *IndexSide {
	return &IndexSide{store: store}
}

// FilesList returns the staged (mode, ident, path) entries.
func (s *IndexSide) FilesList() ([]FileRef, error) {
	entries, err := s.store.ReadIndex()
	if err != nil {
		return nil, err
	}
	refs := make([]FileRef, len(entries))
	for i, e := range entries {
		refs[i] = FileRef{Mode: e.Mode, Ident: e.Ident, Path: e.Path}
	}
	return refs, nil
}

// Fetch reads a staged blob's contents by identifier.
func (s *IndexSide) Fetch(id objstore.Ident) (string, error) {
	kind, body, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	if kind != objstore.KindBlob {
		return "", fmt.Errorf("index side: %s is not a blob", id)
	}
	return string(body), nil
}

// CommitSide is a commit's tree, flattened to its files.
type CommitSide struct {
	store *objstore.Store
	tree  *objstore.Tree
}

// NewCommitSide loads the tree a commit identifier (or the current
// branch's tip, if commitIdent is the zero Ident) points at.
func NewCommitSide(repo *objstore.Repository, commitIdent objstore.Ident) (*CommitSide, error) {
	if commitIdent.IsZero() {
		tip, err := repo.LastCommit()
		if err != nil {
			return nil, fmt.Errorf("commit side: %w", err)
		}
		commitIdent = tip
	}
	commit, err := repo.Store.FetchCommit(commitIdent)
	if err != nil {
		return nil, fmt.Errorf("commit side: %w", err)
	}
	tree, err := objstore.ReadTree(repo.Store, commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("commit side: %w", err)
	}
	return &CommitSide{store: repo.Store, tree: tree}, nil
}

// FilesList flattens the commit's tree into its files.
func (c *CommitSide) FilesList() ([]FileRef, error) {
	flat := c.tree.AllFiles()
	refs := make([]FileRef, len(flat))
	for i, f := range flat {
		refs[i] = FileRef{Mode: f.Mode, Ident: f.Ident, Path: f.Path}
	}
	return refs, nil
}

// Fetch reads a blob's contents by identifier.
func (c *CommitSide) Fetch(id objstore.Ident) (string, error) {
	kind, body, err := c.store.Get(id)
	if err != nil {
		return "", err
	}
	if kind != objstore.KindBlob {
		return "", fmt.Errorf("commit side: %s is not a blob", id)
	}
	return string(body), nil
}

// FileDiff is one changed file's result: its path and the diff runs
// between the two sides' versions (added/deleted files are expressed as
// a single all-insert or all-delete run).
type FileDiff struct {
	Path string
	Runs []diffengine.Run
}

// Engine compares two Sides and reports every file that differs between
// them.
type Engine struct {
	a, b Side
}

// NewEngine builds a DifferenceEngine comparing a against b: files only
// in a are reported as deletions, files only in b as insertions, and
// shared files whose identifier changed are character-diffed.
func NewEngine(a, b Side) *Engine {
	return &Engine{a: a, b: b}
}

// Results computes every file's diff between the two sides.
func (e *Engine) Results() ([]FileDiff, error) {
	filesA, err := e.a.FilesList()
	if err != nil {
		return nil, err
	}
	filesB, err := e.b.FilesList()
	if err != nil {
		return nil, err
	}

	pathsA := pathSet(filesA)
	pathsB := pathSet(filesB)

	var results []FileDiff

	for _, f := range filesA {
		if pathsB[f.Path] {
			continue
		}
		contents, err := e.a.Fetch(f.Ident)
		if err != nil {
			return nil, err
		}
		results = append(results, FileDiff{
			Path: f.Path,
			Runs: []diffengine.Run{{Sign: diffengine.SignDelete, Text: contents}},
		})
	}

	for _, f := range filesB {
		if pathsA[f.Path] {
			continue
		}
		contents, err := e.b.Fetch(f.Ident)
		if err != nil {
			return nil, err
		}
		results = append(results, FileDiff{
			Path: f.Path,
			Runs: []diffengine.Run{{Sign: diffengine.SignInsert, Text: contents}},
		})
	}

	byPathA := make(map[string]FileRef, len(filesA))
	for _, f := range filesA {
		byPathA[f.Path] = f
	}

	for _, f := range filesB {
		previous, ok := byPathA[f.Path]
		if !ok {
			continue
		}
		if previous.Ident == f.Ident {
			continue
		}
		previousContents, err := e.a.Fetch(previous.Ident)
		if err != nil {
			return nil, err
		}
		newContents, err := e.b.Fetch(f.Ident)
		if err != nil {
			return nil, err
		}
		results = append(results, FileDiff{
			Path: f.Path,
			Runs: diffengine.Diff(previousContents, newContents),
		})
	}

	return results, nil
}

func pathSet(files []FileRef) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f.Path] = true
	}
	return set
}
