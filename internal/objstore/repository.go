// Package objstore implements darkwiki's content-addressed object store:
// blobs, trees and commits, the staged index, branch refs and HEAD, and
// the working-tree operations (add, write-tree, commit, checkout) built
// on top of them.
package objstore

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultFileMode = "644"

// Repository ties a Store to the working directory it mirrors.
type Repository struct {
	Root  string
	Store *Store
}

// Open returns a Repository rooted at dir, whose darkwiki state lives in
// dir/.darkwiki. It does not require the repository to be initialized.
func Open(dir string) *Repository {
	return &Repository{
		Root:  dir,
		Store: NewStore(filepath.Join(dir, ".darkwiki")),
	}
}

// IsRepository reports whether dir already has a .darkwiki directory.
func IsRepository(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".darkwiki"))
	return err == nil && info.IsDir()
}

// Init creates a fresh repository rooted at r.Root on the given default
// branch (the CLI names it "master").
func (r *Repository) Init(defaultBranch string) error {
	return r.Store.Init(defaultBranch)
}

// hashFile reads and hashes a working-tree file's current contents,
// returning its blob identifier without storing it.
func (r *Repository) hashFile(path string) (Ident, []byte, error) {
	data, err := os.ReadFile(filepath.Join(r.Root, path))
	if err != nil {
		return Ident{}, nil, fmt.Errorf("hash file %s: %w", path, err)
	}
	return ComputeIdent(data), data, nil
}

// AddObject stores a single blob's bytes directly, without reading it
// from a path and without touching the index, returning the stored
// identifier. This backs the `add-object`
// CLI command for writing content that has no corresponding working-tree
// file.
func (r *Repository) AddObject(data []byte) (Ident, error) {
	return r.Store.Put(KindBlob, data)
}

// Add hashes and stores path's current contents and stages the result in
// the index, replacing any prior entry for the same path.
func (r *Repository) Add(path string) (Ident, error) {
	id, data, err := r.hashFile(path)
	if err != nil {
		return Ident{}, err
	}
	if _, err := r.Store.Put(KindBlob, data); err != nil {
		return Ident{}, fmt.Errorf("add %s: %w", path, err)
	}

	entries, err := r.Store.ReadIndex()
	if err != nil {
		return Ident{}, err
	}
	entries = UpsertIndexEntry(entries, IndexEntry{Mode: defaultFileMode, Ident: id, Path: path})
	if err := r.Store.WriteIndex(entries); err != nil {
		return Ident{}, err
	}
	return id, nil
}

// Remove unstages path from the index. It does not touch the working
// tree file.
func (r *Repository) Remove(path string) error {
	entries, err := r.Store.ReadIndex()
	if err != nil {
		return err
	}
	entries = RemoveIndexEntry(entries, path)
	return r.Store.WriteIndex(entries)
}

// WriteTree assembles the currently staged index into a tree object and
// returns its root identifier, without creating a commit.
func (r *Repository) WriteTree() (Ident, error) {
	entries, err := r.Store.ReadIndex()
	if err != nil {
		return Ident{}, err
	}
	tree := BuildFromIndex(entries)
	return tree.WriteTree(r.Store)
}

// Commit snapshots the current index as a new commit on the current
// branch, linking to the branch's previous tip (if any).
func (r *Repository) Commit() (Ident, error) {
	branch, err := r.Store.CurrentBranch()
	if err != nil {
		return Ident{}, err
	}

	var previous Ident
	if tip, err := r.Store.ReadBranch(branch); err == nil {
		previous = tip
	} else if err != ErrNotFound {
		return Ident{}, err
	}

	treeIdent, err := r.WriteTree()
	if err != nil {
		return Ident{}, err
	}

	commitIdent, err := r.Store.StoreCommit(treeIdent, previous)
	if err != nil {
		return Ident{}, err
	}

	if err := r.Store.WriteBranch(branch, commitIdent); err != nil {
		return Ident{}, err
	}
	return commitIdent, nil
}

// LastCommit returns the current branch's tip commit, or ErrNotFound if
// nothing has been committed yet.
func (r *Repository) LastCommit() (Ident, error) {
	branch, err := r.Store.CurrentBranch()
	if err != nil {
		return Ident{}, err
	}
	return r.Store.ReadBranch(branch)
}

// Log returns the commit history of the current branch, newest first.
func (r *Repository) Log() ([]Commit, error) {
	tip, err := r.LastCommit()
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	chain, err := r.Store.CommitChain(tip)
	if err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(chain))
	for _, id := range chain {
		c, err := r.Store.FetchCommit(id)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}
