package objstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckoutBranch switches the working tree to branch, physically
// removing files that existed in the current tree but not the target,
// writing every file of the target tree (overwriting as needed), and
// pruning directories of the old tree left empty by the switch.
//
// If target is non-nil, branch is created (or moved) to point at that
// commit before the switch; otherwise branch must already exist and is
// checked out as-is.
func (r *Repository) CheckoutBranch(branch string, target *Ident) error {
	var oldTree *Tree
	if lastIdent, err := r.LastCommit(); err == nil {
		lastCommit, err := r.Store.FetchCommit(lastIdent)
		if err != nil {
			return err
		}
		oldTree, err = ReadTree(r.Store, lastCommit.Tree)
		if err != nil {
			return err
		}
	} else if err != ErrNotFound {
		return err
	}

	if target != nil {
		if err := r.Store.WriteBranch(branch, *target); err != nil {
			return err
		}
	}

	targetCommitIdent, err := r.Store.ReadBranch(branch)
	if err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	targetCommit, err := r.Store.FetchCommit(targetCommitIdent)
	if err != nil {
		return err
	}
	newTree, err := ReadTree(r.Store, targetCommit.Tree)
	if err != nil {
		return err
	}

	if err := r.updateWorkingFiles(oldTree, newTree); err != nil {
		return err
	}

	return r.Store.SetCurrentBranch(branch)
}

func (r *Repository) updateWorkingFiles(oldTree, newTree *Tree) error {
	var oldFiles []FlatFile
	if oldTree != nil {
		oldFiles = oldTree.AllFiles()
	}
	newFiles := newTree.AllFiles()

	newPaths := make(map[string]bool, len(newFiles))
	for _, f := range newFiles {
		newPaths[f.Path] = true
	}

	for _, f := range oldFiles {
		if newPaths[f.Path] {
			continue
		}
		if err := os.Remove(filepath.Join(r.Root, f.Path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkout: remove stale file %s: %w", f.Path, err)
		}
	}

	for _, f := range newFiles {
		kind, body, err := r.Store.Get(f.Ident)
		if err != nil {
			return fmt.Errorf("checkout: fetch %s: %w", f.Path, err)
		}
		if kind != KindBlob {
			return fmt.Errorf("checkout: %s is not a blob", f.Path)
		}
		fullPath := filepath.Join(r.Root, f.Path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return fmt.Errorf("checkout: write %s: %w", f.Path, err)
		}
		if err := os.WriteFile(fullPath, body, 0o644); err != nil {
			return fmt.Errorf("checkout: write %s: %w", f.Path, err)
		}
	}

	if oldTree != nil {
		for _, dir := range oldTree.AllDirs() {
			// os.Remove on a directory only succeeds if it is
			// empty; AllDirs is deepest-first so a directory left
			// empty by removing its own now-empty children is
			// still pruned in the same pass.
			_ = os.Remove(filepath.Join(r.Root, dir))
		}
	}

	return nil
}
