// Package mergeengine drives a three-way merge between two branches: find
// their common ancestor by walking both commit chains, then merge the
// local, merge-side and ancestor trees file by file, resolving
// genuinely-diverging files with internal/diffengine's character-level
// three-way merge.
package mergeengine

import (
	"fmt"

	"github.com/systemshift/darkwiki/internal/diffengine"
	"github.com/systemshift/darkwiki/internal/objstore"
)

// ErrNoCommonAncestor is returned when two branches' commit chains share
// no commit at all.
var ErrNoCommonAncestor = fmt.Errorf("no common ancestor between branches")

// firstCommonElement walks x in order and returns the first element also
// present in y, or ok=false if none is.
func firstCommonElement(x, y []objstore.Ident) (objstore.Ident, bool) {
	set := make(map[objstore.Ident]bool, len(y))
	for _, id := range y {
		set[id] = true
	}
	for _, id := range x {
		if set[id] {
			return id, true
		}
	}
	return objstore.Ident{}, false
}

// Engine merges one branch into another within a single repository.
type Engine struct {
	repo *objstore.Repository
}

// New returns a merge Engine operating on repo.
func New(repo *objstore.Repository) *Engine {
	return &Engine{repo: repo}
}

// Merge3Way merges mergeBranch into localBranch, committing the result on
// localBranch and returning the new commit's identifier.
//
// Every file present on both sides with diverging content is resolved with
// a character-level three-way merge against the common ancestor's version;
// a file that diverges from a common ancestor but has no ancestor version
// at all (the merge side renamed it in from nowhere the local branch also
// touched) can't be meaningfully three-way merged, so the local branch's
// version is kept — a conforming policy choice, not a crash.
func (e *Engine) Merge3Way(localBranch, mergeBranch string) (objstore.Ident, error) {
	localTip, err := e.repo.Store.ReadBranch(localBranch)
	if err != nil {
		return objstore.Ident{}, fmt.Errorf("merge: local branch %s: %w", localBranch, err)
	}
	mergeTip, err := e.repo.Store.ReadBranch(mergeBranch)
	if err != nil {
		return objstore.Ident{}, fmt.Errorf("merge: merge branch %s: %w", mergeBranch, err)
	}

	localChain, err := e.repo.Store.CommitChain(localTip)
	if err != nil {
		return objstore.Ident{}, err
	}
	mergeChain, err := e.repo.Store.CommitChain(mergeTip)
	if err != nil {
		return objstore.Ident{}, err
	}

	ancestorIdent, ok := firstCommonElement(localChain, mergeChain)
	if !ok {
		return objstore.Ident{}, ErrNoCommonAncestor
	}

	localFiles, err := filesOf(e.repo.Store, localTip)
	if err != nil {
		return objstore.Ident{}, err
	}
	mergeFiles, err := filesOf(e.repo.Store, mergeTip)
	if err != nil {
		return objstore.Ident{}, err
	}
	originFiles, err := filesOf(e.repo.Store, ancestorIdent)
	if err != nil {
		return objstore.Ident{}, err
	}

	originByPath := indexByPath(originFiles)
	localByPath := indexByPath(localFiles)
	mergeByPath := indexByPath(mergeFiles)

	var newEntries []objstore.IndexEntry

	for _, local := range localFiles {
		mergeEntry, inMerge := mergeByPath[local.Path]
		if !inMerge || mergeEntry.Ident == local.Ident {
			newEntries = append(newEntries, local)
			continue
		}

		originEntry, inOrigin := originByPath[local.Path]
		if !inOrigin {
			// Changed on both sides with no shared ancestor version
			// of the file to merge against: keep local.
			newEntries = append(newEntries, local)
			continue
		}

		mergedIdent, err := e.mergeFile(originEntry.Ident, local.Ident, mergeEntry.Ident)
		if err != nil {
			return objstore.Ident{}, err
		}
		newEntries = append(newEntries, objstore.IndexEntry{
			Mode: local.Mode, Ident: mergedIdent, Path: local.Path,
		})
	}

	for _, merge := range mergeFiles {
		if _, inLocal := localByPath[merge.Path]; !inLocal {
			newEntries = append(newEntries, merge)
		}
	}

	tree := objstore.BuildFromIndex(newEntries)
	treeIdent, err := tree.WriteTree(e.repo.Store)
	if err != nil {
		return objstore.Ident{}, err
	}

	commitIdent, err := e.repo.Store.StoreCommit(treeIdent, localTip)
	if err != nil {
		return objstore.Ident{}, err
	}
	if err := e.repo.Store.WriteBranch(localBranch, commitIdent); err != nil {
		return objstore.Ident{}, err
	}
	return commitIdent, nil
}

func (e *Engine) mergeFile(originIdent, localIdent, mergeIdent objstore.Ident) (objstore.Ident, error) {
	originContents, err := e.fetchBlob(originIdent)
	if err != nil {
		return objstore.Ident{}, err
	}
	localContents, err := e.fetchBlob(localIdent)
	if err != nil {
		return objstore.Ident{}, err
	}
	mergeContents, err := e.fetchBlob(mergeIdent)
	if err != nil {
		return objstore.Ident{}, err
	}

	runs := diffengine.ThreeWayMerge(originContents, localContents, mergeContents)
	merged := diffengine.Apply(runs)

	return e.repo.Store.Put(objstore.KindBlob, []byte(merged))
}

func (e *Engine) fetchBlob(id objstore.Ident) (string, error) {
	kind, body, err := e.repo.Store.Get(id)
	if err != nil {
		return "", err
	}
	if kind != objstore.KindBlob {
		return "", fmt.Errorf("merge: %s is not a blob", id)
	}
	return string(body), nil
}

func filesOf(store *objstore.Store, commitIdent objstore.Ident) ([]objstore.IndexEntry, error) {
	commit, err := store.FetchCommit(commitIdent)
	if err != nil {
		return nil, err
	}
	tree, err := objstore.ReadTree(store, commit.Tree)
	if err != nil {
		return nil, err
	}
	flat := tree.AllFiles()
	entries := make([]objstore.IndexEntry, len(flat))
	for i, f := range flat {
		entries[i] = objstore.IndexEntry{Mode: f.Mode, Ident: f.Ident, Path: f.Path}
	}
	return entries, nil
}

func indexByPath(entries []objstore.IndexEntry) map[string]objstore.IndexEntry {
	m := make(map[string]objstore.IndexEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}
