package mergeengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/systemshift/darkwiki/internal/objstore"
)

func writeAndAdd(t *testing.T, repo *objstore.Repository, path, contents string) {
	t.Helper()
	full := filepath.Join(repo.Root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
	_, err := repo.Add(path)
	require.NoError(t, err)
}

func readFile(t *testing.T, repo *objstore.Repository, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(repo.Root, path))
	require.NoError(t, err)
	return string(data)
}

func TestMerge3WayCombinesIndependentEdits(t *testing.T) {
	dir := t.TempDir()
	repo := objstore.Open(dir)
	require.NoError(t, repo.Init("main"))

	poem := "I am the very model of a modern Major-General"
	writeAndAdd(t, repo, "poem.txt", poem)
	base, err := repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("feature", &base))
	writeAndAdd(t, repo, "poem.txt", "I am the also very model of a modern Major-General")
	_, err = repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("main", nil))
	writeAndAdd(t, repo, "poem.txt", "I am the very model of a modern Admiral")
	_, err = repo.Commit()
	require.NoError(t, err)

	mergeCommit, err := New(repo).Merge3Way("main", "feature")
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("main", &mergeCommit))

	merged := readFile(t, repo, "poem.txt")
	require.Equal(t, "I am the also very model of a modern Admiral", merged)
}

func TestMerge3WayKeepsFilesAddedOnEitherSide(t *testing.T) {
	dir := t.TempDir()
	repo := objstore.Open(dir)
	require.NoError(t, repo.Init("main"))

	writeAndAdd(t, repo, "shared.txt", "shared")
	base, err := repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("feature", &base))
	writeAndAdd(t, repo, "from_feature.txt", "feature addition")
	_, err = repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("main", nil))
	writeAndAdd(t, repo, "from_main.txt", "main addition")
	_, err = repo.Commit()
	require.NoError(t, err)

	mergeCommit, err := New(repo).Merge3Way("main", "feature")
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("main", &mergeCommit))

	require.Equal(t, "feature addition", readFile(t, repo, "from_feature.txt"), "expected feature-side addition to survive merge")
	require.Equal(t, "main addition", readFile(t, repo, "from_main.txt"), "expected main-side addition to survive merge")
}

func TestMerge3WayNoCommonAncestor(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	repoA := objstore.Open(dir1)
	repoB := objstore.Open(dir2)
	require.NoError(t, repoA.Init("main"))
	require.NoError(t, repoB.Init("side"))
	writeAndAdd(t, repoA, "a.txt", "a")
	_, err := repoA.Commit()
	require.NoError(t, err)

	// Fabricate an "unrelated" branch in repoA's own store with a
	// root commit (no shared history), to exercise the no-common-
	// ancestor error path without a second repository.
	writeAndAdd(t, repoA, "b.txt", "b")
	entries, err := repoA.Store.ReadIndex()
	require.NoError(t, err)
	tree := objstore.BuildFromIndex(entries[len(entries)-1:])
	treeIdent, err := tree.WriteTree(repoA.Store)
	require.NoError(t, err)
	unrelated, err := repoA.Store.StoreCommit(treeIdent, objstore.Ident{})
	require.NoError(t, err)
	require.NoError(t, repoA.Store.WriteBranch("unrelated", unrelated))

	_, err = New(repoA).Merge3Way("main", "unrelated")
	require.Equal(t, ErrNoCommonAncestor, err)
}
