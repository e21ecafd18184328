package objstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustWriteFile(t *testing.T, root, path, contents string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

func TestInitAddCommit(t *testing.T) {
	dir := t.TempDir()
	repo := Open(dir)
	require.NoError(t, repo.Init("main"))
	require.True(t, IsRepository(dir), "expected IsRepository to be true after Init")

	mustWriteFile(t, dir, "hello.txt", "hello world")
	_, err := repo.Add("hello.txt")
	require.NoError(t, err)

	commitIdent, err := repo.Commit()
	require.NoError(t, err)

	commit, err := repo.Store.FetchCommit(commitIdent)
	require.NoError(t, err)
	require.False(t, commit.HasPrevious(), "expected root commit to have no previous commit")

	tree, err := ReadTree(repo.Store, commit.Tree)
	require.NoError(t, err)
	files := tree.AllFiles()
	require.Len(t, files, 1)
	require.Equal(t, "hello.txt", files[0].Path)
}

func TestCommitChainWalksParentLink(t *testing.T) {
	dir := t.TempDir()
	repo := Open(dir)
	require.NoError(t, repo.Init("main"))

	mustWriteFile(t, dir, "a.txt", "1")
	repo.Add("a.txt")
	first, err := repo.Commit()
	require.NoError(t, err)

	mustWriteFile(t, dir, "a.txt", "2")
	repo.Add("a.txt")
	second, err := repo.Commit()
	require.NoError(t, err)

	commits, err := repo.Log()
	require.NoError(t, err)
	require.Len(t, commits, 2)

	chain, err := repo.Store.CommitChain(second)
	require.NoError(t, err)
	require.Equal(t, []Ident{second, first}, chain)
}

func TestCheckoutBranchPhysicallyUpdatesWorkingTree(t *testing.T) {
	dir := t.TempDir()
	repo := Open(dir)
	require.NoError(t, repo.Init("main"))

	mustWriteFile(t, dir, "old.txt", "old content")
	repo.Add("old.txt")
	mainCommit, err := repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("feature", &mainCommit))

	require.NoError(t, repo.Remove("old.txt"))
	require.NoError(t, os.Remove(filepath.Join(dir, "old.txt")))
	mustWriteFile(t, dir, "sub/new.txt", "new content")
	_, err = repo.Add("sub/new.txt")
	require.NoError(t, err)
	_, err = repo.Commit()
	require.NoError(t, err)

	require.NoError(t, repo.CheckoutBranch("main", nil))

	_, err = os.Stat(filepath.Join(dir, "sub", "new.txt"))
	require.True(t, os.IsNotExist(err), "expected sub/new.txt to be removed, stat err = %v", err)

	_, err = os.Stat(filepath.Join(dir, "sub"))
	require.True(t, os.IsNotExist(err), "expected sub/ to be pruned once empty, stat err = %v", err)

	data, err := os.ReadFile(filepath.Join(dir, "old.txt"))
	require.NoError(t, err)
	require.Equal(t, "old content", string(data), "expected old.txt recreated")
}

func TestFuzzyMatch(t *testing.T) {
	dir := t.TempDir()
	repo := Open(dir)
	require.NoError(t, repo.Init("main"))

	id, err := repo.AddObject([]byte("some blob content"))
	require.NoError(t, err)

	matched, err := repo.Store.FuzzyMatch(id.Hex()[:8])
	require.NoError(t, err)
	require.Equal(t, id, matched)

	_, err = repo.Store.FuzzyMatch("ffffffff")
	require.Equal(t, ErrNotFound, err)
}
