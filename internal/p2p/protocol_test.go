package p2p

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
	"github.com/systemshift/darkwiki/internal/objstore"
)

func newTestRepo(t *testing.T) *objstore.Repository {
	t.Helper()
	dir := t.TempDir()
	repo := objstore.Open(dir)
	require.NoError(t, repo.Init("main"))
	return repo
}

func writeAndAdd(t *testing.T, repo *objstore.Repository, path, contents string) {
	t.Helper()
	full := filepath.Join(repo.Root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
	_, err := repo.Add(path)
	require.NoError(t, err)
}

func syncProtocols(t *testing.T, populated, empty *objstore.Repository) {
	t.Helper()
	clientConn, serverConn := dialPair(t)

	aSecret, _ := dwcrypto.RandomSecret()
	bSecret, _ := dwcrypto.RandomSecret()
	aPublic, _ := dwcrypto.SecretToPublic(aSecret)
	bPublic, _ := dwcrypto.SecretToPublic(bSecret)

	logger := zap.NewNop()

	channelA := NewChannel(clientConn, aSecret, bPublic)
	channelB := NewChannel(serverConn, bSecret, aPublic)

	protoA := NewProtocol(channelA, populated, logger)
	protoB := NewProtocol(channelB, empty, logger)

	done := make(chan struct{})
	go func() {
		_ = protoA.Run()
		close(done)
	}()
	go func() {
		_ = protoB.Run()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	clientConn.Close()
	serverConn.Close()
}

// TestProtocolSyncsNewRepoFromPeer runs a live hello/sync/fetch/object
// exchange between two in-process Protocols connected back to back, and
// asserts that the empty side ends up with the populated side's main tip,
// its commit and its tree, mirroring micronet.py's Protocol._process
// dispatch loop end to end.
func TestProtocolSyncsNewRepoFromPeer(t *testing.T) {
	populated := newTestRepo(t)
	writeAndAdd(t, populated, "a.txt", "hello from peer A")
	commit, err := populated.Commit()
	require.NoError(t, err)

	empty := newTestRepo(t)

	syncProtocols(t, populated, empty)

	gotTip, err := empty.Store.ReadBranch("main")
	require.NoError(t, err, "expected main branch to be synced")
	require.Equal(t, commit, gotTip)

	gotCommit, err := empty.Store.FetchCommit(gotTip)
	require.NoError(t, err)
	tree, err := objstore.ReadTree(empty.Store, gotCommit.Tree)
	require.NoError(t, err)
	files := tree.AllFiles()
	require.Len(t, files, 1)
	require.Equal(t, "a.txt", files[0].Path)
}

// TestProtocolSyncPreservesNegativeUTCOffset guards against UTCOffset
// being zero-extended instead of sign-extended on the decode side: a
// commit authored west of UTC must reach the peer with the same
// identifier, not merely the same tree.
func TestProtocolSyncPreservesNegativeUTCOffset(t *testing.T) {
	populated := newTestRepo(t)
	writeAndAdd(t, populated, "a.txt", "hello from peer A")
	entries, err := populated.Store.ReadIndex()
	require.NoError(t, err)
	treeIdent, err := objstore.BuildFromIndex(entries).WriteTree(populated.Store)
	require.NoError(t, err)
	commit := objstore.Commit{Tree: treeIdent, Timestamp: 1700000000, UTCOffset: -8 * 3600}
	body, err := objstore.MarshalCommit(commit)
	require.NoError(t, err)
	commitIdent, err := populated.Store.Put(objstore.KindCommit, body)
	require.NoError(t, err)
	require.NoError(t, populated.Store.WriteBranch("main", commitIdent))

	empty := newTestRepo(t)

	syncProtocols(t, populated, empty)

	gotTip, err := empty.Store.ReadBranch("main")
	require.NoError(t, err, "expected main branch to be synced")
	require.Equal(t, commitIdent, gotTip, "negative UTCOffset must round-trip to the same object identifier")

	gotCommit, err := empty.Store.FetchCommit(gotTip)
	require.NoError(t, err)
	require.Equal(t, -8*3600, gotCommit.UTCOffset)
}
