package p2p

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
	"github.com/systemshift/darkwiki/internal/objstore"
)

func fakeSeedService(t *testing.T, reply objstore.Seeds) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req seedRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		body, err := marshalSeeds(reply)
		if err != nil {
			t.Error(err)
			return
		}
		conn.WriteMessage(websocket.TextMessage, body)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSyncSeedsMergesRemoteIntoLocal(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Store.WriteSeeds(objstore.Seeds{"existing-peer": "tcp://10.0.0.5:5566"}))

	seedURL := fakeSeedService(t, objstore.Seeds{"new-peer": "tcp://10.0.0.9:5566"})

	secret, err := dwcrypto.RandomSecret()
	require.NoError(t, err)
	node, err := NewNode(repo, secret, zap.NewNop())
	require.NoError(t, err)

	merged, err := node.SyncSeeds(seedURL, "tcp://127.0.0.1:5566")
	require.NoError(t, err)
	require.Equal(t, "tcp://10.0.0.5:5566", merged["existing-peer"], "expected existing peer to survive merge")
	require.Equal(t, "tcp://10.0.0.9:5566", merged["new-peer"], "expected new peer from seed service")

	onDisk, err := repo.Store.ReadSeeds()
	require.NoError(t, err)
	require.Len(t, onDisk, 2, "expected merged seeds persisted to disk")
}

// TestSyncSeedsLocalFileWinsOnConflict mirrors micronet.py's sync_seeds,
// whose {**seed_node_list, **seeds_file_list} merge gives the local
// seeds file precedence over the seed service for the same address.
func TestSyncSeedsLocalFileWinsOnConflict(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Store.WriteSeeds(objstore.Seeds{"shared-peer": "tcp://10.0.0.5:5566"}))

	seedURL := fakeSeedService(t, objstore.Seeds{"shared-peer": "tcp://10.0.0.9:9999"})

	secret, err := dwcrypto.RandomSecret()
	require.NoError(t, err)
	node, err := NewNode(repo, secret, zap.NewNop())
	require.NoError(t, err)

	merged, err := node.SyncSeeds(seedURL, "tcp://127.0.0.1:5566")
	require.NoError(t, err)
	require.Equal(t, "tcp://10.0.0.5:5566", merged["shared-peer"], "expected local seeds file entry to win over the seed service")
}

func TestSyncSeedsFallsBackToLocalFileWhenServiceUnreachable(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Store.WriteSeeds(objstore.Seeds{"only-peer": "tcp://10.0.0.5:5566"}))

	secret, err := dwcrypto.RandomSecret()
	require.NoError(t, err)
	node, err := NewNode(repo, secret, zap.NewNop())
	require.NoError(t, err)

	got, err := node.SyncSeeds("ws://127.0.0.1:1", "tcp://127.0.0.1:5566")
	require.NoError(t, err)
	require.Equal(t, "tcp://10.0.0.5:5566", got["only-peer"], "expected local seeds file fallback")
}
