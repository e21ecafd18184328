package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestNodeRejectsUnauthorizedPeer(t *testing.T) {
	serverRepo := newTestRepo(t)
	serverSecret, _ := dwcrypto.RandomSecret()
	serverNode, err := NewNode(serverRepo, serverSecret, zap.NewNop())
	require.NoError(t, err)

	addr := freeAddr(t)
	go serverNode.ListenAndServe(addr)
	time.Sleep(50 * time.Millisecond)

	clientRepo := newTestRepo(t)
	clientSecret, _ := dwcrypto.RandomSecret()
	clientNode, err := NewNode(clientRepo, clientSecret, zap.NewNop())
	require.NoError(t, err)
	serverPublic := serverNode.Public()

	// No keyring entry for clientNode's public key on the server side:
	// the connection should be accepted at the TCP/websocket level but
	// closed immediately once identity is checked, rather than joining
	// the protocol.
	require.NoError(t, clientNode.DialPeer("ws://"+addr+"/darkwiki", serverPublic))

	time.Sleep(100 * time.Millisecond)
	serverNode.mu.Lock()
	count := len(serverNode.channels)
	serverNode.mu.Unlock()
	require.Zero(t, count, "expected unauthorized peer to be rejected")
}

func TestNodeAcceptsAuthorizedPeer(t *testing.T) {
	serverRepo := newTestRepo(t)
	serverSecret, _ := dwcrypto.RandomSecret()
	serverNode, err := NewNode(serverRepo, serverSecret, zap.NewNop())
	require.NoError(t, err)

	clientRepo := newTestRepo(t)
	clientSecret, _ := dwcrypto.RandomSecret()
	clientNode, err := NewNode(clientRepo, clientSecret, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, serverRepo.Store.AddAuthorizedKey(clientNode.Public()))

	addr := freeAddr(t)
	go serverNode.ListenAndServe(addr)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, clientNode.DialPeer("ws://"+addr+"/darkwiki", serverNode.Public()))

	time.Sleep(200 * time.Millisecond)
	serverNode.mu.Lock()
	count := len(serverNode.channels)
	serverNode.mu.Unlock()
	require.Equal(t, 1, count, "expected authorized peer to establish a channel")
}
