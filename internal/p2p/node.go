package p2p

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
	"github.com/systemshift/darkwiki/internal/objstore"
)

// upgrader accepts any origin, matching a node-to-node gossip link
// rather than a browser-facing endpoint.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Node is one darkwiki peer: an identity keypair, a repository, and the
// set of Channels it currently gossips with. Grounded on micronet.py's
// Node, which owns the shared socket and spawns one Channel per peer;
// here each Channel owns its own websocket connection instead.
type Node struct {
	secret dwcrypto.SecretKey
	public dwcrypto.PublicKey
	id     uint32

	repo   *objstore.Repository
	logger *zap.Logger

	mu       sync.Mutex
	channels map[uint32]*Channel

	wg sync.WaitGroup
}

// NewNode returns a Node identified by secret, serving repo.
func NewNode(repo *objstore.Repository, secret dwcrypto.SecretKey, logger *zap.Logger) (*Node, error) {
	public, err := dwcrypto.SecretToPublic(secret)
	if err != nil {
		return nil, fmt.Errorf("node: derive public key: %w", err)
	}
	return &Node{
		secret:   secret,
		public:   public,
		id:       dwcrypto.NodeID(public),
		repo:     repo,
		logger:   logger,
		channels: map[uint32]*Channel{},
	}, nil
}

// ID returns this node's derived identifier.
func (n *Node) ID() uint32 {
	return n.id
}

// Public returns this node's public key.
func (n *Node) Public() dwcrypto.PublicKey {
	return n.public
}

// ListenAndServe accepts incoming peer connections on addr until the
// process exits. A ZeroMQ PUB/SUB socket (what micronet.py's Node
// shares across every peer) learns a message's sender from the
// subscription topic; a plain websocket connection carries no such
// label, so the dialer first sends its public key in the clear and the
// listener checks it against the repository's keyring -- the same
// authorization micronet.py's Keyring performs, just surfaced earlier
// since there is no topic to pre-filter on.
func (n *Node) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/darkwiki", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			n.logger.Error("node: upgrade failed", zap.Error(err))
			return
		}
		peerPublic, err := readIdentity(conn)
		if err != nil {
			n.logger.Warn("node: rejecting connection with no identity", zap.Error(err))
			conn.Close()
			return
		}
		authorized, err := n.repo.Store.AuthorizedKeys()
		if err != nil {
			n.logger.Error("node: could not read keyring", zap.Error(err))
			conn.Close()
			return
		}
		if !authorized[peerPublic] {
			n.logger.Warn("node: rejecting unauthorized peer", zap.Uint32("peer", dwcrypto.NodeID(peerPublic)))
			conn.Close()
			return
		}
		n.acceptPeer(conn, peerPublic)
	})
	return http.ListenAndServe(addr, mux)
}

func readIdentity(conn *websocket.Conn) (dwcrypto.PublicKey, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return dwcrypto.PublicKey{}, err
	}
	if len(data) != dwcrypto.KeySize {
		return dwcrypto.PublicKey{}, fmt.Errorf("node: bad identity frame length %d", len(data))
	}
	var public dwcrypto.PublicKey
	copy(public[:], data)
	return public, nil
}

// acceptPeer wires a freshly accepted connection into a Channel and
// runs its Protocol under the task supervisor.
func (n *Node) acceptPeer(conn *websocket.Conn, peerPublic dwcrypto.PublicKey) {
	channel := NewChannel(conn, n.secret, peerPublic)
	n.registerChannel(channel)
	n.Schedule(fmt.Sprintf("protocol[%08x]", channel.PeerNodeID()), func() error {
		defer n.unregisterChannel(channel)
		defer channel.Close()
		return NewProtocol(channel, n.repo, n.logger).Run()
	})
}

// DialPeer opens an outgoing connection to a peer at addr, announces
// this node's public key in the clear, and runs the connection's
// Protocol under the task supervisor, mirroring Node.start() spawning
// one Channel per known peer.
func (n *Node) DialPeer(addr string, peerPublic dwcrypto.PublicKey) error {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("node: dial %s: %w", addr, err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, n.public[:]); err != nil {
		conn.Close()
		return fmt.Errorf("node: announce identity to %s: %w", addr, err)
	}
	n.acceptPeer(conn, peerPublic)
	return nil
}

// Bootstrap registers with the seed service, merges the returned peer
// set into the local seeds file, and opens one Channel to every peer
// the merged set names other than this node's own listen address,
// mirroring micronet.py's startup sequence of sync_seeds followed by
// one Channel spawned per known peer.
func (n *Node) Bootstrap(seedAddress, listenAddress string) error {
	seeds, err := n.SyncSeeds(seedAddress, listenAddress)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	for address, publicHex := range seeds {
		if address == listenAddress {
			continue
		}
		raw, err := hex.DecodeString(publicHex)
		if err != nil || len(raw) != dwcrypto.KeySize {
			n.logger.Warn("node: skipping malformed seed entry", zap.String("address", address))
			continue
		}
		var public dwcrypto.PublicKey
		copy(public[:], raw)
		if err := n.DialPeer("ws://"+address+"/darkwiki", public); err != nil {
			n.logger.Warn("node: could not dial peer", zap.String("address", address), zap.Error(err))
		}
	}
	return nil
}

func (n *Node) registerChannel(c *Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[c.PeerNodeID()] = c
}

func (n *Node) unregisterChannel(c *Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.channels, c.PeerNodeID())
}

// Schedule runs fn in its own goroutine under the node's task
// supervisor: a panic or returned error is logged with a captured stack
// trace rather than crashing the node, mirroring Node.schedule's
// catch-all around every coroutine in the original.
func (n *Node) Schedule(name string, fn func() error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("node: task panicked",
					zap.String("task", name),
					zap.Stack("stack"),
					zap.Any("panic", r),
				)
			}
		}()
		if err := fn(); err != nil {
			n.logger.Error("node: task failed",
				zap.String("task", name),
				zap.Error(errors.WithStack(err)),
			)
		}
	}()
}

// Wait blocks until every scheduled task has returned.
func (n *Node) Wait() {
	n.wg.Wait()
}
