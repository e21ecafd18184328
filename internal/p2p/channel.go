// Package p2p implements darkwiki's peer-sync layer: an encrypted
// gossip channel per peer, a hello/sync/fetch/object protocol running
// over it, and a node that bootstraps its peer set from a seed service
// and supervises every peer's goroutines.
//
// Grounded on original_source/darkwiki/micronet.py's Node/Channel/
// Protocol design, carried over onto github.com/gorilla/websocket in
// place of the original's ZeroMQ PUB/SUB sockets: each peer gets its
// own full-duplex connection instead of sharing one fan-out socket, so
// Channel no longer needs the original's settle-delay-then-discard-
// undecryptable-frames loop on receive.
package p2p

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
)

// Channel is one encrypted connection to a single peer.
type Channel struct {
	id uuid.UUID

	conn         *websocket.Conn
	localSecret  dwcrypto.SecretKey
	peerPublic   dwcrypto.PublicKey
	peerNodeID   uint32

	writeMu sync.Mutex
}

// NewChannel wraps an established websocket connection as an encrypted
// channel to the peer identified by peerPublic.
func NewChannel(conn *websocket.Conn, localSecret dwcrypto.SecretKey, peerPublic dwcrypto.PublicKey) *Channel {
	return &Channel{
		id:          uuid.New(),
		conn:        conn,
		localSecret: localSecret,
		peerPublic:  peerPublic,
		peerNodeID:  dwcrypto.NodeID(peerPublic),
	}
}

// ID returns the channel's trace identifier, used only for logging.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// PeerNodeID returns the remote peer's derived node identifier.
func (c *Channel) PeerNodeID() uint32 {
	return c.peerNodeID
}

// Send encrypts and writes one wire frame to the peer.
func (c *Channel) Send(frame []byte) error {
	cipher, err := dwcrypto.EncryptSign(frame, c.localSecret, c.peerPublic)
	if err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, cipher)
}

// Receive blocks for the next frame from the peer, decrypting and
// authenticating it. A ciphertext that fails to authenticate is
// reported as an error rather than silently discarded, since unlike
// micronet.py's shared PUB socket this channel carries only one peer's
// traffic.
func (c *Channel) Receive() ([]byte, error) {
	_, cipher, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("channel receive: %w", err)
	}
	plain, err := dwcrypto.DecryptVerify(cipher, c.peerPublic, c.localSecret)
	if err != nil {
		return nil, fmt.Errorf("channel receive: %w", err)
	}
	if plain == nil {
		return nil, fmt.Errorf("channel receive: message did not authenticate")
	}
	return plain, nil
}

// Close tears down the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}
