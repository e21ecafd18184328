package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/systemshift/darkwiki/internal/objstore"
)

// seedRequest is what a node sends the seed service to register itself
// and ask for the current peer set, mirroring _fetch_from_seed_node's
// REQ/REP round trip (here carried over a websocket connection instead
// of a ZeroMQ REQ socket).
type seedRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

type seedReply struct {
	Seeds objstore.Seeds `json:"seeds"`
}

// SyncSeeds registers this node with the seed service at seedAddress,
// merges the returned peer set into the repository's local seeds file,
// and returns the merged set. A failure to reach the seed service falls
// back to whatever seeds file already exists on disk, mirroring
// sync_seeds's fall-through to _fetch_from_seeds_file.
func (n *Node) SyncSeeds(seedAddress, listenAddress string) (objstore.Seeds, error) {
	local, err := n.repo.Store.ReadSeeds()
	if err != nil {
		return nil, fmt.Errorf("sync seeds: read local seeds file: %w", err)
	}

	remote, err := fetchFromSeedService(seedAddress, n.id, listenAddress)
	if err != nil {
		n.logger.Warn("sync seeds: seed service unreachable, using local seeds file only")
		return local, nil
	}

	// micronet.py's sync_seeds merges as {**seed_node_list, **seeds_file_list}:
	// the local seeds file wins over the seed service on a conflicting address.
	merged := objstore.MergeSeeds(remote, local)
	if err := n.repo.Store.WriteSeeds(merged); err != nil {
		return nil, fmt.Errorf("sync seeds: write merged seeds file: %w", err)
	}
	return merged, nil
}

func fetchFromSeedService(seedAddress string, nodeID uint32, listenAddress string) (objstore.Seeds, error) {
	conn, _, err := websocket.DefaultDialer.Dial(seedAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch from seed service: %w", err)
	}
	defer conn.Close()

	req := seedRequest{NodeID: fmt.Sprintf("%08x", nodeID), Address: listenAddress}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("fetch from seed service: %w", err)
	}

	var reply seedReply
	if err := conn.ReadJSON(&reply); err != nil {
		return nil, fmt.Errorf("fetch from seed service: %w", err)
	}
	return reply.Seeds, nil
}

// marshalSeeds is used only by tests that need to assert on a seed
// reply's wire shape without standing up a real seed service.
func marshalSeeds(s objstore.Seeds) ([]byte, error) {
	return json.Marshal(seedReply{Seeds: s})
}
