package discover

import (
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ChainSafe/libp2p-discv5/enode"
)

// ipVotes collects peers' assertions of our external endpoint, reported in
// PONG messages. Votes expire after a fixed TTL. Majority selection is a
// future extension; votes are only ingested for now.
type ipVotes struct {
	votes *expirable.LRU[enode.ID, *net.UDPAddr]
}

func newIPVotes(ttl time.Duration) *ipVotes {
	return &ipVotes{
		votes: expirable.NewLRU[enode.ID, *net.UDPAddr](0, nil, ttl),
	}
}

// insert records the endpoint that the given peer observed for us,
// replacing the peer's previous vote.
func (v *ipVotes) insert(id enode.ID, addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	v.votes.Add(id, addr)
}

// get returns the live vote of the given peer.
func (v *ipVotes) get(id enode.ID) (*net.UDPAddr, bool) {
	return v.votes.Get(id)
}

func (v *ipVotes) len() int {
	return v.votes.Len()
}
