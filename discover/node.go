package discover

import (
	"sort"

	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

// Status is the connection state tracked for a routing table entry.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// node is the payload of a routing table slot.
type node struct {
	record *enr.Record
	status Status
}

func (n *node) ID() enode.ID {
	return n.record.NodeID()
}

// nodesByDistance is a list of records, ordered by ascending XOR distance
// to target.
type nodesByDistance struct {
	entries []*enr.Record
	target  enode.ID
}

// push adds the given record to the list, keeping at most maxElems
// entries.
func (h *nodesByDistance) push(r *enr.Record, maxElems int) {
	ix := sort.Search(len(h.entries), func(i int) bool {
		return enode.DistCmp(h.target, h.entries[i].NodeID(), r.NodeID()) > 0
	})
	if len(h.entries) < maxElems {
		h.entries = append(h.entries, r)
	}
	if ix < len(h.entries) {
		copy(h.entries[ix+1:], h.entries[ix:])
		h.entries[ix] = r
	}
}
