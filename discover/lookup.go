package discover

import (
	"sort"

	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

// lookup is the state machine of one iterative query toward a target id.
// It holds no timers and performs no I/O: the service pulls peers to probe
// through peersToProbe and feeds outcomes back through onSuccess and
// onFailure.
type lookup struct {
	id          uint32
	target      enode.ID
	parallelism int
	numResults  int

	peers    map[enode.ID]*lookupPeer
	closest  []*lookupPeer // ascending XOR distance to target
	inflight int

	// untrusted buffers records reported by peers during this lookup.
	// They have not gone through a session handshake yet, so they stay
	// out of the routing table until one is established.
	untrusted map[enode.ID]*enr.Record
}

type lookupPeerState uint8

const (
	peerNotContacted lookupPeerState = iota
	peerWaiting
	peerSucceeded
	peerFailed
)

type lookupPeer struct {
	id        enode.ID
	state     lookupPeerState
	iteration int
}

func newLookup(id uint32, target enode.ID, parallelism, numResults int, seeds []enode.ID) *lookup {
	l := &lookup{
		id:          id,
		target:      target,
		parallelism: parallelism,
		numResults:  numResults,
		peers:       make(map[enode.ID]*lookupPeer),
		untrusted:   make(map[enode.ID]*enr.Record),
	}
	for _, seed := range seeds {
		l.addCandidate(seed)
	}
	return l
}

// addCandidate merges a peer into the candidate queue. Known peers are
// left untouched.
func (l *lookup) addCandidate(id enode.ID) {
	if _, ok := l.peers[id]; ok {
		return
	}
	p := &lookupPeer{id: id}
	l.peers[id] = p
	ix := sort.Search(len(l.closest), func(i int) bool {
		return enode.DistCmp(l.target, l.closest[i].id, id) > 0
	})
	l.closest = append(l.closest, nil)
	copy(l.closest[ix+1:], l.closest[ix:])
	l.closest[ix] = p
}

// peersToProbe selects the next peers to query, closest first, keeping at
// most parallelism probes in flight. Only candidates that could still
// improve the result window are considered. The returned peers are marked
// in flight.
func (l *lookup) peersToProbe() []enode.ID {
	var probe []enode.ID
	window := min(len(l.closest), l.numResults)
	for i := 0; i < window && l.inflight < l.parallelism; i++ {
		p := l.closest[i]
		if p.state != peerNotContacted {
			continue
		}
		p.state = peerWaiting
		p.iteration++
		l.inflight++
		probe = append(probe, p.id)
	}
	return probe
}

// onSuccess records a completed probe and merges the reported peers into
// the candidate queue. Outcomes for peers that are not in flight are
// ignored.
func (l *lookup) onSuccess(src enode.ID, found []enode.ID) {
	p, ok := l.peers[src]
	if !ok || p.state != peerWaiting {
		return
	}
	p.state = peerSucceeded
	l.inflight--
	for _, id := range found {
		l.addCandidate(id)
	}
}

// onFailure marks a probed peer as terminally failed for this lookup.
func (l *lookup) onFailure(src enode.ID) {
	p, ok := l.peers[src]
	if !ok || p.state != peerWaiting {
		return
	}
	p.state = peerFailed
	l.inflight--
}

// addUntrusted buffers a record reported during this lookup. It returns
// true if the node id was not seen before.
func (l *lookup) addUntrusted(r *enr.Record) bool {
	id := r.NodeID()
	if _, ok := l.untrusted[id]; ok {
		return false
	}
	l.untrusted[id] = r
	return true
}

// untrustedRecord returns the buffered record for id, if any.
func (l *lookup) untrustedRecord(id enode.ID) *enr.Record {
	return l.untrusted[id]
}

// isFinished reports quiescence: nothing in flight and no candidate left
// that could enter the result window.
func (l *lookup) isFinished() bool {
	if l.inflight > 0 {
		return false
	}
	window := min(len(l.closest), l.numResults)
	for i := 0; i < window; i++ {
		if l.closest[i].state == peerNotContacted {
			return false
		}
	}
	return true
}

// result returns the closest successfully probed peers, at most
// numResults of them.
func (l *lookup) result() []enode.ID {
	ids := make([]enode.ID, 0, l.numResults)
	for _, p := range l.closest {
		if p.state != peerSucceeded {
			continue
		}
		ids = append(ids, p.id)
		if len(ids) == l.numResults {
			break
		}
	}
	return ids
}
