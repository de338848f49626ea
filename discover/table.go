package discover

import (
	"go.uber.org/zap"

	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

// Table is the XOR-metric routing table. It keeps up to bucketSize entries
// per log2 distance shell. Each bucket has a single pending slot holding a
// would-be entrant while the least-recently-seen occupant is probed.
//
// The table performs no locking. It is owned by the service dispatch
// goroutine and all mutation happens there.
type Table struct {
	localID enode.ID
	buckets [nBuckets]*bucket
	log     *zap.SugaredLogger

	// pendingEvictionHook fires when a full bucket placed a candidate in
	// its pending slot. The service probes the victim and reports back
	// through resolvePending.
	pendingEvictionHook func(victim *enr.Record)

	// appliedEvictionHook fires when a pending candidate replaced a dead
	// entry. evicted is nil if the slot had been vacated already.
	appliedEvictionHook func(inserted, evicted *enr.Record)
}

// bucket holds nodes of one distance shell, ordered most-recently-seen
// last.
type bucket struct {
	entries []*node
	pending *node
}

func newTable(localID enode.ID, log *zap.SugaredLogger) *Table {
	tab := &Table{localID: localID, log: log}
	for i := range tab.buckets {
		tab.buckets[i] = &bucket{}
	}
	return tab
}

// bucketAtDistance returns the bucket for log2 distance d, 1 <= d <= 256.
func (tab *Table) bucketAtDistance(d int) *bucket {
	return tab.buckets[d-1]
}

func (tab *Table) bucket(id enode.ID) *bucket {
	return tab.bucketAtDistance(enode.LogDist(tab.localID, id))
}

func (b *bucket) get(id enode.ID) *node {
	for _, n := range b.entries {
		if n.ID() == id {
			return n
		}
	}
	return nil
}

// getValue returns the stored record of id, ignoring the pending slot.
func (tab *Table) getValue(id enode.ID) *enr.Record {
	if id == tab.localID {
		return nil
	}
	if n := tab.bucket(id).get(id); n != nil {
		return n.record
	}
	return nil
}

// getWithPending returns the entry for id, including the pending slot.
func (tab *Table) getWithPending(id enode.ID) *node {
	if id == tab.localID {
		return nil
	}
	b := tab.bucket(id)
	if n := b.get(id); n != nil {
		return n
	}
	if b.pending != nil && b.pending.ID() == id {
		return b.pending
	}
	return nil
}

// add attempts to insert the record. It returns true iff the record went
// into the bucket proper. When the target bucket is full the record is
// placed into the pending slot and the eviction protocol starts; if the
// pending slot is taken as well the record is dropped. Records already
// present are updated in place.
func (tab *Table) add(record *enr.Record, status Status) bool {
	id := record.NodeID()
	d := enode.LogDist(tab.localID, id)
	if d == 0 {
		return false
	}
	b := tab.bucketAtDistance(d)
	if n := b.get(id); n != nil {
		n.record = record
		tab.setStatus(b, n, status)
		return false
	}
	if b.pending != nil && b.pending.ID() == id {
		b.pending.record = record
		b.pending.status = status
		return false
	}
	if len(b.entries) < bucketSize {
		b.entries = append(b.entries, &node{record: record, status: status})
		return true
	}
	if b.pending == nil {
		b.pending = &node{record: record, status: status}
		victim := b.entries[0]
		tab.log.Debugw("Bucket full, challenging entry", "bucket", d, "victim", victim.ID().TerminalString(), "candidate", id.TerminalString())
		if tab.pendingEvictionHook != nil {
			tab.pendingEvictionHook(victim.record)
		}
	}
	return false
}

// update replaces the record and status of an existing entry. It is a
// no-op if the node is not in the table.
func (tab *Table) update(record *enr.Record, status Status) {
	if n := tab.getWithPending(record.NodeID()); n != nil {
		n.record = record
		n.status = status
	}
}

// updateValue replaces the record of an existing entry, keeping its
// status. It is a no-op if the node is not in the table.
func (tab *Table) updateValue(record *enr.Record) {
	if n := tab.getWithPending(record.NodeID()); n != nil {
		n.record = record
	}
}

// updateStatus sets the status of an existing entry. A transition to
// connected counts as having seen the node, moving it to the
// most-recently-seen position.
func (tab *Table) updateStatus(id enode.ID, status Status) {
	if id == tab.localID {
		return
	}
	b := tab.bucket(id)
	if n := b.get(id); n != nil {
		tab.setStatus(b, n, status)
		return
	}
	if b.pending != nil && b.pending.ID() == id {
		b.pending.status = status
	}
}

func (tab *Table) setStatus(b *bucket, n *node, status Status) {
	n.status = status
	if status == StatusConnected {
		bumpNode(b.entries, n)
	}
}

// resolvePending concludes the eviction protocol for the given victim.
// If the victim answered its probe the pending candidate is dropped;
// otherwise the victim is evicted and the candidate promoted.
func (tab *Table) resolvePending(victimID enode.ID, alive bool) {
	if victimID == tab.localID {
		return
	}
	b := tab.bucket(victimID)
	if b.pending == nil {
		return
	}
	victim := b.get(victimID)
	if victim == nil {
		// The victim disappeared through other means. Promote the
		// candidate if its slot is still free.
		if len(b.entries) < bucketSize {
			inserted := b.pending
			b.entries = append(b.entries, inserted)
			b.pending = nil
			if tab.appliedEvictionHook != nil {
				tab.appliedEvictionHook(inserted.record, nil)
			}
		} else {
			b.pending = nil
		}
		return
	}
	if alive {
		tab.setStatus(b, victim, StatusConnected)
		b.pending = nil
		return
	}
	inserted := b.pending
	b.pending = nil
	deleteEntry(b, victimID)
	b.entries = append(b.entries, inserted)
	tab.log.Debugw("Evicted dead entry", "evicted", victimID.TerminalString(), "inserted", inserted.ID().TerminalString())
	if tab.appliedEvictionHook != nil {
		tab.appliedEvictionHook(inserted.record, victim.record)
	}
}

// nearest returns up to n records sorted by ascending XOR distance to
// target.
func (tab *Table) nearest(target enode.ID, n int) []*enr.Record {
	closest := &nodesByDistance{target: target}
	for _, b := range &tab.buckets {
		for _, e := range b.entries {
			closest.push(e.record, n)
		}
	}
	return closest.entries
}

// valuesOfDistance returns all records in the shell of log2 distance
// exactly d, in bucket order. Distance zero denotes our own record and is
// handled by the caller.
func (tab *Table) valuesOfDistance(d uint) []*enr.Record {
	if d < 1 || d > nBuckets {
		return nil
	}
	b := tab.bucketAtDistance(int(d))
	records := make([]*enr.Record, len(b.entries))
	for i, n := range b.entries {
		records[i] = n.record
	}
	return records
}

// values returns all records in the table.
func (tab *Table) values() []*enr.Record {
	var records []*enr.Record
	for _, b := range &tab.buckets {
		for _, n := range b.entries {
			records = append(records, n.record)
		}
	}
	return records
}

// len returns the number of entries, excluding pending slots.
func (tab *Table) len() (n int) {
	for _, b := range &tab.buckets {
		n += len(b.entries)
	}
	return n
}

// clear removes all entries and pending candidates.
func (tab *Table) clear() {
	for i := range tab.buckets {
		tab.buckets[i] = &bucket{}
	}
}

// bumpNode moves n to the most-recently-seen position.
func bumpNode(entries []*node, n *node) {
	for i := range entries {
		if entries[i] == n {
			copy(entries[i:], entries[i+1:])
			entries[len(entries)-1] = n
			return
		}
	}
}

func deleteEntry(b *bucket, id enode.ID) {
	for i := range b.entries {
		if b.entries[i].ID() == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}
