package discover

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

var testLocalID = enode.ID{}

// idAtDistance returns a random id b such that LogDist(a, b) == n.
func idAtDistance(rng *rand.Rand, a enode.ID, n int) (b enode.ID) {
	if n == 0 {
		return a
	}
	// flip bit at position n, fill the rest with random bits
	b = a
	pos := len(a) - n/8 - 1
	bit := byte(0x01) << (byte(n%8) - 1)
	if bit == 0 {
		pos++
		bit = 0x80
	}
	b[pos] = a[pos]&^bit | ^a[pos]&bit
	for i := pos + 1; i < len(a); i++ {
		b[i] = byte(rng.Intn(255))
	}
	return b
}

func recordAtDistance(rng *rand.Rand, a enode.ID, n int, seq uint64) *enr.Record {
	r := enr.New(idAtDistance(rng, a, n), seq)
	r.SetUDPEndpoint([]byte{127, 0, 0, 1}, 30000+rng.Intn(10000))
	return r
}

func newTestTable() *Table {
	return newTable(testLocalID, zap.NewNop().Sugar())
}

func TestTableAddInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tab := newTestTable()

	for i := 0; i < 500; i++ {
		d := 1 + rng.Intn(nBuckets)
		tab.add(recordAtDistance(rng, testLocalID, d, 1), StatusDisconnected)
	}

	seen := make(map[enode.ID]bool)
	for i, b := range &tab.buckets {
		require.LessOrEqual(t, len(b.entries), bucketSize)
		for _, n := range b.entries {
			require.False(t, seen[n.ID()], "node in more than one bucket")
			seen[n.ID()] = true
			require.Equal(t, i+1, enode.LogDist(testLocalID, n.ID()), "entry in wrong bucket")
		}
	}
}

func TestTableAddSelf(t *testing.T) {
	tab := newTestTable()
	require.False(t, tab.add(enr.New(testLocalID, 1), StatusConnected))
	require.Zero(t, tab.len())
}

func TestTableBucketFull(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tab := newTestTable()

	var pendingEvictions []*enr.Record
	tab.pendingEvictionHook = func(victim *enr.Record) {
		pendingEvictions = append(pendingEvictions, victim)
	}

	records := make([]*enr.Record, bucketSize)
	for i := range records {
		records[i] = recordAtDistance(rng, testLocalID, 200, 1)
		require.True(t, tab.add(records[i], StatusConnected), "insert %d", i)
	}
	require.Empty(t, pendingEvictions)

	// The 17th entrant goes to the pending slot and challenges the
	// least-recently-seen entry.
	candidate := recordAtDistance(rng, testLocalID, 200, 1)
	require.False(t, tab.add(candidate, StatusConnected))
	require.Len(t, pendingEvictions, 1)
	require.Equal(t, records[0].NodeID(), pendingEvictions[0].NodeID())
	require.Equal(t, candidate.NodeID(), tab.getWithPending(candidate.NodeID()).ID())
	require.Nil(t, tab.getValue(candidate.NodeID()))

	// While the pending slot is taken, further entrants are dropped.
	another := recordAtDistance(rng, testLocalID, 200, 1)
	require.False(t, tab.add(another, StatusConnected))
	require.Len(t, pendingEvictions, 1)
	require.Nil(t, tab.getWithPending(another.NodeID()))
}

func TestTableResolvePendingAlive(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tab := newTestTable()
	tab.pendingEvictionHook = func(*enr.Record) {}

	records := fillBucket(t, rng, tab, 100)
	candidate := recordAtDistance(rng, testLocalID, 100, 1)
	tab.add(candidate, StatusDisconnected)

	tab.resolvePending(records[0].NodeID(), true)

	b := tab.bucketAtDistance(100)
	require.Nil(t, b.pending)
	require.Nil(t, tab.getWithPending(candidate.NodeID()))
	// The surviving victim is now the most recently seen entry.
	require.Equal(t, records[0].NodeID(), b.entries[len(b.entries)-1].ID())
}

func TestTableResolvePendingDead(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tab := newTestTable()
	tab.pendingEvictionHook = func(*enr.Record) {}

	var inserted, evicted *enr.Record
	tab.appliedEvictionHook = func(ins, ev *enr.Record) {
		inserted, evicted = ins, ev
	}

	records := fillBucket(t, rng, tab, 100)
	candidate := recordAtDistance(rng, testLocalID, 100, 1)
	tab.add(candidate, StatusDisconnected)

	tab.resolvePending(records[0].NodeID(), false)

	require.Equal(t, candidate.NodeID(), inserted.NodeID())
	require.Equal(t, records[0].NodeID(), evicted.NodeID())
	require.Nil(t, tab.getValue(records[0].NodeID()))
	require.NotNil(t, tab.getValue(candidate.NodeID()))
	require.Equal(t, bucketSize, len(tab.bucketAtDistance(100).entries))
}

func TestTableResolvePendingNoChallenge(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	tab := newTestTable()
	r := recordAtDistance(rng, testLocalID, 100, 1)
	tab.add(r, StatusConnected)

	// No pending candidate: resolution is a no-op.
	tab.resolvePending(r.NodeID(), false)
	require.NotNil(t, tab.getValue(r.NodeID()))
}

func TestTableNearest(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tab := newTestTable()
	for i := 0; i < 100; i++ {
		tab.add(recordAtDistance(rng, testLocalID, 1+rng.Intn(nBuckets), 1), StatusDisconnected)
	}

	var target enode.ID
	rng.Read(target[:])

	check := func(results []*enr.Record) {
		require.LessOrEqual(t, len(results), bucketSize)
		for i := 1; i < len(results); i++ {
			require.LessOrEqual(t,
				enode.DistCmp(target, results[i-1].NodeID(), results[i].NodeID()), 0,
				"results not sorted by distance")
		}
	}
	first := tab.nearest(target, bucketSize)
	check(first)

	// Idempotent under re-query with unchanged state.
	second := tab.nearest(target, bucketSize)
	require.Equal(t, first, second)
}

func TestTableValuesOfDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	tab := newTestTable()

	var want []enode.ID
	for i := 0; i < 5; i++ {
		r := recordAtDistance(rng, testLocalID, 250, 1)
		tab.add(r, StatusDisconnected)
		want = append(want, r.NodeID())
	}
	tab.add(recordAtDistance(rng, testLocalID, 249, 1), StatusDisconnected)

	got := tab.valuesOfDistance(250)
	require.Len(t, got, 5)
	for i, r := range got {
		require.Equal(t, want[i], r.NodeID(), "records not in table order")
	}
	require.Nil(t, tab.valuesOfDistance(0))
	require.Nil(t, tab.valuesOfDistance(nBuckets+1))
}

func TestTableUpdate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tab := newTestTable()

	r := recordAtDistance(rng, testLocalID, 77, 1)
	tab.add(r, StatusConnected)

	// updateValue replaces the record but keeps the status.
	newer := enr.New(r.NodeID(), 2)
	tab.updateValue(newer)
	n := tab.getWithPending(r.NodeID())
	require.Equal(t, uint64(2), n.record.Seq())
	require.Equal(t, StatusConnected, n.status)

	// update replaces both.
	tab.update(enr.New(r.NodeID(), 3), StatusDisconnected)
	n = tab.getWithPending(r.NodeID())
	require.Equal(t, uint64(3), n.record.Seq())
	require.Equal(t, StatusDisconnected, n.status)

	// updateValue of an absent node is a no-op.
	absent := recordAtDistance(rng, testLocalID, 77, 9)
	tab.updateValue(absent)
	require.Nil(t, tab.getValue(absent.NodeID()))
}

func TestTableUpdateStatusBumps(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	tab := newTestTable()

	first := recordAtDistance(rng, testLocalID, 50, 1)
	second := recordAtDistance(rng, testLocalID, 50, 1)
	tab.add(first, StatusDisconnected)
	tab.add(second, StatusDisconnected)

	tab.updateStatus(first.NodeID(), StatusConnected)
	b := tab.bucketAtDistance(50)
	require.Equal(t, first.NodeID(), b.entries[len(b.entries)-1].ID())
}

func TestTableClear(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	tab := newTestTable()
	for i := 0; i < 20; i++ {
		tab.add(recordAtDistance(rng, testLocalID, 1+rng.Intn(nBuckets), 1), StatusDisconnected)
	}
	require.NotZero(t, tab.len())
	tab.clear()
	require.Zero(t, tab.len())
	require.Empty(t, tab.values())
}

// fillBucket inserts bucketSize entries at the given distance and returns
// them in insertion order.
func fillBucket(t *testing.T, rng *rand.Rand, tab *Table, d int) []*enr.Record {
	t.Helper()
	records := make([]*enr.Record, bucketSize)
	for i := range records {
		records[i] = recordAtDistance(rng, testLocalID, d, 1)
		require.True(t, tab.add(records[i], StatusConnected))
	}
	return records
}
