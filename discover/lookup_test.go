package discover

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

func containsID(ids []enode.ID, id enode.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func randomIDs(rng *rand.Rand, n int) []enode.ID {
	ids := make([]enode.ID, n)
	for i := range ids {
		rng.Read(ids[i][:])
	}
	return ids
}

func TestLookupBoundedParallelism(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	var target enode.ID
	rng.Read(target[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, randomIDs(rng, 10))

	probes := l.peersToProbe()
	require.Len(t, probes, lookupParallelism)
	require.Equal(t, lookupParallelism, l.inflight)

	// No more probes until an outcome arrives.
	require.Empty(t, l.peersToProbe())

	l.onSuccess(probes[0], nil)
	next := l.peersToProbe()
	require.Len(t, next, 1)
	require.NotContains(t, probes, next[0])
}

func TestLookupProbesClosestFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var target enode.ID
	rng.Read(target[:])

	seeds := randomIDs(rng, 8)
	l := newLookup(1, target, lookupParallelism, lookupNumResults, seeds)

	sorted := append([]enode.ID{}, seeds...)
	sort.Slice(sorted, func(i, j int) bool {
		return enode.DistCmp(target, sorted[i], sorted[j]) < 0
	})
	require.Equal(t, sorted[:lookupParallelism], l.peersToProbe())
}

func TestLookupMergeDeduplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	var target enode.ID
	rng.Read(target[:])

	seeds := randomIDs(rng, 3)
	l := newLookup(1, target, lookupParallelism, lookupNumResults, seeds)
	probes := l.peersToProbe()

	// Reporting already-known peers must not create duplicate candidates.
	l.onSuccess(probes[0], append(randomIDs(rng, 2), seeds...))
	require.Len(t, l.closest, 5)
	require.Len(t, l.peers, 5)
}

func TestLookupOutcomeForIdlePeerIgnored(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	var target enode.ID
	rng.Read(target[:])

	seeds := randomIDs(rng, 5)
	l := newLookup(1, target, lookupParallelism, lookupNumResults, seeds)
	probes := l.peersToProbe()

	var idle enode.ID
	for _, id := range seeds {
		if !containsID(probes, id) {
			idle = id
			break
		}
	}
	before := l.inflight
	l.onSuccess(idle, nil) // never probed
	l.onFailure(idle)
	var unknown enode.ID
	rng.Read(unknown[:])
	l.onFailure(unknown)
	require.Equal(t, before, l.inflight)
}

func TestLookupDuplicateOutcomeIgnored(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	var target enode.ID
	rng.Read(target[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, randomIDs(rng, 3))
	probes := l.peersToProbe()

	l.onSuccess(probes[0], nil)
	l.onSuccess(probes[0], nil)
	l.onFailure(probes[0])
	require.Equal(t, len(probes)-1, l.inflight)
}

func TestLookupTermination(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	var target enode.ID
	rng.Read(target[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, randomIDs(rng, 6))
	require.False(t, l.isFinished())

	var succeeded []enode.ID
	for {
		probes := l.peersToProbe()
		if len(probes) == 0 {
			break
		}
		for _, id := range probes {
			l.onSuccess(id, nil)
			succeeded = append(succeeded, id)
		}
	}
	require.True(t, l.isFinished())

	result := l.result()
	require.ElementsMatch(t, succeeded, result)
	for i := 1; i < len(result); i++ {
		require.LessOrEqual(t, enode.DistCmp(target, result[i-1], result[i]), 0)
	}
}

func TestLookupFailuresExcludedFromResult(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	var target enode.ID
	rng.Read(target[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, randomIDs(rng, 4))
	var failed enode.ID
	for {
		probes := l.peersToProbe()
		if len(probes) == 0 {
			break
		}
		for i, id := range probes {
			if i == 0 && failed == (enode.ID{}) {
				failed = id
				l.onFailure(id)
			} else {
				l.onSuccess(id, nil)
			}
		}
	}
	require.True(t, l.isFinished())
	require.NotContains(t, l.result(), failed)
	require.Len(t, l.result(), 3)
}

func TestLookupResultCap(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	var target enode.ID
	rng.Read(target[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, randomIDs(rng, 40))
	for {
		probes := l.peersToProbe()
		if len(probes) == 0 {
			break
		}
		for _, id := range probes {
			l.onSuccess(id, nil)
		}
	}
	require.True(t, l.isFinished())
	require.Len(t, l.result(), lookupNumResults)
}

func TestLookupUntrustedDeduplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	var target, id enode.ID
	rng.Read(target[:])
	rng.Read(id[:])

	l := newLookup(1, target, lookupParallelism, lookupNumResults, nil)
	require.True(t, l.addUntrusted(enr.New(id, 1)))
	require.False(t, l.addUntrusted(enr.New(id, 2)))
	require.Equal(t, uint64(1), l.untrustedRecord(id).Seq())
	require.Nil(t, l.untrustedRecord(target))
}

func TestLookupEmptySeedsFinishedImmediately(t *testing.T) {
	var target enode.ID
	l := newLookup(1, target, lookupParallelism, lookupNumResults, nil)
	require.Empty(t, l.peersToProbe())
	require.True(t, l.isFinished())
	require.Empty(t, l.result())
}
