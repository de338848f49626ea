package discover

import (
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ChainSafe/libp2p-discv5/enode"
)

func TestIPVotes(t *testing.T) {
	rng := rand.New(rand.NewSource(50))
	v := newIPVotes(time.Minute)

	var a, b enode.ID
	rng.Read(a[:])
	rng.Read(b[:])

	v.insert(a, &net.UDPAddr{IP: net.IP{1, 1, 1, 1}, Port: 1000})
	v.insert(b, &net.UDPAddr{IP: net.IP{2, 2, 2, 2}, Port: 2000})
	require.Equal(t, 2, v.len())

	// A peer's newer vote replaces its old one.
	v.insert(a, &net.UDPAddr{IP: net.IP{3, 3, 3, 3}, Port: 3000})
	require.Equal(t, 2, v.len())
	vote, ok := v.get(a)
	require.True(t, ok)
	require.Equal(t, net.IP{3, 3, 3, 3}, vote.IP)

	v.insert(a, nil)
	require.Equal(t, 2, v.len())
}

func TestIPVotesExpire(t *testing.T) {
	rng := rand.New(rand.NewSource(51))
	v := newIPVotes(50 * time.Millisecond)

	var a enode.ID
	rng.Read(a[:])
	v.insert(a, &net.UDPAddr{IP: net.IP{1, 1, 1, 1}, Port: 1000})

	require.Eventually(t, func() bool {
		_, ok := v.get(a)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
