// Package discover implements the protocol-level service layer of a
// discovery v5 node: the k-bucket routing table, the iterative lookup
// engine and the reactor correlating requests with responses from the
// session layer.
package discover

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ChainSafe/libp2p-discv5/enr"
)

const (
	bucketSize = 16  // k
	nBuckets   = 256 // one bucket per log2 distance shell

	lookupParallelism = 3
	lookupNumResults  = bucketSize

	// Largest number of NODES packets accepted for a single request.
	maxNodesResponses = 5

	// maxPacketSize is the protocol's UDP packet ceiling. packetOverhead
	// reserves room for the session tag, auth tag, request id, total field
	// and AEAD expansion.
	maxPacketSize  = 1280
	packetOverhead = 92
	nodesPerPacket = (maxPacketSize - packetOverhead) / enr.SizeLimit

	pingInterval  = 300 * time.Second
	ipVoteTimeout = 30 * time.Minute
)

// Config holds settings for the discovery service.
type Config struct {
	// These settings are optional:
	Bootnodes     []*enr.Record      // list of bootstrap nodes
	Parallelism   int                // concurrent probes per lookup
	NumResults    int                // nodes returned by a lookup
	PingInterval  time.Duration      // keep-alive period for connected peers
	IPVoteTimeout time.Duration      // lifetime of external-endpoint votes
	Log           *zap.SugaredLogger // logger, if nil logging is disabled
	Clock         clock.Clock        // clock source, simulated in tests
}

func (cfg Config) withDefaults() Config {
	if cfg.Parallelism == 0 {
		cfg.Parallelism = lookupParallelism
	}
	if cfg.NumResults == 0 {
		cfg.NumResults = lookupNumResults
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = pingInterval
	}
	if cfg.IPVoteTimeout == 0 {
		cfg.IPVoteTimeout = ipVoteTimeout
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return cfg
}

func min(x, y int) int {
	if x > y {
		return y
	}
	return x
}
