package discover

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ChainSafe/libp2p-discv5/enode"
)

// timerSet manages one periodic timer per node id. arm and cancel must be
// called from the dispatch goroutine; the fire callback runs on a timer
// goroutine and must only enqueue work.
type timerSet struct {
	clock  clock.Clock
	timers map[enode.ID]*peerTimer
}

type peerTimer struct {
	ticker *clock.Ticker
	stop   chan struct{}
}

func newTimerSet(c clock.Clock) *timerSet {
	return &timerSet{
		clock:  c,
		timers: make(map[enode.ID]*peerTimer),
	}
}

// arm installs a periodic timer for id, replacing any existing one.
func (ts *timerSet) arm(id enode.ID, period time.Duration, fire func(enode.ID)) {
	ts.cancel(id)
	pt := &peerTimer{
		ticker: ts.clock.Ticker(period),
		stop:   make(chan struct{}),
	}
	ts.timers[id] = pt
	go func() {
		defer pt.ticker.Stop()
		for {
			select {
			case <-pt.ticker.C:
				fire(id)
			case <-pt.stop:
				return
			}
		}
	}()
}

// cancel removes the timer for id, if any.
func (ts *timerSet) cancel(id enode.ID) {
	if pt, ok := ts.timers[id]; ok {
		close(pt.stop)
		delete(ts.timers, id)
	}
}

// contains reports whether a timer is armed for id.
func (ts *timerSet) contains(id enode.ID) bool {
	_, ok := ts.timers[id]
	return ok
}

// cancelAll removes every timer.
func (ts *timerSet) cancelAll() {
	for id, pt := range ts.timers {
		close(pt.stop)
		delete(ts.timers, id)
	}
}

func (ts *timerSet) len() int {
	return len(ts.timers)
}
