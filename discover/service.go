package discover

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ChainSafe/libp2p-discv5/discover/v5wire"
	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

// Service is the discovery node's protocol brain. A single dispatch
// goroutine owns the routing table, the request registry, all live lookups
// and the connected-peer set; session events and public API calls are
// funneled into it and handlers run to completion before the next event.
type Service struct {
	cfg     Config
	sess    SessionService
	tab     *Table
	localID enode.ID
	log     *zap.SugaredLogger
	clock   clock.Clock

	commandCh chan func()

	// State below is owned by the dispatch goroutine.
	activeRequests map[uint64]*activeRequest
	lookups        map[uint32]*lookup
	lookupWaiters  map[uint32]chan []*enr.Record
	nextLookupID   uint32
	connected      *timerSet
	votes          *ipVotes

	trlock     sync.Mutex
	trhandlers map[string]func([]byte) []byte

	sublock        sync.Mutex
	enrAddedSubs   []chan EnrAdded
	discoveredSubs []chan *enr.Record
	talkSubs       []chan TalkRequestEvent

	startOnce      sync.Once
	closeOnce      sync.Once
	closeCtx       context.Context
	cancelCloseCtx context.CancelFunc
	wg             sync.WaitGroup
}

// activeRequest tracks one outbound request awaiting its response or
// failure signal.
type activeRequest struct {
	destID   enode.ID
	msg      v5wire.Packet
	lookupID uint32 // 0 when the request is not part of a lookup
	victim   bool   // set on eviction probe pings
	partial  *partialNodes
}

// partialNodes accumulates a multi-packet NODES response.
type partialNodes struct {
	total   int
	count   int
	records []*enr.Record
}

// EnrAdded is emitted when a record enters the routing table. Evicted is
// set when the insertion replaced a dead entry.
type EnrAdded struct {
	Inserted *enr.Record
	Evicted  *enr.Record
}

// TalkRequestEvent is emitted for incoming TALKREQ messages.
type TalkRequestEvent struct {
	SrcID    enode.ID
	Src      *net.UDPAddr
	Protocol string
	Message  []byte
}

// NewService creates the service on top of the given session layer. Call
// Start to begin processing.
func NewService(sess SessionService, cfg Config) *Service {
	cfg = cfg.withDefaults()
	closeCtx, cancelCloseCtx := context.WithCancel(context.Background())
	s := &Service{
		cfg:            cfg,
		sess:           sess,
		localID:        sess.LocalRecord().NodeID(),
		log:            cfg.Log,
		clock:          cfg.Clock,
		commandCh:      make(chan func()),
		activeRequests: make(map[uint64]*activeRequest),
		lookups:        make(map[uint32]*lookup),
		lookupWaiters:  make(map[uint32]chan []*enr.Record),
		nextLookupID:   1,
		trhandlers:     make(map[string]func([]byte) []byte),
		closeCtx:       closeCtx,
		cancelCloseCtx: cancelCloseCtx,
	}
	s.tab = newTable(s.localID, cfg.Log)
	s.tab.pendingEvictionHook = s.challengeVictim
	s.tab.appliedEvictionHook = s.evictionApplied
	s.connected = newTimerSet(cfg.Clock)
	s.votes = newIPVotes(cfg.IPVoteTimeout)
	return s
}

// Start starts the session service and the dispatch goroutine, then seeds
// the table with the configured bootstrap nodes.
func (s *Service) Start() error {
	var err error
	s.startOnce.Do(func() {
		if err = s.sess.Start(); err != nil {
			return
		}
		s.wg.Add(1)
		go s.dispatch()
		for _, r := range s.cfg.Bootnodes {
			s.AddRecord(r)
		}
	})
	return err
}

// Stop shuts the service down. Live lookups resolve with the records found
// so far, all timers are cancelled and the session service is stopped.
// Stop is idempotent.
func (s *Service) Stop() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancelCloseCtx()
		s.wg.Wait()
		err = s.sess.Stop()
	})
	return err
}

// LocalRecord returns our own record.
func (s *Service) LocalRecord() *enr.Record {
	return s.sess.LocalRecord()
}

// FindNode performs an iterative lookup toward target and returns the
// closest known records when the walk goes quiescent. It never fails;
// unreachable peers simply narrow the result set.
func (s *Service) FindNode(target enode.ID) []*enr.Record {
	resultCh := make(chan []*enr.Record, 1)
	if !s.enqueue(func() { s.startLookup(target, resultCh) }) {
		return nil
	}
	select {
	case records := <-resultCh:
		return records
	case <-s.closeCtx.Done():
		select {
		case records := <-resultCh:
			return records
		default:
			return nil
		}
	}
}

// AddRecord offers a record to the routing table.
func (s *Service) AddRecord(r *enr.Record) {
	s.enqueue(func() { s.addRecord(r) })
}

// Records returns all records currently held in the routing table.
func (s *Service) Records() []*enr.Record {
	reply := make(chan []*enr.Record, 1)
	if !s.enqueue(func() { reply <- s.tab.values() }) {
		return nil
	}
	select {
	case records := <-reply:
		return records
	case <-s.closeCtx.Done():
		return nil
	}
}

// RegisterTalkHandler adds a handler for incoming TALKREQ messages with
// the given protocol identifier.
func (s *Service) RegisterTalkHandler(protocol string, handler func([]byte) []byte) {
	s.trlock.Lock()
	defer s.trlock.Unlock()
	s.trhandlers[protocol] = handler
}

// SubscribeEnrAdded registers a channel receiving table insertions. The
// returned function removes the subscription. Events are dropped if the
// channel is full.
func (s *Service) SubscribeEnrAdded(ch chan EnrAdded) func() {
	s.sublock.Lock()
	s.enrAddedSubs = append(s.enrAddedSubs, ch)
	s.sublock.Unlock()
	return func() {
		s.sublock.Lock()
		defer s.sublock.Unlock()
		s.enrAddedSubs = removeSub(s.enrAddedSubs, ch)
	}
}

// SubscribeDiscovered registers a channel receiving every record learned
// from NODES responses.
func (s *Service) SubscribeDiscovered(ch chan *enr.Record) func() {
	s.sublock.Lock()
	s.discoveredSubs = append(s.discoveredSubs, ch)
	s.sublock.Unlock()
	return func() {
		s.sublock.Lock()
		defer s.sublock.Unlock()
		s.discoveredSubs = removeSub(s.discoveredSubs, ch)
	}
}

// SubscribeTalkRequest registers a channel receiving incoming TALKREQ
// events.
func (s *Service) SubscribeTalkRequest(ch chan TalkRequestEvent) func() {
	s.sublock.Lock()
	s.talkSubs = append(s.talkSubs, ch)
	s.sublock.Unlock()
	return func() {
		s.sublock.Lock()
		defer s.sublock.Unlock()
		s.talkSubs = removeSub(s.talkSubs, ch)
	}
}

func removeSub[T comparable](subs []T, ch T) []T {
	for i := range subs {
		if subs[i] == ch {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// enqueue hands fn to the dispatch goroutine. It returns false when the
// service is shut down. Must not be called from dispatch itself.
func (s *Service) enqueue(fn func()) bool {
	select {
	case s.commandCh <- fn:
		return true
	case <-s.closeCtx.Done():
		return false
	}
}

// dispatch is the reactor loop. All core state is touched only here.
func (s *Service) dispatch() {
	defer s.wg.Done()

	events := s.sess.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleSessionEvent(ev)

		case cmd := <-s.commandCh:
			cmd()

		case <-s.closeCtx.Done():
			s.shutdown()
			return
		}
	}
}

func (s *Service) shutdown() {
	for id, l := range s.lookups {
		if ch := s.lookupWaiters[id]; ch != nil {
			ch <- s.resolveRecords(l, l.result())
		}
	}
	s.lookups = make(map[uint32]*lookup)
	s.lookupWaiters = make(map[uint32]chan []*enr.Record)
	s.activeRequests = make(map[uint64]*activeRequest)
	s.connected.cancelAll()
}

func (s *Service) handleSessionEvent(ev SessionEvent) {
	switch ev := ev.(type) {
	case SessionEstablished:
		s.onEstablished(ev.Record)
	case SessionMessage:
		s.handleMessage(ev.SrcID, ev.Src, ev.Message)
	case WhoAreYouRequest:
		s.onWhoAreYouRequest(ev)
	case RequestFailed:
		s.onRequestFailed(ev.SrcID, ev.ReqID)
	}
}

// onEstablished marks the peer connected, starts its keep-alive ping
// interval and sends the initial ping.
func (s *Service) onEstablished(record *enr.Record) {
	id := record.NodeID()
	if id == s.localID {
		return
	}
	if s.tab.getWithPending(id) != nil {
		s.tab.update(record, StatusConnected)
	} else if s.tab.add(record, StatusConnected) {
		s.notifyEnrAdded(record, nil)
	}
	s.sendPing(record)
	s.connected.arm(id, s.cfg.PingInterval, s.pingFired)
}

// pingFired runs on a timer goroutine.
func (s *Service) pingFired(id enode.ID) {
	s.enqueue(func() { s.keepAlivePing(id) })
}

func (s *Service) keepAlivePing(id enode.ID) {
	if !s.connected.contains(id) {
		return
	}
	r := s.findRecord(id)
	if r == nil {
		s.connected.cancel(id)
		return
	}
	s.sendPing(r)
}

func (s *Service) handleMessage(srcID enode.ID, src *net.UDPAddr, msg v5wire.Packet) {
	messagesReceived.WithLabelValues(msg.Name()).Inc()
	s.log.Debugw("<< "+msg.Name(), "id", srcID.TerminalString(), "addr", src.String())

	switch m := msg.(type) {
	case *v5wire.Ping:
		s.handlePing(srcID, src, m)
	case *v5wire.Findnode:
		s.handleFindnode(srcID, src, m)
	case *v5wire.TalkRequest:
		s.handleTalkRequest(srcID, src, m)
	case *v5wire.Pong:
		if req := s.matchResponse(srcID, src, msg); req != nil {
			s.handlePong(srcID, req, m)
		}
	case *v5wire.Nodes:
		if req := s.matchResponse(srcID, src, msg); req != nil {
			s.handleNodes(srcID, req, m)
		}
	case *v5wire.TalkResponse:
		if req := s.matchResponse(srcID, src, msg); req != nil {
			delete(s.activeRequests, m.ReqID)
		}
	default:
		s.log.Debugw("Unexpected message", "msg", msg.Name(), "id", srcID.TerminalString())
	}
}

// matchResponse pairs a response with its outstanding request. A response
// is accepted only if the request id is registered to the sender and the
// request and response kinds agree; a kind mismatch clears the entry.
func (s *Service) matchResponse(srcID enode.ID, src *net.UDPAddr, msg v5wire.Packet) *activeRequest {
	id := msg.RequestID()
	req, ok := s.activeRequests[id]
	if !ok {
		s.log.Debugw("Unsolicited/late response", "msg", msg.Name(), "reqid", id, "id", srcID.TerminalString(), "addr", src.String())
		return nil
	}
	if req.destID != srcID {
		s.log.Debugw("Response from wrong node", "msg", msg.Name(), "reqid", id, "id", srcID.TerminalString())
		return nil
	}
	if want, _ := v5wire.ResponseKind(req.msg.Kind()); msg.Kind() != want {
		s.log.Debugw("Response type mismatch", "msg", msg.Name(), "req", req.msg.Name(), "id", srcID.TerminalString())
		delete(s.activeRequests, id)
		return nil
	}
	return req
}

// handlePing answers with our endpoint observation of the caller and
// fetches the caller's record if the announced seq is ahead of ours.
func (s *Service) handlePing(srcID enode.ID, src *net.UDPAddr, m *v5wire.Ping) {
	known := s.findRecord(srcID)
	if known == nil || known.Seq() < m.ENRSeq {
		s.sendRequestUnknownENR(src, srcID, &v5wire.Findnode{Distance: 0})
	}
	pong := &v5wire.Pong{
		ReqID:  m.ReqID,
		ENRSeq: s.sess.LocalRecord().Seq(),
		ToIP:   src.IP,
		ToPort: uint16(src.Port),
	}
	if err := s.sess.SendResponse(src, srcID, pong); err != nil {
		s.log.Debugw("Failed to send PONG", "id", srcID.TerminalString(), "err", err)
	}
}

// handlePong records the peer's view of our endpoint, refreshes its record
// if outdated and marks it connected.
func (s *Service) handlePong(srcID enode.ID, req *activeRequest, m *v5wire.Pong) {
	delete(s.activeRequests, m.ReqID)
	s.votes.insert(srcID, &net.UDPAddr{IP: m.ToIP, Port: int(m.ToPort)})
	if known := s.tab.getValue(srcID); known != nil && known.Seq() < m.ENRSeq {
		s.sendFindnode(known, 0, 0)
	}
	if req.victim {
		s.tab.resolvePending(srcID, true)
	}
	s.tab.updateStatus(srcID, StatusConnected)
}

// handleFindnode serves records of the requested distance shell, split
// into NODES packets of nodesPerPacket records each. Distance zero asks
// for our own record.
func (s *Service) handleFindnode(srcID enode.ID, src *net.UDPAddr, m *v5wire.Findnode) {
	var records []*enr.Record
	if m.Distance == 0 {
		records = []*enr.Record{s.sess.LocalRecord()}
	} else {
		records = s.tab.valuesOfDistance(m.Distance)
	}
	for _, resp := range packNodes(m.ReqID, records) {
		if err := s.sess.SendResponse(src, srcID, resp); err != nil {
			s.log.Debugw("Failed to send NODES", "id", srcID.TerminalString(), "err", err)
		}
	}
}

// packNodes splits records into NODES packets sharing the same request id
// and total. An empty set still produces one packet.
func packNodes(reqid uint64, records []*enr.Record) []*v5wire.Nodes {
	if len(records) == 0 {
		return []*v5wire.Nodes{{ReqID: reqid, Total: 1}}
	}
	total := uint8((len(records) + nodesPerPacket - 1) / nodesPerPacket)
	var resp []*v5wire.Nodes
	for len(records) > 0 {
		p := &v5wire.Nodes{ReqID: reqid, Total: total}
		items := min(nodesPerPacket, len(records))
		p.Nodes = append(p.Nodes, records[:items]...)
		records = records[items:]
		resp = append(resp, p)
	}
	return resp
}

// handleNodes filters a NODES packet against the requested distance and
// reassembles multi-packet responses before handing the record set to
// discovered. At most maxNodesResponses packets are accepted per request.
func (s *Service) handleNodes(srcID enode.ID, req *activeRequest, m *v5wire.Nodes) {
	fn := req.msg.(*v5wire.Findnode)
	filtered := s.filterNodes(srcID, fn.Distance, m.Nodes)

	total := int(m.Total)
	if total < 1 {
		total = 1
	}
	if total > 1 {
		if req.partial == nil {
			req.partial = &partialNodes{total: total, count: 1, records: filtered}
		} else {
			req.partial.count++
			req.partial.records = append(req.partial.records, filtered...)
		}
		if req.partial.count < min(req.partial.total, maxNodesResponses) {
			// Keep the request armed and wait for the remaining packets.
			return
		}
		filtered = req.partial.records
	}
	delete(s.activeRequests, m.ReqID)
	s.discovered(srcID, filtered, req.lookupID)
}

// filterNodes drops records outside the requested distance shell. For a
// distance-zero request only the sender's own record is expected.
func (s *Service) filterNodes(srcID enode.ID, distance uint, records []*enr.Record) []*enr.Record {
	filtered := make([]*enr.Record, 0, len(records))
	for _, r := range records {
		var d uint
		if distance == 0 {
			d = uint(enode.LogDist(r.NodeID(), srcID))
		} else {
			d = uint(enode.LogDist(r.NodeID(), s.localID))
		}
		if d != distance {
			s.log.Debugw("Dropping ENR outside requested distance", "id", r.NodeID().TerminalString(), "got", d, "want", distance)
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// discovered processes a finalized record set: application notification,
// table and session refresh, and lookup feeding.
func (s *Service) discovered(srcID enode.ID, records []*enr.Record, lookupID uint32) {
	l := s.lookups[lookupID]
	var ids []enode.ID
	for _, r := range records {
		id := r.NodeID()
		if id == s.localID {
			continue
		}
		s.notifyDiscovered(r)
		if known := s.tab.getValue(id); known != nil {
			if known.Seq() < r.Seq() {
				s.tab.updateValue(r)
				s.sess.UpdateRecord(r)
			}
		} else {
			// Not in the table yet. The session layer learns the record
			// now; the table follows once a session is established.
			s.sess.UpdateRecord(r)
		}
		if l != nil {
			l.addUntrusted(r)
		}
		ids = append(ids, id)
	}
	if l != nil {
		l.onSuccess(srcID, ids)
		s.advanceLookup(l)
	}
}

// onWhoAreYouRequest hands the best known record of the challenged peer
// back to the session layer.
func (s *Service) onWhoAreYouRequest(ev WhoAreYouRequest) {
	var err error
	if r := s.findRecord(ev.SrcID); r != nil {
		err = s.sess.SendWhoAreYou(ev.Src, ev.SrcID, r.Seq(), r, ev.AuthTag)
	} else {
		err = s.sess.SendWhoAreYou(ev.Src, ev.SrcID, 0, nil, ev.AuthTag)
	}
	if err != nil {
		s.log.Debugw("Failed to send WHOAREYOU", "id", ev.SrcID.TerminalString(), "err", err)
	}
}

// onRequestFailed clears the request, salvages partial NODES data, informs
// the owning lookup and drops the peer from the connected set.
func (s *Service) onRequestFailed(srcID enode.ID, reqID uint64) {
	if req, ok := s.activeRequests[reqID]; ok && req.destID == srcID {
		delete(s.activeRequests, reqID)
		if req.partial != nil && len(req.partial.records) > 0 {
			// Keep what arrived before the failure.
			s.discovered(srcID, req.partial.records, req.lookupID)
		} else if l := s.lookups[req.lookupID]; l != nil {
			l.onFailure(srcID)
			s.advanceLookup(l)
		}
		if req.victim {
			s.tab.resolvePending(srcID, false)
		}
	}
	s.tab.updateStatus(srcID, StatusDisconnected)
	s.connected.cancel(srcID)
}

func (s *Service) handleTalkRequest(srcID enode.ID, src *net.UDPAddr, m *v5wire.TalkRequest) {
	s.trlock.Lock()
	handler := s.trhandlers[m.Protocol]
	s.trlock.Unlock()

	var response []byte
	if handler != nil {
		response = handler(m.Message)
	}
	resp := &v5wire.TalkResponse{ReqID: m.ReqID, Message: response}
	if err := s.sess.SendResponse(src, srcID, resp); err != nil {
		s.log.Debugw("Failed to send TALKRESP", "id", srcID.TerminalString(), "err", err)
	}
	s.notifyTalkRequest(TalkRequestEvent{SrcID: srcID, Src: src, Protocol: m.Protocol, Message: m.Message})
}

// addRecord implements addEnr: update in place when known, insert as
// disconnected otherwise.
func (s *Service) addRecord(r *enr.Record) {
	if r.NodeID() == s.localID {
		return
	}
	if stored := s.tab.getWithPending(r.NodeID()); stored != nil {
		if stored.record.Seq() < r.Seq() {
			s.tab.updateValue(r)
		}
		return
	}
	if s.tab.add(r, StatusDisconnected) {
		s.notifyEnrAdded(r, nil)
	}
}

// startLookup creates a lookup seeded from the routing table and begins
// probing. Lookup ids start at 1 and wrap around 2^32 back to 1.
func (s *Service) startLookup(target enode.ID, resultCh chan []*enr.Record) {
	id := s.nextLookupID
	for {
		s.nextLookupID++
		if s.nextLookupID == 0 {
			s.nextLookupID = 1
		}
		if _, live := s.lookups[s.nextLookupID]; !live {
			break
		}
	}
	seeds := s.tab.nearest(target, s.cfg.NumResults)
	seedIDs := make([]enode.ID, len(seeds))
	for i, r := range seeds {
		seedIDs[i] = r.NodeID()
	}
	l := newLookup(id, target, s.cfg.Parallelism, s.cfg.NumResults, seedIDs)
	s.lookups[id] = l
	s.lookupWaiters[id] = resultCh
	lookupsStarted.Inc()
	s.log.Debugw("Lookup started", "lookup", id, "target", target.TerminalString(), "seeds", len(seedIDs))
	s.advanceLookup(l)
}

// advanceLookup sends probes for the lookup until the parallelism slots
// are full or no candidate remains, then finalizes a quiescent lookup.
func (s *Service) advanceLookup(l *lookup) {
	if _, live := s.lookups[l.id]; !live {
		return
	}
	for {
		probes := l.peersToProbe()
		if len(probes) == 0 {
			break
		}
		for _, id := range probes {
			s.probePeer(l, id)
		}
	}
	if l.isFinished() {
		s.finishLookup(l)
	}
}

func (s *Service) probePeer(l *lookup, id enode.ID) {
	d := enode.LogDist(l.target, id)
	if d == 0 {
		// The peer is the target itself; there is no shell to ask for.
		l.onFailure(id)
		return
	}
	r := s.findRecord(id)
	if r == nil {
		l.onFailure(id)
		return
	}
	if !s.sendFindnode(r, uint(d), l.id) {
		l.onFailure(id)
	}
}

// finishLookup resolves the result ids to records and wakes the waiter.
func (s *Service) finishLookup(l *lookup) {
	ch := s.lookupWaiters[l.id]
	delete(s.lookups, l.id)
	delete(s.lookupWaiters, l.id)
	records := s.resolveRecords(l, l.result())
	s.log.Debugw("Lookup finished", "lookup", l.id, "results", len(records))
	if ch != nil {
		ch <- records
	}
}

// resolveRecords maps node ids to records: routing table first, then the
// untrusted buffers of the finishing and any other live lookup. Ids that
// stay unresolvable are dropped.
func (s *Service) resolveRecords(l *lookup, ids []enode.ID) []*enr.Record {
	records := make([]*enr.Record, 0, len(ids))
	for _, id := range ids {
		if r := s.findRecordIn(l, id); r != nil {
			records = append(records, r)
		}
	}
	return records
}

// findRecord returns the best known record for id, consulting the routing
// table (including pending slots) and every live lookup's untrusted
// buffer.
func (s *Service) findRecord(id enode.ID) *enr.Record {
	return s.findRecordIn(nil, id)
}

func (s *Service) findRecordIn(extra *lookup, id enode.ID) *enr.Record {
	if n := s.tab.getWithPending(id); n != nil {
		return n.record
	}
	if extra != nil {
		if r := extra.untrustedRecord(id); r != nil {
			return r
		}
	}
	for _, l := range s.lookups {
		if r := l.untrustedRecord(id); r != nil {
			return r
		}
	}
	return nil
}

// challengeVictim is the table's pendingEviction hook: probe the
// least-recently-seen occupant of a full bucket.
func (s *Service) challengeVictim(victim *enr.Record) {
	ping := &v5wire.Ping{ENRSeq: s.sess.LocalRecord().Seq()}
	if !s.sendRequest(victim, ping, 0, true) {
		s.tab.resolvePending(victim.NodeID(), false)
	}
}

// evictionApplied is the table's appliedEviction hook.
func (s *Service) evictionApplied(inserted, evicted *enr.Record) {
	evictionsApplied.Inc()
	s.notifyEnrAdded(inserted, evicted)
}

func (s *Service) sendPing(dest *enr.Record) {
	s.sendRequest(dest, &v5wire.Ping{ENRSeq: s.sess.LocalRecord().Seq()}, 0, false)
}

func (s *Service) sendFindnode(dest *enr.Record, distance uint, lookupID uint32) bool {
	return s.sendRequest(dest, &v5wire.Findnode{Distance: distance}, lookupID, false)
}

// sendRequest registers and sends an outbound request. On synchronous
// send failure nothing is registered and false is returned; the caller
// recovers through its own failure path.
func (s *Service) sendRequest(dest *enr.Record, msg v5wire.Packet, lookupID uint32, victim bool) bool {
	reqID := s.newRequestID()
	msg.SetRequestID(reqID)
	if err := s.sess.SendRequest(dest, msg); err != nil {
		s.log.Debugw("Failed to send "+msg.Name(), "id", dest.NodeID().TerminalString(), "err", err)
		return false
	}
	s.activeRequests[reqID] = &activeRequest{destID: dest.NodeID(), msg: msg, lookupID: lookupID, victim: victim}
	requestsSent.WithLabelValues(msg.Name()).Inc()
	return true
}

// sendRequestUnknownENR sends a request to an endpoint we have no record
// for, typically a distance-zero FINDNODE fetching that record.
func (s *Service) sendRequestUnknownENR(dst *net.UDPAddr, dstID enode.ID, msg v5wire.Packet) bool {
	reqID := s.newRequestID()
	msg.SetRequestID(reqID)
	if err := s.sess.SendRequestUnknownENR(dst, dstID, msg); err != nil {
		s.log.Debugw("Failed to send "+msg.Name(), "id", dstID.TerminalString(), "err", err)
		return false
	}
	s.activeRequests[reqID] = &activeRequest{destID: dstID, msg: msg}
	requestsSent.WithLabelValues(msg.Name()).Inc()
	return true
}

// newRequestID draws a random unused non-zero request id.
func (s *Service) newRequestID() uint64 {
	for {
		var b [8]byte
		crand.Read(b[:])
		id := binary.BigEndian.Uint64(b[:])
		if id == 0 {
			continue
		}
		if _, ok := s.activeRequests[id]; ok {
			continue
		}
		return id
	}
}

func (s *Service) notifyEnrAdded(inserted, evicted *enr.Record) {
	s.sublock.Lock()
	defer s.sublock.Unlock()
	for _, ch := range s.enrAddedSubs {
		select {
		case ch <- EnrAdded{Inserted: inserted, Evicted: evicted}:
		default:
		}
	}
}

func (s *Service) notifyDiscovered(r *enr.Record) {
	s.sublock.Lock()
	defer s.sublock.Unlock()
	for _, ch := range s.discoveredSubs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (s *Service) notifyTalkRequest(ev TalkRequestEvent) {
	s.sublock.Lock()
	defer s.sublock.Unlock()
	for _, ch := range s.talkSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}
