// Package v5wire defines the discovery protocol message set. Serialization
// and encryption of these messages is handled by the session layer codec.
package v5wire

import (
	"net"

	"github.com/ChainSafe/libp2p-discv5/enr"
)

// Nonce identifies an encrypted session frame.
type Nonce [12]byte

// Packet is implemented by all message types.
type Packet interface {
	Name() string        // Name returns a string corresponding to the message type.
	Kind() byte          // Kind returns the message type.
	RequestID() uint64   // Returns the request ID.
	SetRequestID(uint64) // Sets the request ID.
}

// Message types.
const (
	PingMsg byte = iota + 1
	PongMsg
	FindnodeMsg
	NodesMsg
	TalkRequestMsg
	TalkResponseMsg
)

type (
	// PING is sent during liveness checks.
	Ping struct {
		ReqID  uint64
		ENRSeq uint64
	}

	// PONG is the reply to PING. It carries the caller's observed
	// external endpoint.
	Pong struct {
		ReqID  uint64
		ENRSeq uint64
		ToIP   net.IP
		ToPort uint16
	}

	// FINDNODE is a query for nodes in the given log2 distance shell.
	Findnode struct {
		ReqID    uint64
		Distance uint
	}

	// NODES is one packet of the reply to FINDNODE. Total packets
	// sharing a request id form a single response.
	Nodes struct {
		ReqID uint64
		Total uint8
		Nodes []*enr.Record
	}

	// TALKREQ is an application-level request.
	TalkRequest struct {
		ReqID    uint64
		Protocol string
		Message  []byte
	}

	// TALKRESP is the reply to TALKREQ.
	TalkResponse struct {
		ReqID   uint64
		Message []byte
	}
)

func (*Ping) Name() string             { return "PING/v5" }
func (*Ping) Kind() byte               { return PingMsg }
func (p *Ping) RequestID() uint64      { return p.ReqID }
func (p *Ping) SetRequestID(id uint64) { p.ReqID = id }

func (*Pong) Name() string             { return "PONG/v5" }
func (*Pong) Kind() byte               { return PongMsg }
func (p *Pong) RequestID() uint64      { return p.ReqID }
func (p *Pong) SetRequestID(id uint64) { p.ReqID = id }

func (*Findnode) Name() string             { return "FINDNODE/v5" }
func (*Findnode) Kind() byte               { return FindnodeMsg }
func (p *Findnode) RequestID() uint64      { return p.ReqID }
func (p *Findnode) SetRequestID(id uint64) { p.ReqID = id }

func (*Nodes) Name() string             { return "NODES/v5" }
func (*Nodes) Kind() byte               { return NodesMsg }
func (p *Nodes) RequestID() uint64      { return p.ReqID }
func (p *Nodes) SetRequestID(id uint64) { p.ReqID = id }

func (*TalkRequest) Name() string             { return "TALKREQ/v5" }
func (*TalkRequest) Kind() byte               { return TalkRequestMsg }
func (p *TalkRequest) RequestID() uint64      { return p.ReqID }
func (p *TalkRequest) SetRequestID(id uint64) { p.ReqID = id }

func (*TalkResponse) Name() string             { return "TALKRESP/v5" }
func (*TalkResponse) Kind() byte               { return TalkResponseMsg }
func (p *TalkResponse) RequestID() uint64      { return p.ReqID }
func (p *TalkResponse) SetRequestID(id uint64) { p.ReqID = id }

// ResponseKind returns the message type answering a request of the given
// type, and whether the type expects a response at all.
func ResponseKind(requestKind byte) (byte, bool) {
	switch requestKind {
	case PingMsg:
		return PongMsg, true
	case FindnodeMsg:
		return NodesMsg, true
	case TalkRequestMsg:
		return TalkResponseMsg, true
	default:
		return 0, false
	}
}
