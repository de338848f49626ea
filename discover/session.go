package discover

import (
	"net"

	"github.com/ChainSafe/libp2p-discv5/discover/v5wire"
	"github.com/ChainSafe/libp2p-discv5/enode"
	"github.com/ChainSafe/libp2p-discv5/enr"
)

// SessionService is the session/encryption layer consumed by the service.
// It owns the UDP transport, the handshake and the wire codec. Decrypted
// messages and session lifecycle changes arrive on the Events channel.
type SessionService interface {
	Start() error
	Stop() error

	// Events delivers session events in receive order. The channel is
	// closed when the session service shuts down.
	Events() <-chan SessionEvent

	// SendRequest sends a request to a node with an established or
	// pending session. It may fail synchronously.
	SendRequest(dest *enr.Record, req v5wire.Packet) error

	// SendResponse answers a request from the given endpoint.
	SendResponse(dst *net.UDPAddr, dstID enode.ID, resp v5wire.Packet) error

	// SendRequestUnknownENR sends a request to an endpoint whose record
	// is not yet known, typically to fetch that record.
	SendRequestUnknownENR(dst *net.UDPAddr, dstID enode.ID, req v5wire.Packet) error

	// SendWhoAreYou answers a WHOAREYOU trigger with the best known
	// record of the sender. record may be nil when enrSeq is zero.
	SendWhoAreYou(dst *net.UDPAddr, dstID enode.ID, enrSeq uint64, record *enr.Record, authTag v5wire.Nonce) error

	// UpdateRecord informs the session layer of a newly observed record,
	// possibly refreshing a live session.
	UpdateRecord(record *enr.Record)

	// LocalRecord returns our own signed record.
	LocalRecord() *enr.Record
	SetLocalRecord(record *enr.Record)
}

// SessionEvent is one of SessionEstablished, SessionMessage,
// WhoAreYouRequest or RequestFailed.
type SessionEvent interface {
	sessionEvent()
}

type (
	// SessionEstablished signals a completed handshake with a peer.
	SessionEstablished struct {
		Record *enr.Record
	}

	// SessionMessage carries a decrypted protocol message.
	SessionMessage struct {
		SrcID   enode.ID
		Src     *net.UDPAddr
		Message v5wire.Packet
	}

	// WhoAreYouRequest asks for the best known record of a peer that
	// triggered a WHOAREYOU challenge.
	WhoAreYouRequest struct {
		SrcID   enode.ID
		Src     *net.UDPAddr
		AuthTag v5wire.Nonce
	}

	// RequestFailed signals that a sent request timed out or its session
	// was torn down before a response arrived.
	RequestFailed struct {
		SrcID enode.ID
		ReqID uint64
	}
)

func (SessionEstablished) sessionEvent() {}
func (SessionMessage) sessionEvent()     {}
func (WhoAreYouRequest) sessionEvent()   {}
func (RequestFailed) sessionEvent()      {}
