// Package enr holds the node record type exchanged by the discovery
// protocol. Records are signed key/value pairs describing how to reach a
// node. Encoding, decoding and signature verification are performed by the
// wire codec in the session layer; a Record held by this package is assumed
// to have passed verification there.
package enr

import (
	"net"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ChainSafe/libp2p-discv5/enode"
)

// SizeLimit is the maximum encoded size of a node record in bytes.
const SizeLimit = 300

// Record represents a node record. The zero value is not a valid record;
// use New or FromPubkey.
type Record struct {
	id        enode.ID
	seq       uint64
	ip        net.IP
	udp       uint16
	signature []byte
}

// New creates a record with the given node id and sequence number.
func New(id enode.ID, seq uint64) *Record {
	return &Record{id: id, seq: seq}
}

// FromPubkey creates a record whose node id is derived from the given
// secp256k1 public key.
func FromPubkey(key *secp256k1.PublicKey, seq uint64) *Record {
	return New(enode.PubkeyID(key), seq)
}

// NodeID returns the record's node identifier.
func (r *Record) NodeID() enode.ID {
	return r.id
}

// Seq returns the sequence number.
func (r *Record) Seq() uint64 {
	return r.seq
}

// SetSeq updates the record's sequence number. This invalidates any
// signature carried by the record.
func (r *Record) SetSeq(s uint64) {
	r.signature = nil
	r.seq = s
}

// IP returns the advertised IP address, or nil if the record has no
// endpoint.
func (r *Record) IP() net.IP {
	return r.ip
}

// UDP returns the advertised UDP port.
func (r *Record) UDP() int {
	return int(r.udp)
}

// SetUDPEndpoint sets the advertised UDP endpoint.
func (r *Record) SetUDPEndpoint(ip net.IP, port int) {
	r.signature = nil
	r.ip = ip
	r.udp = uint16(port)
}

// UDPAddr returns the advertised UDP endpoint, or nil if the record does
// not carry one.
func (r *Record) UDPAddr() *net.UDPAddr {
	if r.ip == nil || r.udp == 0 {
		return nil
	}
	return &net.UDPAddr{IP: r.ip, Port: int(r.udp)}
}

// Signature returns the record's signature bytes.
func (r *Record) Signature() []byte {
	return r.signature
}

// SetSignature attaches the signature produced by the identity scheme. The
// codec verifies it; the record itself treats it as opaque.
func (r *Record) SetSignature(sig []byte) {
	r.signature = make([]byte, len(sig))
	copy(r.signature, sig)
}

// Copy returns an independent copy of the record.
func (r *Record) Copy() *Record {
	cpy := *r
	if r.signature != nil {
		cpy.signature = make([]byte, len(r.signature))
		copy(cpy.signature, r.signature)
	}
	return &cpy
}

func (r *Record) String() string {
	return "enr:" + r.id.TerminalString()
}
