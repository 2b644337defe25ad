// Package transport implements the datagram/stream transport contract
// of SPEC_FULL §4.4: UDP and TCP sockets with a common send/receive
// surface, producing inbound frames tagged with the peer address.
package transport

import (
	"errors"
	"time"
)

// Network names, matching the teacher's transport.TransportUDP/TCP
// constants.
const (
	UDP = "UDP"
	TCP = "TCP"
	TLS = "TLS"
	WS  = "WS"
)

var (
	// ErrTransportUnavailable is returned when send/recv cannot reach the
	// local socket at all (bind lost, closed, etc).
	ErrTransportUnavailable = errors.New("transport: unavailable")
	// ErrPeerUnreachable is returned when the OS reports the destination
	// as unreachable (ICMP, RST, connect failure).
	ErrPeerUnreachable = errors.New("transport: peer unreachable")
	// ErrNotImplemented is returned by the TLS/WS placeholders named in
	// SPEC_FULL §1/§4.4.
	ErrNotImplemented = errors.New("transport: not implemented")
	// ErrClosed is returned by Recv after Close.
	ErrClosed = errors.New("transport: closed")
)

// Frame is one inbound message with its peer address, as produced by
// Recv.
type Frame struct {
	Data []byte
	Peer string // "host:port"
}

// Transport is the contract shared by UDP and TCP (SPEC_FULL §4.4).
type Transport interface {
	// Send blocks until bytes are handed to the OS for delivery to peer.
	Send(peer string, data []byte) error
	// Recv returns one complete SIP message, blocking up to timeout.
	// timeout <= 0 means block indefinitely until Close.
	Recv(timeout time.Duration) (Frame, error)
	// LocalAddress returns "host:port" after bind.
	LocalAddress() string
	// Network returns UDP or TCP.
	Network() string
	// Close releases the bound port and any open streams; idempotent.
	Close() error
}
