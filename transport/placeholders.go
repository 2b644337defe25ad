package transport

import "time"

// TLSTransport and WSTransport are named per SPEC_FULL §1/§4.4 ("TLS and
// WebSocket transports are named placeholders; only UDP and TCP are
// specified") but intentionally return ErrNotImplemented: wiring real
// TLS/WS sockets is out of this core's scope.

type TLSTransport struct{}

func (TLSTransport) Send(peer string, data []byte) error           { return ErrNotImplemented }
func (TLSTransport) Recv(timeout time.Duration) (Frame, error)     { return Frame{}, ErrNotImplemented }
func (TLSTransport) LocalAddress() string                          { return "" }
func (TLSTransport) Network() string                                { return TLS }
func (TLSTransport) Close() error                                   { return nil }

type WSTransport struct{}

func (WSTransport) Send(peer string, data []byte) error           { return ErrNotImplemented }
func (WSTransport) Recv(timeout time.Duration) (Frame, error)     { return Frame{}, ErrNotImplemented }
func (WSTransport) LocalAddress() string                          { return "" }
func (WSTransport) Network() string                                { return WS }
func (WSTransport) Close() error                                   { return nil }
