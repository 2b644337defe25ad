package transaction_test

import (
	"sync"
	"time"

	"github.com/oornnery/sipgox/transport"
)

// fakeTransport is an in-memory Transport for transaction tests,
// grounded on the style of the teacher's fakes/udp_conn.go loopback
// fake: Send appends to a slice the test can inspect, Recv is driven by
// pushing onto inbound.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound chan transport.Frame
	network string
	closed  bool
}

func newFakeTransport(network string) *fakeTransport {
	return &fakeTransport{inbound: make(chan transport.Frame, 32), network: network}
}

func (f *fakeTransport) Send(peer string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Recv(timeout time.Duration) (transport.Frame, error) {
	if timeout <= 0 {
		fr, ok := <-f.inbound
		if !ok {
			return transport.Frame{}, transport.ErrClosed
		}
		return fr, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case fr, ok := <-f.inbound:
		if !ok {
			return transport.Frame{}, transport.ErrClosed
		}
		return fr, nil
	case <-timer.C:
		return transport.Frame{}, transport.ErrClosed
	}
}

func (f *fakeTransport) LocalAddress() string { return "127.0.0.1:5060" }
func (f *fakeTransport) Network() string      { return f.network }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) push(data []byte, peer string) {
	f.inbound <- transport.Frame{Data: data, Peer: peer}
}
