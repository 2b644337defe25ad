package sipgox_test

import (
	"strings"
	"sync"
	"time"

	"github.com/oornnery/sipgox/sip"
	"github.com/oornnery/sipgox/transport"
)

// scriptedTransport is an in-memory Transport driving the facade's
// client_test.go scenarios, grounded on the same loopback-fake idiom as
// transaction/fake_transport_test.go: Send is intercepted by a
// responder function that can push zero or more responses back onto
// the inbound channel, synchronously or after a delay, simulating a
// remote UAS/registrar/proxy without any real socket.
type scriptedTransport struct {
	mu        sync.Mutex
	network   string
	local     string
	inbound   chan transport.Frame
	closed    bool
	sentRaw   [][]byte
	responder func(req *sip.Request) []scriptedResponse
}

// scriptedResponse is one response the fake will deliver after `after`
// elapses (0 means "at once, synchronously from inside Send").
type scriptedResponse struct {
	res   *sip.Response
	after time.Duration
}

func newScriptedTransport(network string) *scriptedTransport {
	return &scriptedTransport{
		network: network,
		local:   "127.0.0.1:5060",
		inbound: make(chan transport.Frame, 32),
	}
}

func (f *scriptedTransport) Send(peer string, data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	f.sentRaw = append(f.sentRaw, append([]byte(nil), data...))
	responder := f.responder
	f.mu.Unlock()

	if responder == nil {
		return nil
	}
	req, _, err := sip.Parse(data, true)
	if err != nil || req == nil {
		return nil
	}
	for _, sr := range responder(req) {
		sr := sr
		if sr.after <= 0 {
			f.deliver(sr.res)
			continue
		}
		time.AfterFunc(sr.after, func() { f.deliver(sr.res) })
	}
	return nil
}

func (f *scriptedTransport) deliver(res *sip.Response) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	select {
	case f.inbound <- transport.Frame{Data: []byte(res.String()), Peer: f.local}:
	default:
	}
}

func (f *scriptedTransport) Recv(timeout time.Duration) (transport.Frame, error) {
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

func (f *scriptedTransport) LocalAddress() string { return f.local }
func (f *scriptedTransport) Network() string      { return f.network }

func (f *scriptedTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbound)
	return nil
}

func (f *scriptedTransport) setResponder(fn func(req *sip.Request) []scriptedResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = fn
}

func (f *scriptedTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sentRaw)
}

func (f *scriptedTransport) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, raw := range f.sentRaw {
		out = append(out, strings.SplitN(string(raw), " ", 2)[0])
	}
	return out
}
