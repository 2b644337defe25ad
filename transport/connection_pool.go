package transport

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pooledConn is a reference-counted TCP connection with its own
// unparsed-bytes buffer for stream reassembly, grounded on the
// teacher's transport.conn/ConnectionPool pairing.
type pooledConn struct {
	net.Conn
	mu       sync.Mutex
	refcount int
	buf      []byte
}

func (c *pooledConn) ref(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refcount += delta
	return c.refcount
}

// connectionPool keeps dialed TCP connections keyed by remote address,
// reaping idle (refcount <= 0) entries periodically.
type connectionPool struct {
	mu    sync.Mutex
	conns map[string]*pooledConn
	log   zerolog.Logger
}

func newConnectionPool(logger zerolog.Logger) *connectionPool {
	return &connectionPool{conns: map[string]*pooledConn{}, log: logger}
}

func (p *connectionPool) get(addr string) *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[addr]
}

func (p *connectionPool) add(addr string, c *pooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[addr] = c
}

func (p *connectionPool) remove(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, addr)
}

func (p *connectionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, c := range p.conns {
		c.Close()
		delete(p.conns, addr)
	}
}

// reapIdle closes and drops connections with no active references. It
// is invoked on a timer by TCPTransport, mirroring the teacher's
// IdleConnection reap cadence.
func (p *connectionPool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, c := range p.conns {
		if c.ref(0) <= 0 {
			c.Close()
			delete(p.conns, addr)
		}
	}
}

// idleReapInterval matches the teacher's connection pool cadence closely
// enough for a UAC that holds at most a handful of registrar/proxy
// connections at a time.
const idleReapInterval = 30 * time.Second
