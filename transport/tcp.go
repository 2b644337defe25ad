package transport

import (
	"bytes"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// TCPTransport dials and reuses byte-ordered connections keyed by
// remote address (SPEC_FULL §4.4). It does not accept inbound
// connections — the receive-side server is out of scope (SPEC_FULL §1)
// — so LocalAddress reflects the most recently dialed connection.
type TCPTransport struct {
	log      zerolog.Logger
	pool     *connectionPool
	inbound  chan Frame
	done     chan struct{}
	lastAddr string
}

func NewTCPTransport(logger zerolog.Logger) *TCPTransport {
	t := &TCPTransport{
		log:     logger.With().Str("transport", "TCP").Logger(),
		pool:    newConnectionPool(logger),
		inbound: make(chan Frame, 64),
		done:    make(chan struct{}),
	}
	go t.reapLoop()
	return t
}

func (t *TCPTransport) reapLoop() {
	ticker := time.NewTicker(idleReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.pool.reapIdle()
		case <-t.done:
			return
		}
	}
}

func (t *TCPTransport) dial(peer string) (*pooledConn, error) {
	if c := t.pool.get(peer); c != nil {
		return c, nil
	}
	conn, err := net.DialTimeout("tcp", peer, 10*time.Second)
	if err != nil {
		return nil, errors.Join(ErrPeerUnreachable, err)
	}
	pc := &pooledConn{Conn: conn, refcount: 1}
	t.pool.add(peer, pc)
	t.lastAddr = conn.LocalAddr().String()
	go t.readConn(peer, pc)
	return pc, nil
}

// readConn reassembles the TCP stream into discrete SIP messages using
// Content-Length framing with CRLFCRLF header termination, per
// SPEC_FULL §4.4, then pushes each onto the shared inbound channel.
func (t *TCPTransport) readConn(peer string, pc *pooledConn) {
	defer func() {
		t.pool.remove(peer)
		pc.Close()
	}()
	readBuf := make([]byte, 8192)
	for {
		n, err := pc.Read(readBuf)
		if err != nil {
			select {
			case <-t.done:
			default:
				t.log.Debug().Err(err).Str("peer", peer).Msg("tcp read ended")
			}
			return
		}
		pc.mu.Lock()
		pc.buf = append(pc.buf, readBuf[:n]...)
		pc.mu.Unlock()

		for {
			msg, rest, ok := extractOneMessage(pc.buf)
			if !ok {
				break
			}
			pc.mu.Lock()
			pc.buf = rest
			pc.mu.Unlock()
			select {
			case t.inbound <- Frame{Data: msg, Peer: peer}:
			case <-t.done:
				return
			}
		}
	}
}

// extractOneMessage returns the first complete SIP message in buf (by
// Content-Length) and the remaining unparsed bytes, or ok=false if buf
// does not yet contain a full message.
func extractOneMessage(buf []byte) (msg []byte, rest []byte, ok bool) {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(buf, sep)
	if idx < 0 {
		return nil, buf, false
	}
	headerBlock := buf[:idx]
	contentLength := parseContentLengthHeader(headerBlock)
	if contentLength < 0 {
		contentLength = 0
	}
	total := idx + len(sep) + contentLength
	if len(buf) < total {
		return nil, buf, false
	}
	return buf[:total], buf[total:], true
}

func parseContentLengthHeader(headerBlock []byte) int {
	lines := bytes.Split(headerBlock, []byte("\r\n"))
	for _, line := range lines {
		lower := bytes.ToLower(line)
		if bytes.HasPrefix(lower, []byte("content-length:")) || bytes.HasPrefix(lower, []byte("l:")) {
			colon := bytes.IndexByte(line, ':')
			val := bytes.TrimSpace(line[colon+1:])
			n := 0
			for _, c := range val {
				if c < '0' || c > '9' {
					return -1
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return -1
}

func (t *TCPTransport) Send(peer string, data []byte) error {
	pc, err := t.dial(peer)
	if err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, err := pc.Write(data); err != nil {
		return errors.Join(ErrPeerUnreachable, err)
	}
	return nil
}

func (t *TCPTransport) Recv(timeout time.Duration) (Frame, error) {
	if timeout <= 0 {
		select {
		case f, ok := <-t.inbound:
			if !ok {
				return Frame{}, ErrClosed
			}
			return f, nil
		case <-t.done:
			return Frame{}, ErrClosed
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, ok := <-t.inbound:
		if !ok {
			return Frame{}, ErrClosed
		}
		return f, nil
	case <-timer.C:
		return Frame{}, errors.New("transport: recv timeout")
	case <-t.done:
		return Frame{}, ErrClosed
	}
}

func (t *TCPTransport) LocalAddress() string { return t.lastAddr }
func (t *TCPTransport) Network() string      { return TCP }

func (t *TCPTransport) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}
	t.pool.closeAll()
	return nil
}
