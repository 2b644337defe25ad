package transport

import (
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// UDPMTUSize bounds a single read per SPEC_FULL §4.4 ("UDP frames are
// assumed message-framed by the datagram"), grounded on the teacher's
// transport.UDPMTUSize.
const UDPMTUSize = 65535

// UDPTransport is a bound UDP socket shared by every client transaction
// that sends/receives over UDP.
type UDPTransport struct {
	conn    *net.UDPConn
	log     zerolog.Logger
	inbound chan Frame
	done    chan struct{}
}

// ListenUDP binds laddr ("host:port", port 0 for ephemeral) and starts
// the background read loop.
func ListenUDP(laddr string, logger zerolog.Logger) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.Join(ErrTransportUnavailable, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Join(ErrTransportUnavailable, err)
	}
	t := &UDPTransport{
		conn:    conn,
		log:     logger.With().Str("transport", "UDP").Logger(),
		inbound: make(chan Frame, 64),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, UDPMTUSize)
	for {
		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.log.Debug().Err(err).Msg("udp read error")
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case t.inbound <- Frame{Data: data, Peer: raddr.String()}:
		case <-t.done:
			return
		}
	}
}

func (t *UDPTransport) Send(peer string, data []byte) error {
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return errors.Join(ErrPeerUnreachable, err)
	}
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return errors.Join(ErrPeerUnreachable, err)
	}
	return nil
}

func (t *UDPTransport) Recv(timeout time.Duration) (Frame, error) {
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

func (t *UDPTransport) LocalAddress() string {
	return t.conn.LocalAddr().String()
}

func (t *UDPTransport) Network() string { return UDP }

func (t *UDPTransport) Close() error {
	select {
	case <-t.done:
		return nil
	default:
		close(t.done)
	}
	return t.conn.Close()
}
