package transaction

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/oornnery/sipgox/sip"
	"github.com/oornnery/sipgox/transport"
)

// Layer owns one transport and the table of client transactions
// currently waiting on responses over it, dispatching inbound frames by
// the matching key of SPEC_FULL §4.5.
type Layer struct {
	tp  transport.Transport
	log zerolog.Logger

	mu  sync.Mutex
	txs map[Key]*ClientTx

	done chan struct{}
}

// NewLayer starts the inbound-frame read loop over tp.
func NewLayer(tp transport.Transport, logger zerolog.Logger) *Layer {
	l := &Layer{
		tp:   tp,
		log:  logger.With().Str("component", "transaction-layer").Logger(),
		txs:  map[Key]*ClientTx{},
		done: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Layer) readLoop() {
	for {
		frame, err := l.tp.Recv(0)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.log.Debug().Err(err).Msg("transport recv ended")
			return
		}
		datagram := l.tp.Network() == transport.UDP
		req, res, err := sip.Parse(frame.Data, datagram)
		if err != nil {
			l.log.Debug().Err(err).Msg("dropping malformed inbound message")
			continue
		}
		if req != nil {
			// This core is UAC-only; inbound requests (e.g. an in-dialog
			// BYE from the remote party) are not transaction-matched
			// and are dropped here.
			continue
		}
		res.Raddr = mustAddr(frame.Peer)
		l.dispatch(res)
	}
}

func mustAddr(peer string) sip.Addr {
	a, err := sip.AddrFromString(peer)
	if err != nil {
		return sip.Addr{}
	}
	return a
}

func (l *Layer) dispatch(res *sip.Response) {
	key, ok := KeyForResponse(res)
	if !ok {
		l.log.Debug().Msg("response missing Via/CSeq, cannot match")
		return
	}
	l.mu.Lock()
	tx, ok := l.txs[key]
	l.mu.Unlock()
	if !ok {
		l.log.Debug().Str("branch", key.Branch).Str("method", key.Method.String()).Msg("no matching transaction")
		return
	}
	tx.Receive(res)
}

// Send creates and starts a new client transaction for req, which sends
// the request, and then registers it in the table for response matching.
func (l *Layer) Send(req *sip.Request, peer string) (*ClientTx, error) {
	tx, err := NewClientTx(req, l.tp, peer, l.log)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.txs[tx.Key()] = tx
	l.mu.Unlock()
	go l.reap(tx)
	return tx, nil
}

// reap removes tx from the table once it terminates.
func (l *Layer) reap(tx *ClientTx) {
	<-tx.Done()
	l.mu.Lock()
	delete(l.txs, tx.Key())
	l.mu.Unlock()
}

// Cancel sends a CANCEL for an in-progress INVITE transaction, itself
// run as a new non-INVITE transaction, per SPEC_FULL §4.5.
func (l *Layer) Cancel(invite *ClientTx, peer string) (*ClientTx, error) {
	if !invite.CanCancel() {
		return nil, ErrCancelNotPermitted
	}
	cancelReq := BuildCancel(invite.Origin())
	return l.Send(cancelReq, peer)
}

// Close terminates every outstanding transaction and stops the read
// loop.
func (l *Layer) Close() {
	select {
	case <-l.done:
		return
	default:
		close(l.done)
	}
	l.mu.Lock()
	txs := make([]*ClientTx, 0, len(l.txs))
	for _, tx := range l.txs {
		txs = append(txs, tx)
	}
	l.mu.Unlock()
	for _, tx := range txs {
		tx.Terminate()
	}
}
