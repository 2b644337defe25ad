package transaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/oornnery/sipgox/sip"
	"github.com/oornnery/sipgox/transport"
)

// Non-INVITE states (RFC 3261 §17.1.2).
const (
	StateTrying     = "Trying"
	StateProceeding = "Proceeding"
	StateCompleted  = "Completed"
	StateTerminated = "Terminated"
)

// INVITE adds Calling in place of Trying (RFC 3261 §17.1.1).
const StateCalling = "Calling"

// events driving both machines, named the way arzzra-soft_phone drives
// its sipgo transaction FSM: provisional/success/final/timeout.
const (
	evProvisional = "provisional"
	evSuccess     = "success"
	evFinal       = "final"
	evTimeout     = "timeout"
)

// ClientTx drives one client transaction (INVITE or non-INVITE) over a
// transport, per SPEC_FULL §4.5.
type ClientTx struct {
	mu   sync.Mutex
	fsm  *fsm.FSM
	log  zerolog.Logger
	tp   transport.Transport
	peer string

	key     Key
	origin  *sip.Request
	invite  bool
	reliable bool

	responses chan *sip.Response
	done      chan struct{}
	closed    bool

	retransmitTimer *time.Timer
	retransmitWait  time.Duration
	timeoutTimer    *time.Timer
	waitTimer       *time.Timer // Timer D or Timer K

	lastResponse *sip.Response
	finalErr     error

	onProvisional func(*sip.Response)
	onAck         func(ack *sip.Request) // invoked when a non-2xx ACK is generated
}

// NewClientTx constructs and starts a client transaction for req,
// sending it over tp to peer immediately.
func NewClientTx(req *sip.Request, tp transport.Transport, peer string, logger zerolog.Logger) (*ClientTx, error) {
	via, ok := req.Via()
	if !ok {
		return nil, errors.New("transaction: request has no Via")
	}
	tx := &ClientTx{
		log:       logger.With().Str("component", "transaction").Str("branch", mustBranch(via)).Logger(),
		tp:        tp,
		peer:      peer,
		key:       KeyFor(req),
		origin:    req,
		invite:    req.IsInvite(),
		reliable:  sip.IsReliable(tp.Network()),
		responses: make(chan *sip.Response, 8),
		done:      make(chan struct{}),
	}
	tx.fsm = tx.buildFSM()
	if err := tx.start(); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *ClientTx) buildFSM() *fsm.FSM {
	if tx.invite {
		return fsm.NewFSM(
			StateCalling,
			fsm.Events{
				{Name: evProvisional, Src: []string{StateCalling, StateProceeding}, Dst: StateProceeding},
				{Name: evSuccess, Src: []string{StateCalling, StateProceeding}, Dst: StateTerminated},
				{Name: evFinal, Src: []string{StateCalling, StateProceeding}, Dst: StateCompleted},
				// Timer B fires straight from Calling/Proceeding (no
				// final response ever arrived); Timer D fires from
				// Completed once the wait for retransmissions elapses.
				{Name: evTimeout, Src: []string{StateCalling, StateProceeding, StateCompleted}, Dst: StateTerminated},
			},
			fsm.Callbacks{
				"after_" + evProvisional:   func(_ context.Context, e *fsm.Event) { tx.onEnterProceeding(e) },
				"enter_" + StateCompleted:  func(_ context.Context, e *fsm.Event) { tx.onEnterCompletedInvite(e) },
				"enter_" + StateTerminated: func(_ context.Context, e *fsm.Event) { tx.onEnterTerminated(e) },
			},
		)
	}
	return fsm.NewFSM(
		StateTrying,
		fsm.Events{
			{Name: evProvisional, Src: []string{StateTrying, StateProceeding}, Dst: StateProceeding},
			{Name: evFinal, Src: []string{StateTrying, StateProceeding}, Dst: StateCompleted},
			// Timer F fires from Trying/Proceeding; Timer K fires from
			// Completed.
			{Name: evTimeout, Src: []string{StateTrying, StateProceeding, StateCompleted}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"after_" + evProvisional:   func(_ context.Context, e *fsm.Event) { tx.onEnterProceeding(e) },
			"enter_" + StateCompleted:  func(_ context.Context, e *fsm.Event) { tx.onEnterCompletedNonInvite(e) },
			"enter_" + StateTerminated: func(_ context.Context, e *fsm.Event) { tx.onEnterTerminated(e) },
		},
	)
}

// start sends the initial request and arms Timer A/E (retransmit, if
// unreliable) and Timer B/F (overall timeout).
func (tx *ClientTx) start() error {
	if err := tx.tp.Send(tx.peer, []byte(tx.origin.String())); err != nil {
		return errors.Join(ErrTransport, err)
	}
	if !tx.reliable {
		tx.mu.Lock()
		tx.retransmitWait = T1
		tx.retransmitTimer = time.AfterFunc(tx.retransmitWait, tx.onRetransmitFire)
		tx.mu.Unlock()
	}
	tx.mu.Lock()
	tx.timeoutTimer = time.AfterFunc(TimerB, tx.onTimeoutFire)
	tx.mu.Unlock()
	return nil
}

func (tx *ClientTx) onRetransmitFire() {
	tx.mu.Lock()
	if tx.closed || tx.fsm.Current() == StateCompleted || tx.fsm.Current() == StateTerminated {
		tx.mu.Unlock()
		return
	}
	tx.retransmitWait = nextRetransmit(tx.retransmitWait)
	peer, origin := tx.peer, tx.origin
	tx.retransmitTimer = time.AfterFunc(tx.retransmitWait, tx.onRetransmitFire)
	tx.mu.Unlock()

	if err := tx.tp.Send(peer, []byte(origin.String())); err != nil {
		tx.log.Debug().Err(err).Msg("retransmit send failed")
	}
}

func (tx *ClientTx) onTimeoutFire() {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return
	}
	cur := tx.fsm.Current()
	tx.mu.Unlock()
	if cur == StateCompleted || cur == StateTerminated {
		return
	}
	tx.finalErr = ErrTimeout
	tx.fire(evTimeout, nil)
}

// Receive dispatches an inbound response matched to this transaction by
// the caller (the Layer). It is safe to call from the transport read
// loop.
func (tx *ClientTx) Receive(res *sip.Response) {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return
	}
	tx.lastResponse = res
	tx.mu.Unlock()

	switch {
	case res.IsProvisional():
		tx.fire(evProvisional, res)
	case res.IsSuccess() && tx.invite:
		// Only the INVITE FSM has a dedicated success transition
		// (straight to Terminated, ACK'd by the dialog layer). A
		// non-INVITE 2xx is just another final response: it moves to
		// Completed and starts Timer K like 3xx-6xx do.
		tx.fire(evSuccess, res)
	default:
		tx.fire(evFinal, res)
	}
}

func (tx *ClientTx) fire(event string, _ *sip.Response) {
	tx.mu.Lock()
	cur := tx.fsm.Current()
	tx.mu.Unlock()
	if !tx.fsm.Can(event) {
		tx.log.Debug().Str("event", event).Str("state", cur).Msg("event not valid in current state, dropping")
		return
	}
	if err := tx.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			tx.log.Debug().Err(err).Str("event", event).Msg("fsm transition error")
		}
	}
}

func (tx *ClientTx) onEnterProceeding(_ *fsm.Event) {
	tx.mu.Lock()
	res := tx.lastResponse
	invite := tx.invite
	if invite {
		// INVITE keeps retransmitting per RFC 3261 §17.1.1.2 until a
		// final response or Timer B; nothing to stop here. Non-INVITE
		// cancels Timer E on the first provisional.
	} else if tx.retransmitTimer != nil {
		tx.retransmitTimer.Stop()
		tx.retransmitTimer = nil
	}
	cb := tx.onProvisional
	tx.mu.Unlock()
	if cb != nil && res != nil {
		cb(res)
	}
}

func (tx *ClientTx) onEnterCompletedInvite(_ *fsm.Event) {
	tx.mu.Lock()
	res := tx.lastResponse
	req := tx.origin
	peer := tx.peer
	if tx.retransmitTimer != nil {
		tx.retransmitTimer.Stop()
		tx.retransmitTimer = nil
	}
	if tx.timeoutTimer != nil {
		tx.timeoutTimer.Stop()
		tx.timeoutTimer = nil
	}
	wait := TimerD
	if tx.reliable {
		wait = 0
	}
	tx.mu.Unlock()

	ack := BuildAckNon2xx(req, res)
	if err := tx.tp.Send(peer, []byte(ack.String())); err != nil {
		tx.log.Debug().Err(err).Msg("failed to send ACK to non-2xx")
	}
	tx.mu.Lock()
	cb := tx.onAck
	tx.mu.Unlock()
	if cb != nil {
		cb(ack)
	}

	tx.armWaitTimer(wait)
	select {
	case tx.responses <- res:
	default:
	}
}

func (tx *ClientTx) onEnterCompletedNonInvite(_ *fsm.Event) {
	tx.mu.Lock()
	res := tx.lastResponse
	if tx.retransmitTimer != nil {
		tx.retransmitTimer.Stop()
		tx.retransmitTimer = nil
	}
	if tx.timeoutTimer != nil {
		tx.timeoutTimer.Stop()
		tx.timeoutTimer = nil
	}
	wait := TimerKDuration(tx.reliable)
	tx.mu.Unlock()

	tx.armWaitTimer(wait)
	select {
	case tx.responses <- res:
	default:
	}
}

// armWaitTimer schedules the evTimeout transition after wait. It always
// goes through time.AfterFunc, even for a zero wait (Timer K on a
// stream transport): firing synchronously here would re-enter the fsm
// from inside the very callback this is called from, which looplab/fsm
// does not allow.
func (tx *ClientTx) armWaitTimer(wait time.Duration) {
	tx.mu.Lock()
	tx.waitTimer = time.AfterFunc(wait, func() { tx.fire(evTimeout, nil) })
	tx.mu.Unlock()
}

func (tx *ClientTx) onEnterTerminated(e *fsm.Event) {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return
	}
	tx.closed = true
	if tx.retransmitTimer != nil {
		tx.retransmitTimer.Stop()
	}
	if tx.timeoutTimer != nil {
		tx.timeoutTimer.Stop()
	}
	if tx.waitTimer != nil {
		tx.waitTimer.Stop()
	}
	res := tx.lastResponse
	success := e.Event == evSuccess
	tx.mu.Unlock()

	if success && res != nil {
		select {
		case tx.responses <- res:
		default:
		}
	}
	close(tx.done)
	close(tx.responses)
}

// Responses delivers the final response: a 2xx to an INVITE as the
// transaction terminates, any other final response as it enters
// Completed. Provisional responses go only to the OnProvisional
// callback. The channel is closed when the transaction terminates,
// which after a non-2xx final response is once Timer D or K fires.
func (tx *ClientTx) Responses() <-chan *sip.Response { return tx.responses }

// Done is closed when the transaction reaches Terminated.
func (tx *ClientTx) Done() <-chan struct{} { return tx.done }

// Key returns the matching key this transaction was registered under.
func (tx *ClientTx) Key() Key { return tx.key }

// State returns the current FSM state name.
func (tx *ClientTx) State() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.fsm.Current()
}

// OnProvisional registers a callback invoked for every 1xx delivered to
// this transaction (used by the dialog layer to notice early dialogs).
func (tx *ClientTx) OnProvisional(f func(*sip.Response)) {
	tx.mu.Lock()
	tx.onProvisional = f
	tx.mu.Unlock()
}

// OnAck registers a callback invoked with the synthesized ACK whenever
// this INVITE transaction auto-acks a non-2xx final response.
func (tx *ClientTx) OnAck(f func(*sip.Request)) {
	tx.mu.Lock()
	tx.onAck = f
	tx.mu.Unlock()
}

// CanCancel reports whether a provisional response has been seen,
// which SPEC_FULL §4.5 requires before CANCEL is permitted.
func (tx *ClientTx) CanCancel() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.invite && (tx.fsm.Current() == StateProceeding)
}

// Origin returns the request this transaction is carrying.
func (tx *ClientTx) Origin() *sip.Request { return tx.origin }

// Terminate force-ends the transaction (facade teardown), delivering
// ErrTerminated to anyone still draining Responses.
func (tx *ClientTx) Terminate() {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return
	}
	tx.finalErr = ErrTerminated
	tx.mu.Unlock()
	tx.fire(evTimeout, nil)
}

// Err returns the terminal error, if the transaction ended without a
// usable final response (timeout or forced termination).
func (tx *ClientTx) Err() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.finalErr
}
