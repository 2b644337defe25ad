// Package dialog implements the RFC 3261 §12 dialog state machine from
// the UAC side: early/confirmed/terminated lifecycle, route-set
// management, and in-dialog request construction (SPEC_FULL §4.6).
package dialog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oornnery/sipgox/sip"
)

// State is a dialog's position in its lifecycle (RFC 3261 §12).
type State int32

const (
	Early State = iota
	Confirmed
	Terminated
)

func (s State) String() string {
	switch s {
	case Early:
		return "Early"
	case Confirmed:
		return "Confirmed"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// StateFunc is invoked on every state transition, grounded on the
// teacher's onStatePointer callback idiom in dialog.go.
type StateFunc func(State)

// Dialog tracks one SIP dialog formed by an INVITE, per SPEC_FULL §4.6.
type Dialog struct {
	ID string

	CallID    string
	LocalTag  string
	RemoteTag string

	LocalURI  sip.Address
	RemoteURI sip.Address

	// RemoteTarget is the remote Contact URI used as the in-dialog
	// Request-URI.
	RemoteTarget sip.URI

	mu       sync.Mutex
	routeSet []sip.Address

	InviteRequest  *sip.Request
	InviteResponse *sip.Response

	state    atomic.Int32
	localSeq atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc

	onStateMu sync.Mutex
	onState   StateFunc
}

// newFromInvite builds the shared skeleton of a dialog out of the
// originating INVITE and a dialog-forming response (1xx-with-To-tag or
// 2xx), per RFC 3261 §12.1.2.
func newFromInvite(invite *sip.Request, res *sip.Response) (*Dialog, error) {
	callID, fromTag, toTag, err := sip.DialogIDFromResponse(res)
	if err != nil {
		return nil, err
	}
	from, _ := invite.From()
	to, _ := res.To()

	d := &Dialog{
		ID:             sip.DialogID(callID, fromTag, toTag),
		CallID:         callID,
		LocalTag:       fromTag,
		RemoteTag:      toTag,
		LocalURI:       sip.Address{URI: from.URI},
		RemoteURI:      sip.Address{URI: to.URI},
		InviteRequest:  invite,
		InviteResponse: res,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	if cseq, ok := invite.CSeqHeader(); ok {
		d.localSeq.Store(cseq.Seq)
	}
	d.applyRouteAndTarget(res)
	return d, nil
}

// NewEarly creates an early dialog from the first 1xx carrying a To-tag
// (SPEC_FULL §4.6).
func NewEarly(invite *sip.Request, provisional *sip.Response) (*Dialog, error) {
	d, err := newFromInvite(invite, provisional)
	if err != nil {
		return nil, err
	}
	d.state.Store(int32(Early))
	return d, nil
}

// NewConfirmed creates a dialog straight from a 2xx, used when no
// earlier provisional carried a To-tag.
func NewConfirmed(invite *sip.Request, final *sip.Response) (*Dialog, error) {
	if _, ok := final.Contact(); !ok {
		return nil, ErrNoContact
	}
	d, err := newFromInvite(invite, final)
	if err != nil {
		return nil, err
	}
	d.state.Store(int32(Confirmed))
	return d, nil
}

// Confirm upgrades an early dialog to confirmed on the 2xx, refreshing
// the remote tag (it can differ between forked early dialogs and the
// winning final response), route set and remote target from the final
// response, per RFC 3261 §12.1.2.
func (d *Dialog) Confirm(final *sip.Response) error {
	if _, ok := final.Contact(); !ok {
		return ErrNoContact
	}
	_, _, toTag, err := sip.DialogIDFromResponse(final)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.RemoteTag = toTag
	d.ID = sip.DialogID(d.CallID, d.LocalTag, d.RemoteTag)
	d.InviteResponse = final
	d.mu.Unlock()
	d.applyRouteAndTarget(final)
	d.setState(Confirmed)
	return nil
}

// applyRouteAndTarget sets RemoteTarget from the response's Contact and
// the route set from its Record-Route headers reversed (RFC 3261
// §12.1.2: "the route set MUST be set to the list of URIs in the
// Record-Route header field in the response, taken in reverse order").
func (d *Dialog) applyRouteAndTarget(res *sip.Response) error {
	contact, ok := res.Contact()
	if !ok {
		return ErrNoContact
	}
	rr := sip.RecordRouteSet(res)
	reversed := make([]sip.Address, len(rr))
	for i, a := range rr {
		reversed[len(rr)-1-i] = a
	}
	d.mu.Lock()
	d.RemoteTarget = contact.URI
	d.routeSet = reversed
	d.mu.Unlock()
	return nil
}

// RouteSet returns a copy of the stored route set.
func (d *Dialog) RouteSet() []sip.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sip.Address, len(d.routeSet))
	copy(out, d.routeSet)
	return out
}

// LocalSeq returns the current local CSeq number (the INVITE's number
// until the first in-dialog request increments it).
func (d *Dialog) LocalSeq() uint32 { return d.localSeq.Load() }

// State returns the dialog's current lifecycle state.
func (d *Dialog) State() State { return State(d.state.Load()) }

// Done is closed when the dialog terminates.
func (d *Dialog) Done() <-chan struct{} { return d.ctx.Done() }

// OnState chains f onto any existing state callback, same pattern as
// the teacher's Dialog.OnState compare-and-swap chaining, simplified to
// a mutex since dialogs are not expected to register from hot paths.
func (d *Dialog) OnState(f StateFunc) {
	d.onStateMu.Lock()
	defer d.onStateMu.Unlock()
	if prev := d.onState; prev != nil {
		d.onState = func(s State) { prev(s); f(s) }
		return
	}
	d.onState = f
}

func (d *Dialog) setState(s State) {
	old := State(d.state.Swap(int32(s)))
	if old == s {
		return
	}
	if s == Terminated {
		d.cancel()
	}
	d.onStateMu.Lock()
	cb := d.onState
	d.onStateMu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Terminate moves the dialog to Terminated (BYE exchanged, or any
// condition SPEC_FULL §4.6 treats as dialog end).
func (d *Dialog) Terminate() { d.setState(Terminated) }
