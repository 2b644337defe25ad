// Package events implements the fixed hook vtable of SPEC_FULL §4.9:
// pre-send, post-receive, auth-challenge and status-class callbacks run
// synchronously around every request the facade sends. Grounded on the
// teacher's function-typed MessageHandler/ClientTransactionRequester
// hooks and diago's OnResponse(func(*sip.Response)) callback idiom,
// generalized here into one struct of optional fields (R2) instead of
// dynamic dispatch.
package events

import "time"

// RequestContext carries the ambient state available to every hook
// invocation for one request (SPEC_FULL §3).
type RequestContext struct {
	// TxnKey identifies the active transaction a hook is firing for;
	// borrowed, not owned (package transaction holds the real value).
	TxnKey string
	// DialogID identifies the active dialog, if this request is
	// in-dialog; empty otherwise.
	DialogID string

	DestPeer   string
	SourcePeer string

	SentAt     time.Time
	ReceivedAt time.Time
}
