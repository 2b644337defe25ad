package transaction

import "errors"

var (
	// ErrTimeout is the terminal error when Timer B/F fires.
	ErrTimeout = errors.New("transaction: timed out")
	// ErrTransport wraps a send failure reported by the transport layer.
	ErrTransport = errors.New("transaction: transport error")
	// ErrTerminated is returned to callers still waiting when the
	// transaction is torn down out from under them (facade close).
	ErrTerminated = errors.New("transaction: terminated")
	// ErrCancelNotPermitted is returned by Cancel before a provisional
	// response has been received for the INVITE (SPEC_FULL §4.5).
	ErrCancelNotPermitted = errors.New("transaction: cancel not permitted before a provisional response")
)
