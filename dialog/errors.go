package dialog

import "errors"

var (
	// ErrNoDialog names a dialog the table does not know about. Table's
	// lookups report that with a false ok result, not with this error.
	ErrNoDialog = errors.New("dialog: no such dialog")
	// ErrNoContact is returned by NewConfirmed and Confirm for a 2xx
	// that carried no Contact header (RFC 3261 §12.1.2 requires one).
	ErrNoContact = errors.New("dialog: response has no Contact header")
	// ErrTerminated names a dialog that has moved to Terminated. The
	// in-dialog request builders do not check the dialog state and do
	// not return it.
	ErrTerminated = errors.New("dialog: terminated")
)
