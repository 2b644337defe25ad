package events

import "fmt"

// HookFailure wraps whatever a user hook raised (an error return or a
// recovered panic), per SPEC_FULL §4.9: "Exceptions raised by a user
// hook terminate the request with HookFailure."
type HookFailure struct {
	Hook  string
	Cause error
}

func (e *HookFailure) Error() string {
	return fmt.Sprintf("events: hook %q failed: %v", e.Hook, e.Cause)
}

func (e *HookFailure) Unwrap() error { return e.Cause }
