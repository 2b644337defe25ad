package events

import (
	"fmt"

	"github.com/oornnery/sipgox/sip"
)

// RequestHook runs before transaction creation (on_request) or before
// the auth controller runs (on_auth_challenge is a ResponseHook
// instead, since it inspects a response). Returning a nil request and
// nil error cancels the send; returning an error fails it with
// HookFailure.
type RequestHook func(req *sip.Request, ctx *RequestContext) (*sip.Request, error)

// ResponseHook runs after transaction delivery (on_response) or before
// the auth controller acts on a challenge (on_auth_challenge).
type ResponseHook func(res *sip.Response, ctx *RequestContext) (*sip.Response, error)

// StatusHook is one of the status-class observers, run after
// on_response with no ability to substitute the message.
type StatusHook func(res *sip.Response, ctx *RequestContext)

// Hooks is the fixed vtable of SPEC_FULL §4.9 (R2): every field is
// optional, nil fields are simply skipped.
type Hooks struct {
	OnRequest       RequestHook
	OnResponse      ResponseHook
	OnAuthChallenge ResponseHook

	OnProvisional StatusHook
	OnSuccess     StatusHook
	OnRedirect    StatusHook
	OnClientError StatusHook
	OnServerError StatusHook
}

// cancelled is the error the dispatch helpers return when a hook comes
// back with (nil, nil), so callers can tell a cancel from a HookFailure.
type cancelled struct{}

func (cancelled) Error() string { return "events: request cancelled by hook" }

// ErrCancelled is returned by OnRequestRun, OnResponseRun and
// OnAuthChallengeRun when a hook
// returns a nil message with no error, per SPEC_FULL §4.9 ("returning
// none cancels the send").
var ErrCancelled error = cancelled{}

// runRequest invokes name/hook around req, recovering a panic into a
// HookFailure the same way an invalid return value does.
func (h Hooks) runRequest(name string, hook RequestHook, req *sip.Request, ctx *RequestContext) (out *sip.Request, err error) {
	if hook == nil {
		return req, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &HookFailure{Hook: name, Cause: asError(r)}
		}
	}()
	result, herr := hook(req, ctx)
	if herr != nil {
		return nil, &HookFailure{Hook: name, Cause: herr}
	}
	if result == nil {
		return nil, ErrCancelled
	}
	return result, nil
}

func (h Hooks) runResponse(name string, hook ResponseHook, res *sip.Response, ctx *RequestContext) (out *sip.Response, err error) {
	if hook == nil {
		return res, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &HookFailure{Hook: name, Cause: asError(r)}
		}
	}()
	result, herr := hook(res, ctx)
	if herr != nil {
		return nil, &HookFailure{Hook: name, Cause: herr}
	}
	if result == nil {
		return nil, ErrCancelled
	}
	return result, nil
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// OnRequestRun runs the pre-send hook, if any.
func (h Hooks) OnRequestRun(req *sip.Request, ctx *RequestContext) (*sip.Request, error) {
	return h.runRequest("on_request", h.OnRequest, req, ctx)
}

// OnResponseRun runs the post-receive hook, then the matching
// status-class observer, per SPEC_FULL §4.9 ordering.
func (h Hooks) OnResponseRun(res *sip.Response, ctx *RequestContext) (*sip.Response, error) {
	out, err := h.runResponse("on_response", h.OnResponse, res, ctx)
	if err != nil {
		return nil, err
	}
	h.runStatusClass(out, ctx)
	return out, nil
}

// OnAuthChallengeRun runs the challenge hook before the auth controller
// acts on a 401/407.
func (h Hooks) OnAuthChallengeRun(res *sip.Response, ctx *RequestContext) (*sip.Response, error) {
	return h.runResponse("on_auth_challenge", h.OnAuthChallenge, res, ctx)
}

func (h Hooks) runStatusClass(res *sip.Response, ctx *RequestContext) {
	if res == nil {
		return
	}
	var hook StatusHook
	switch {
	case res.IsProvisional():
		hook = h.OnProvisional
	case res.IsSuccess():
		hook = h.OnSuccess
	case res.IsRedirection():
		hook = h.OnRedirect
	case res.IsClientError():
		hook = h.OnClientError
	case res.IsServerError() || res.IsGlobalFailure():
		hook = h.OnServerError
	}
	if hook == nil {
		return
	}
	defer func() { _ = recover() }() // an observer hook cannot cancel or fail the request
	hook(res, ctx)
}
