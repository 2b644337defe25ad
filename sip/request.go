package sip

import "strings"

// Request is a SIP request (RFC 3261 §7.1).
type Request struct {
	base
	Method      RequestMethod
	RequestURI  URI
	SipVersion  string

	// Laddr/Raddr record the transport endpoints used to send this
	// request, filled in by the transport layer; the zero value is used
	// before the request has been sent.
	Laddr Addr
	Raddr Addr
}

// NewRequest builds an empty request with no headers; callers append
// headers via Headers().Add or the convenience setters below.
func NewRequest(method RequestMethod, requestURI URI) *Request {
	return &Request{
		base:       base{},
		Method:     method,
		RequestURI: requestURI,
		SipVersion: "SIP/2.0",
	}
}

func (r *Request) IsInvite() bool { return r.Method == INVITE }
func (r *Request) IsAck() bool    { return r.Method == ACK }
func (r *Request) IsCancel() bool { return r.Method == CANCEL }

// StartLine renders "METHOD request-uri SIP/2.0".
func (r *Request) StartLine() string {
	var b strings.Builder
	b.WriteString(r.Method.String())
	b.WriteByte(' ')
	r.RequestURI.WriteTo(&b)
	b.WriteByte(' ')
	b.WriteString(r.SipVersion)
	return b.String()
}

// String serializes the full message: start line, headers in canonical
// order, blank line, body.
func (r *Request) String() string {
	var b strings.Builder
	b.WriteString(r.StartLine())
	b.WriteString("\r\n")
	r.headers.WriteTo(&b)
	b.WriteString("\r\n")
	if len(r.body) > 0 {
		b.Write(r.body)
	}
	return b.String()
}

// Clone performs a shallow header clone; the body slice is copied too.
func (r *Request) Clone() *Request {
	c := &Request{
		base: base{
			headers: r.headers.Clone(),
			body:    append([]byte(nil), r.body...),
		},
		Method:     r.Method,
		RequestURI: r.RequestURI.Clone(),
		SipVersion: r.SipVersion,
		Laddr:      r.Laddr,
		Raddr:      r.Raddr,
	}
	return c
}

// Short renders a compact one-line summary for logging.
func (r *Request) Short() string {
	if r == nil {
		return "<nil>"
	}
	return r.Method.String() + " " + r.RequestURI.String()
}
