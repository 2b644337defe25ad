package sip

import (
	"net"
	"strconv"
	"strings"
)

// Response is a SIP response (RFC 3261 §7.2).
type Response struct {
	base
	SipVersion string
	StatusCode int
	Reason     string

	// Request back-points to the request this response answers, when
	// known (SPEC_FULL §3).
	Request *Request

	Raddr Addr
}

func NewResponse(statusCode int, reason string) *Response {
	if reason == "" {
		reason = ReasonPhrase(statusCode)
	}
	return &Response{
		SipVersion: "SIP/2.0",
		StatusCode: statusCode,
		Reason:     reason,
	}
}

func (r *Response) IsProvisional() bool  { return r.StatusCode < 200 }
func (r *Response) IsSuccess() bool      { return r.StatusCode >= 200 && r.StatusCode < 300 }
func (r *Response) IsRedirection() bool  { return r.StatusCode >= 300 && r.StatusCode < 400 }
func (r *Response) IsClientError() bool  { return r.StatusCode >= 400 && r.StatusCode < 500 }
func (r *Response) IsServerError() bool  { return r.StatusCode >= 500 && r.StatusCode < 600 }
func (r *Response) IsGlobalFailure() bool { return r.StatusCode >= 600 }

func (r *Response) StartLine() string {
	return r.SipVersion + " " + strconv.Itoa(r.StatusCode) + " " + r.Reason
}

func (r *Response) String() string {
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

func (r *Response) Clone() *Response {
	c := &Response{
		base: base{
			headers: r.headers.Clone(),
			body:    append([]byte(nil), r.body...),
		},
		SipVersion: r.SipVersion,
		StatusCode: r.StatusCode,
		Reason:     r.Reason,
		Request:    r.Request,
		Raddr:      r.Raddr,
	}
	return c
}

func (r *Response) Short() string {
	if r == nil {
		return "<nil>"
	}
	return strconv.Itoa(r.StatusCode) + " " + r.Reason
}

// NewResponseFromRequest builds a response skeleton that copies Via,
// From, To, Call-ID and CSeq from req, used by the test fakes. A To-tag
// is assigned
// for anything but 100 Trying if one is not already present, per
// RFC 3261 §8.2.6.2.
func NewResponseFromRequest(req *Request, statusCode int, reason string, body []byte) *Response {
	res := NewResponse(statusCode, reason)
	res.Request = req
	for _, h := range req.Headers().GetAll("Via") {
		res.Headers().Add("Via", h)
	}
	if from, ok := req.From(); ok {
		res.Headers().Add("From", from.String())
	}
	if to, ok := req.To(); ok {
		if statusCode != StatusTrying {
			if _, hasTag := to.Tag(); !hasTag {
				to.Params = append(to.Params.Clone(), Param{K: "tag", V: GenerateTag()})
			}
		}
		res.Headers().Add("To", to.String())
	}
	if cid, ok := req.CallID(); ok {
		res.Headers().Add("Call-ID", cid)
	}
	if cseq, ok := req.CSeqHeader(); ok {
		res.Headers().Add("CSeq", cseq.String())
	}
	if body != nil {
		res.SetBody(body)
	}
	res.Raddr = req.Raddr
	return res
}

// remoteAddress resolves the Raddr into a net.Addr-ish string; kept as
// a small helper mirroring the teacher's symmetric accessor.
func (r *Response) remoteAddress() string {
	if r.Raddr.IsZero() {
		return ""
	}
	return net.JoinHostPort(r.Raddr.Hostname, strconv.Itoa(r.Raddr.Port))
}
