package sip

import (
	"strconv"
	"strings"
)

// CSeq is the parsed value of a CSeq header: a sequence number and the
// method it applies to (for ACK this equals the original INVITE's
// number but names method ACK, per SPEC_FULL §4.6/R7).
type CSeq struct {
	Seq    uint32
	Method RequestMethod
}

func (c CSeq) String() string {
	return strconv.FormatUint(uint64(c.Seq), 10) + " " + c.Method.String()
}

func ParseCSeq(s string) (CSeq, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(parts) != 2 {
		return CSeq{}, newParseError(MalformedHeader, "malformed cseq: "+s)
	}
	n, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return CSeq{}, newParseError(MalformedHeader, "malformed cseq number: "+s)
	}
	return CSeq{Seq: uint32(n), Method: RequestMethod(strings.TrimSpace(parts[1]))}, nil
}

// Message is the common read surface of Request and Response.
type Message interface {
	Headers() *HeaderStore
	Body() []byte
	CallID() (string, bool)
	Via() (Via, bool)
	AllVia() []Via
	From() (Address, bool)
	To() (Address, bool)
	CSeqHeader() (CSeq, bool)
	Contact() (Address, bool)
}

// base holds the fields shared by Request and Response.
type base struct {
	headers HeaderStore
	body    []byte
}

func (m *base) Headers() *HeaderStore { return &m.headers }
func (m *base) Body() []byte          { return m.body }

// SetBody sets the body and recomputes Content-Length (SPEC_FULL §4.1:
// "Content-Length is recomputed from the body and inserted last").
func (m *base) SetBody(body []byte) {
	m.body = body
	m.headers.Set("Content-Length", strconv.Itoa(len(body)))
}

func (m *base) CallID() (string, bool) {
	return m.headers.Get("Call-ID")
}

func (m *base) Via() (Via, bool) {
	vs := m.headers.GetAll("Via")
	if len(vs) == 0 {
		return Via{}, false
	}
	v, err := ParseVia(firstCommaField(vs[0]))
	if err != nil {
		return Via{}, false
	}
	return v, true
}

// AllVia returns every Via hop, in header order, tolerating both the
// repeated-line and comma-joined encodings on input.
func (m *base) AllVia() []Via {
	var out []Via
	for _, raw := range m.headers.GetAll("Via") {
		for _, field := range splitUnquoted(raw, ',') {
			v, err := ParseVia(field)
			if err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

func firstCommaField(s string) string {
	fields := splitUnquoted(s, ',')
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}

func (m *base) From() (Address, bool) {
	v, ok := m.headers.Get("From")
	if !ok {
		return Address{}, false
	}
	a, err := ParseAddress(v)
	if err != nil {
		return Address{}, false
	}
	return a, true
}

func (m *base) To() (Address, bool) {
	v, ok := m.headers.Get("To")
	if !ok {
		return Address{}, false
	}
	a, err := ParseAddress(v)
	if err != nil {
		return Address{}, false
	}
	return a, true
}

func (m *base) CSeqHeader() (CSeq, bool) {
	v, ok := m.headers.Get("CSeq")
	if !ok {
		return CSeq{}, false
	}
	c, err := ParseCSeq(v)
	if err != nil {
		return CSeq{}, false
	}
	return c, true
}

func (m *base) Contact() (Address, bool) {
	v, ok := m.headers.Get("Contact")
	if !ok {
		return Address{}, false
	}
	a, err := ParseAddress(v)
	if err != nil {
		return Address{}, false
	}
	return a, true
}

// RouteSet returns the parsed Route header values in header order.
func RouteSet(m Message) []Address {
	return addressList(m.Headers().GetAll("Route"))
}

// RecordRouteSet returns the parsed Record-Route header values in
// header order, as received.
func RecordRouteSet(m Message) []Address {
	return addressList(m.Headers().GetAll("Record-Route"))
}

func addressList(raws []string) []Address {
	var out []Address
	for _, raw := range raws {
		a, err := ParseAddress(raw)
		if err == nil {
			out = append(out, a)
		}
	}
	return out
}
