package sip_test

import (
	"strings"
	"testing"

	"github.com/oornnery/sipgox/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvite = "INVITE sip:bob@example.com SIP/2.0\r\n" +
	"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
	"Max-Forwards: 70\r\n" +
	"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
	"To: Bob <sip:bob@example.com>\r\n" +
	"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
	"CSeq: 314159 INVITE\r\n" +
	"Contact: <sip:alice@pc33.atlanta.com>\r\n" +
	"Content-Length: 4\r\n" +
	"\r\n" +
	"body"

// Testable property 1: parse(serialize(parse(wire))) == parse(wire).
func TestParseSerializeRoundTrip(t *testing.T) {
	req, res, err := sip.Parse([]byte(sampleInvite), true)
	require.NoError(t, err)
	require.Nil(t, res)
	require.NotNil(t, req)

	assert.Equal(t, sip.INVITE, req.Method)
	assert.Equal(t, "bob", req.RequestURI.User)
	assert.Equal(t, []byte("body"), req.Body())

	wire := req.String()
	req2, res2, err := sip.Parse([]byte(wire), true)
	require.NoError(t, err)
	require.Nil(t, res2)

	assert.Equal(t, req.Method, req2.Method)
	assert.Equal(t, req.RequestURI.String(), req2.RequestURI.String())
	assert.Equal(t, req.Body(), req2.Body())

	from1, _ := req.From()
	from2, _ := req2.From()
	assert.Equal(t, from1.String(), from2.String())

	cid1, _ := req.CallID()
	cid2, _ := req2.CallID()
	assert.Equal(t, cid1, cid2)
}

func TestParseResponseStartLine(t *testing.T) {
	wire := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"To: Bob <sip:bob@example.com>;tag=a6c85cf\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 314159 INVITE\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"
	req, res, err := sip.Parse([]byte(wire), true)
	require.NoError(t, err)
	require.Nil(t, req)
	require.NotNil(t, res)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "OK", res.Reason)
	assert.Empty(t, res.Body())
}

// Header-folding boundary: a continuation line must join onto the
// previous header with its internal whitespace collapsed to one space.
func TestParseUnfoldsHeaderContinuations(t *testing.T) {
	wire := "INVITE sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com\r\n" +
		" ;branch=z9hG4bK776asdhds\r\n" +
		"From: Alice\r\n" +
		"  <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"To: Bob <sip:bob@example.com>\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"
	req, _, err := sip.Parse([]byte(wire), true)
	require.NoError(t, err)

	via, ok := req.Via()
	require.True(t, ok)
	branch, ok := via.Branch()
	require.True(t, ok)
	assert.Equal(t, "z9hG4bK776asdhds", branch)

	from, ok := req.From()
	require.True(t, ok)
	assert.Equal(t, "Alice", from.DisplayName)
}

// Content-Length: 0 boundary — an explicit zero-length body must parse
// as an empty, non-nil-vs-nil-insensitive body rather than consuming
// trailing datagram bytes as if Content-Length were absent.
func TestParseContentLengthZeroBoundary(t *testing.T) {
	wire := "OPTIONS sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK1\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1\r\n" +
		"To: Bob <sip:bob@example.com>\r\n" +
		"Call-ID: cid1@pc33.atlanta.com\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"
	req, _, err := sip.Parse([]byte(wire), true)
	require.NoError(t, err)
	assert.Empty(t, req.Body())

	cl, ok := req.Headers().Get("Content-Length")
	require.True(t, ok)
	assert.Equal(t, "0", cl)
}

func TestParseMissingContentLengthUsesDatagramRemainder(t *testing.T) {
	wire := "MESSAGE sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK1\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1\r\n" +
		"To: Bob <sip:bob@example.com>\r\n" +
		"Call-ID: cid2@pc33.atlanta.com\r\n" +
		"CSeq: 1 MESSAGE\r\n" +
		"\r\n" +
		"hello world"
	req, _, err := sip.Parse([]byte(wire), true)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(req.Body()))
}

func TestParseBadContentLengthOnDatagram(t *testing.T) {
	wire := "OPTIONS sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK1\r\n" +
		"Call-ID: cid3@pc33.atlanta.com\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"Content-Length: 999\r\n" +
		"\r\n"
	_, _, err := sip.Parse([]byte(wire), true)
	require.Error(t, err)
	var perr *sip.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, sip.BadContentLength, perr.Kind)
}

func TestParseTruncatedOnStream(t *testing.T) {
	wire := "OPTIONS sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK1\r\n" +
		"Call-ID: cid4@pc33.atlanta.com\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"Content-Length: 999\r\n" +
		"\r\n"
	_, _, err := sip.Parse([]byte(wire), false)
	require.Error(t, err)
	var perr *sip.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, sip.Truncated, perr.Kind)
}

func TestParseMalformedStartLine(t *testing.T) {
	_, _, err := sip.Parse([]byte("garbage\r\n\r\n"), true)
	require.Error(t, err)
}

func TestParseUnterminatedHeader(t *testing.T) {
	_, _, err := sip.Parse([]byte("INVITE sip:bob@example.com SIP/2.0\r\nVia: x"), true)
	require.Error(t, err)
	var perr *sip.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, sip.UnterminatedHeader, perr.Kind)
}

func TestHeaderStoreCanonicalOrderAndRepeats(t *testing.T) {
	req := sip.NewRequest(sip.INVITE, sip.URI{User: "bob", Host: "example.com"})
	req.Headers().Add("Content-Type", "application/sdp")
	req.Headers().Add("Via", "SIP/2.0/UDP host1;branch=b1")
	req.Headers().Add("Via", "SIP/2.0/UDP host2;branch=b2")
	req.Headers().Add("Call-ID", "cid@host")
	req.Headers().Add("CSeq", "1 INVITE")
	req.SetBody([]byte("v=0"))

	wire := req.String()
	lines := strings.Split(wire, "\r\n")
	viaIdx1 := indexOfPrefix(lines, "Via: SIP/2.0/UDP host1")
	viaIdx2 := indexOfPrefix(lines, "Via: SIP/2.0/UDP host2")
	clIdx := indexOfPrefix(lines, "Content-Length:")
	ctIdx := indexOfPrefix(lines, "Content-Type:")

	require.GreaterOrEqual(t, viaIdx1, 0)
	require.GreaterOrEqual(t, viaIdx2, 0)
	assert.Less(t, viaIdx1, viaIdx2, "repeated Via headers must preserve arrival order as separate lines")
	assert.Less(t, ctIdx, clIdx, "Content-Length must be the last header emitted")
}

func indexOfPrefix(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}
