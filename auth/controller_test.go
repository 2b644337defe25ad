package auth_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oornnery/sipgox/auth"
	"github.com/oornnery/sipgox/digest"
	"github.com/oornnery/sipgox/sip"
)

func newRegister(t *testing.T) *sip.Request {
	t.Helper()
	uri, err := sip.ParseURI("sip:registrar.example.com")
	require.NoError(t, err)
	req := sip.NewRequest(sip.REGISTER, uri)
	req.Headers().Add("Via", "SIP/2.0/UDP 127.0.0.1:5060;branch="+sip.GenerateBranch())
	req.Headers().Add("From", `<sip:alice@example.com>;tag=`+sip.GenerateTag())
	req.Headers().Add("To", "<sip:alice@example.com>")
	req.Headers().Add("Call-ID", sip.GenerateCallID("example.com"))
	req.Headers().Add("CSeq", "1 REGISTER")
	return req
}

func unauthorized(t *testing.T, req *sip.Request, algorithm string) *sip.Response {
	t.Helper()
	res := sip.NewResponseFromRequest(req, sip.StatusUnauthorized, "Unauthorized", nil)
	value := `Digest realm="example.com", nonce="abc123", algorithm=` + algorithm + `, qop="auth"`
	res.Headers().Add("WWW-Authenticate", value)
	return res
}

func TestAuthenticateBuildsRetryWithIncrementedCSeqAndFreshBranch(t *testing.T) {
	resolver := auth.Resolver{ClientLevel: func(realm string) (digest.Credentials, bool) {
		return digest.Credentials{Username: "alice", Password: "secret"}, true
	}}
	ctrl := auth.NewController(resolver, true, zerolog.Nop())

	req := newRegister(t)
	res := unauthorized(t, req, digest.MD5)

	retry, err := ctrl.Authenticate(req, res, 0)
	require.NoError(t, err)

	origCSeq, _ := req.CSeqHeader()
	retryCSeq, _ := retry.CSeqHeader()
	assert.Equal(t, origCSeq.Seq+1, retryCSeq.Seq)

	origVia, _ := req.Via()
	retryVia, _ := retry.Via()
	assert.NotEqual(t, origVia.String(), retryVia.String())

	authHeader, ok := retry.Headers().Get("Authorization")
	require.True(t, ok)
	assert.Contains(t, authHeader, `username="alice"`)
	assert.Contains(t, authHeader, `realm="example.com"`)
}

func TestAuthenticatePrefersSHA256WhenConfigured(t *testing.T) {
	resolver := auth.Resolver{ClientLevel: func(realm string) (digest.Credentials, bool) {
		return digest.Credentials{Username: "alice", Password: "secret"}, true
	}}
	ctrl := auth.NewController(resolver, true, zerolog.Nop())

	req := newRegister(t)
	res := sip.NewResponseFromRequest(req, sip.StatusUnauthorized, "Unauthorized", nil)
	res.Headers().Add("WWW-Authenticate", `Digest realm="example.com", nonce="n1", algorithm=MD5`)
	res.Headers().Add("WWW-Authenticate", `Digest realm="example.com", nonce="n2", algorithm=SHA-256`)

	retry, err := ctrl.Authenticate(req, res, 0)
	require.NoError(t, err)
	authHeader, _ := retry.Headers().Get("Authorization")
	assert.Contains(t, authHeader, "algorithm=SHA-256")
	assert.Contains(t, authHeader, `nonce="n2"`)
}

func TestAuthenticateDoesNotRetryTwice(t *testing.T) {
	resolver := auth.Resolver{ClientLevel: func(realm string) (digest.Credentials, bool) {
		return digest.Credentials{Username: "alice", Password: "secret"}, true
	}}
	ctrl := auth.NewController(resolver, true, zerolog.Nop())

	req := newRegister(t)
	res := unauthorized(t, req, digest.MD5)

	_, err := ctrl.Authenticate(req, res, 1)
	assert.ErrorIs(t, err, auth.ErrRetryExhausted)
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	ctrl := auth.NewController(auth.Resolver{}, true, zerolog.Nop())
	req := newRegister(t)
	res := unauthorized(t, req, digest.MD5)

	_, err := ctrl.Authenticate(req, res, 0)
	assert.ErrorIs(t, err, auth.ErrNoCredentials)
}

func TestResolverPrecedence(t *testing.T) {
	var calls []string
	r := auth.Resolver{
		PerCall: func(realm string) (digest.Credentials, bool) {
			calls = append(calls, "per-call")
			return digest.Credentials{Username: "per-call"}, true
		},
		ClientLevel: func(realm string) (digest.Credentials, bool) {
			calls = append(calls, "client-level")
			return digest.Credentials{Username: "client-level"}, true
		},
	}
	cred, ok := r.Resolve("example.com")
	require.True(t, ok)
	assert.Equal(t, "per-call", cred.Username)
	assert.Equal(t, []string{"per-call"}, calls, "client-level must not be consulted once per-call answers")
}
