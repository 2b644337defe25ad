package sipgox_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oornnery/sipgox"
	"github.com/oornnery/sipgox/digest"
	"github.com/oornnery/sipgox/events"
	"github.com/oornnery/sipgox/sip"
)

func newTestClient(t *testing.T, tp *scriptedTransport, opts ...sipgox.Option) *sipgox.Client {
	t.Helper()
	c, err := sipgox.NewClient(tp, "127.0.0.1", 5061, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// responseWithToTag builds a response to req with an explicit To-tag,
// so repeated responses in one exchange (e.g. a 180 then a 200) can
// carry the same tag the way a real UAS would.
func responseWithToTag(req *sip.Request, code int, reason, toTag string, extra map[string]string, body []byte) *sip.Response {
	res := sip.NewResponseFromRequest(req, code, reason, body)
	to, _ := req.To()
	to.Params = append(to.Params.Clone(), sip.Param{K: "tag", V: toTag})
	res.Headers().Set("To", to.String())
	for k, v := range extra {
		res.Headers().Add(k, v)
	}
	return res
}

func sentEnvelopes(t *testing.T, tp *scriptedTransport) []*sip.Request {
	t.Helper()
	tp.mu.Lock()
	raws := append([][]byte(nil), tp.sentRaw...)
	tp.mu.Unlock()
	var out []*sip.Request
	for _, raw := range raws {
		req, _, err := sip.Parse(raw, true)
		require.NoError(t, err)
		out = append(out, req)
	}
	return out
}

// S1: Register+auth — a 401 challenge followed by a successful retry.
func TestRegisterChallengeAndRetry(t *testing.T) {
	tp := newScriptedTransport("UDP")
	registrar, err := sip.ParseURI("sip:127.0.0.1:5060")
	require.NoError(t, err)
	aor, err := sip.ParseURI("sip:1111@127.0.0.1")
	require.NoError(t, err)

	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		if req.Headers().Has("Authorization") {
			res := sip.NewResponseFromRequest(req, sip.StatusOK, "", nil)
			res.Headers().Add("Contact", "<sip:1111@127.0.0.1:5061>;expires=3599")
			return []scriptedResponse{{res: res}}
		}
		res := sip.NewResponseFromRequest(req, sip.StatusUnauthorized, "", nil)
		res.Headers().Add("WWW-Authenticate", `Digest realm="asterisk", nonce="NONCE1", algorithm=MD5, qop="auth"`)
		return []scriptedResponse{{res: res}}
	})

	c := newTestClient(t, tp, sipgox.WithStaticCredentials(digest.Credentials{Username: "1111", Password: "1111xxx"}))

	res, err := c.Register(aor, registrar, 3600)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sip.StatusOK, res.StatusCode)
	assert.Equal(t, 2, tp.sentCount(), "exactly two REGISTERs must be emitted")

	sent := sentEnvelopes(t, tp)
	require.Len(t, sent, 2)
	auth, ok := sent[1].Headers().Get("Authorization")
	require.True(t, ok, "retry must carry an Authorization header")
	assert.Contains(t, auth, `username="1111"`)
	assert.Contains(t, auth, `realm="asterisk"`)
	assert.Contains(t, auth, `nonce="NONCE1"`)
	assert.Contains(t, auth, "qop=auth")
	assert.Contains(t, auth, "nc=00000001")
}

// S4: auth loop guard — a second 401 (fresh nonce) must not trigger a
// third attempt; it is returned to the caller unmodified.
func TestRegisterAuthLoopGuardStopsAtOneRetry(t *testing.T) {
	tp := newScriptedTransport("UDP")
	registrar, err := sip.ParseURI("sip:127.0.0.1:5060")
	require.NoError(t, err)
	aor, err := sip.ParseURI("sip:1111@127.0.0.1")
	require.NoError(t, err)

	nonces := []string{"NONCE1", "NONCE2"}
	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		idx := tp.sentCount() - 1
		nonce := nonces[0]
		if idx < len(nonces) {
			nonce = nonces[idx]
		}
		res := sip.NewResponseFromRequest(req, sip.StatusUnauthorized, "", nil)
		res.Headers().Add("WWW-Authenticate", fmt.Sprintf(`Digest realm="asterisk", nonce=%q, algorithm=MD5, qop="auth"`, nonce))
		return []scriptedResponse{{res: res}}
	})

	c := newTestClient(t, tp, sipgox.WithStaticCredentials(digest.Credentials{Username: "1111", Password: "1111xxx"}))

	res, err := c.Register(aor, registrar, 3600)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sip.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, 2, tp.sentCount(), "exactly two REGISTER transactions, no third attempt")

	auth, ok := res.Headers().Get("WWW-Authenticate")
	require.True(t, ok)
	assert.Contains(t, auth, "NONCE2", "the second, unmodified 401 must reach the caller")
}

// S2: INVITE answered 100 then 404 — the transaction auto-ACKs the
// non-2xx using the INVITE's own branch and CSeq number.
func TestInviteNon2xxAutoAcks(t *testing.T) {
	tp := newScriptedTransport("UDP")
	to, err := sip.ParseURI("sip:bob@127.0.0.1")
	require.NoError(t, err)

	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		if req.Method != sip.INVITE {
			return nil
		}
		trying := sip.NewResponseFromRequest(req, sip.StatusTrying, "", nil)
		notFound := sip.NewResponseFromRequest(req, sip.StatusNotFound, "", nil)
		return []scriptedResponse{
			{res: trying},
			{res: notFound, after: 5 * time.Millisecond},
		}
	})

	c := newTestClient(t, tp)
	res, err := c.Invite(to, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, sip.StatusNotFound, res.StatusCode)

	sent := sentEnvelopes(t, tp)
	require.Len(t, sent, 2, "INVITE then its auto-generated ACK")
	invite, ack := sent[0], sent[1]
	require.Equal(t, sip.INVITE, invite.Method)
	require.Equal(t, sip.ACK, ack.Method)

	inviteVia, ok := invite.Via()
	require.True(t, ok)
	ackVia, ok := ack.Via()
	require.True(t, ok)
	inviteBranch, _ := inviteVia.Branch()
	ackBranch, _ := ackVia.Branch()
	assert.Equal(t, inviteBranch, ackBranch, "ACK to a non-2xx reuses the INVITE's Via branch")

	inviteCSeq, ok := invite.CSeqHeader()
	require.True(t, ok)
	ackCSeq, ok := ack.CSeqHeader()
	require.True(t, ok)
	assert.Equal(t, inviteCSeq.Seq, ackCSeq.Seq, "ACK reuses the INVITE's CSeq number")

	ackTo, ok := ack.To()
	require.True(t, ok)
	_, hasTag := ackTo.Tag()
	assert.True(t, hasTag, "ACK carries the To-tag from the 404")
}

// S3: INVITE / 200 / ACK / BYE — early dialog on 180, confirmed on 200,
// ACK as a fresh transaction/branch, BYE with CSeq = INVITE's + 1.
func TestInviteConfirmAckBye(t *testing.T) {
	tp := newScriptedTransport("UDP")
	to, err := sip.ParseURI("sip:bob@127.0.0.1")
	require.NoError(t, err)

	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		switch req.Method {
		case sip.INVITE:
			ringing := responseWithToTag(req, sip.StatusRinging, "", "t1", nil, nil)
			ok := responseWithToTag(req, sip.StatusOK, "", "t1",
				map[string]string{"Contact": "<sip:bob@127.0.0.1:5061>", "Content-Type": "application/sdp"},
				[]byte("v=0\r\n"))
			return []scriptedResponse{
				{res: ringing},
				{res: ok, after: 5 * time.Millisecond},
			}
		case sip.BYE:
			return []scriptedResponse{{res: sip.NewResponseFromRequest(req, sip.StatusOK, "", nil)}}
		default:
			return nil
		}
	})

	c := newTestClient(t, tp)
	final, err := c.Invite(to, nil, []byte("v=0\r\n"), nil)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, sip.StatusOK, final.StatusCode)

	inviteSent := sentEnvelopes(t, tp)
	require.Len(t, inviteSent, 1, "no ACK yet for a 2xx, the caller must send it")
	invite := inviteSent[0]
	inviteCSeq, _ := invite.CSeqHeader()
	inviteVia, _ := invite.Via()
	inviteBranch, _ := inviteVia.Branch()

	require.NoError(t, c.Ack(final))

	afterAck := sentEnvelopes(t, tp)
	require.Len(t, afterAck, 2)
	ack := afterAck[1]
	assert.Equal(t, sip.ACK, ack.Method)
	ackVia, _ := ack.Via()
	ackBranch, _ := ackVia.Branch()
	assert.NotEqual(t, inviteBranch, ackBranch, "ACK to a 2xx is its own transaction with a fresh branch")
	ackCSeq, _ := ack.CSeqHeader()
	assert.Equal(t, inviteCSeq.Seq, ackCSeq.Seq, "ACK to a 2xx still carries the INVITE's CSeq number")

	byeRes, err := c.Bye(final, "")
	require.NoError(t, err)
	assert.Equal(t, sip.StatusOK, byeRes.StatusCode)

	afterBye := sentEnvelopes(t, tp)
	require.Len(t, afterBye, 3)
	bye := afterBye[2]
	assert.Equal(t, sip.BYE, bye.Method)
	byeCSeq, _ := bye.CSeqHeader()
	assert.Equal(t, inviteCSeq.Seq+1, byeCSeq.Seq, "BYE's CSeq is the INVITE's + 1")
	byeVia, _ := bye.Via()
	byeBranch, _ := byeVia.Branch()
	assert.NotEqual(t, inviteBranch, byeBranch, "BYE uses a fresh branch")
}

// S5: auto-refresh cadence — enabling auto-refresh with an explicit
// interval re-fires REGISTER on that cadence until disabled.
func TestAutoRefreshFiresUntilDisabled(t *testing.T) {
	tp := newScriptedTransport("UDP")
	registrar, err := sip.ParseURI("sip:127.0.0.1:5060")
	require.NoError(t, err)
	aor, err := sip.ParseURI("sip:1111@127.0.0.1")
	require.NoError(t, err)

	fired := make(chan struct{}, 16)
	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		select {
		case fired <- struct{}{}:
		default:
		}
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "", nil)
		res.Headers().Add("Contact", "<sip:1111@127.0.0.1:5061>;expires=60")
		return []scriptedResponse{{res: res}}
	})

	c := newTestClient(t, tp)
	_, err = c.Register(aor, registrar, 60)
	require.NoError(t, err)
	<-fired // drain the initial Register's own delivery

	interval := 15 * time.Millisecond
	require.NoError(t, c.EnableAutoRefresh(aor, &interval))

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("expected auto-refresh REGISTER #%d within 1s", i+1)
		}
	}

	c.DisableAutoRefresh()
	select {
	case <-fired:
		t.Fatal("no further REGISTER expected after disable")
	case <-time.After(5 * interval):
	}
}

// S6: CANCEL timing — cancel() after a 100 Trying must produce a CANCEL
// transaction, and the INVITE terminates on the subsequent 487 with an
// auto-generated ACK.
func TestCancelAfterProvisionalTerminatesInviteWith487(t *testing.T) {
	tp := newScriptedTransport("UDP")
	to, err := sip.ParseURI("sip:bob@127.0.0.1")
	require.NoError(t, err)

	var inviteMu sync.Mutex
	var capturedInvite *sip.Request

	tp.setResponder(func(req *sip.Request) []scriptedResponse {
		switch req.Method {
		case sip.INVITE:
			return []scriptedResponse{{res: sip.NewResponseFromRequest(req, sip.StatusTrying, "", nil)}}
		case sip.CANCEL:
			results := []scriptedResponse{{res: sip.NewResponseFromRequest(req, sip.StatusOK, "", nil)}}
			inviteMu.Lock()
			invReq := capturedInvite
			inviteMu.Unlock()
			if invReq != nil {
				// The UAS answers the cancelled INVITE transaction with
				// 487, echoing the INVITE's own Via/CSeq, not the
				// CANCEL's.
				results = append(results, scriptedResponse{
					res:   sip.NewResponseFromRequest(invReq, sip.StatusRequestTerminated, "", nil),
					after: 2 * time.Millisecond,
				})
			}
			return results
		default:
			return nil
		}
	})

	var pendingID string
	idReady := make(chan struct{})
	hooks := events.Hooks{
		OnProvisional: func(res *sip.Response, _ *events.RequestContext) {
			inviteMu.Lock()
			capturedInvite = res.Request
			inviteMu.Unlock()

			// Reconstructs the opaque pending-INVITE transaction ID from
			// the provisional's own Via/CSeq, mirroring the client's
			// internal txnID encoding (branch|sent-by|method) documented
			// in client.go, since the facade does not otherwise expose
			// its pending-transaction table to callers.
			via, ok := res.Via()
			if !ok {
				return
			}
			branch, _ := via.Branch()
			pendingID = branch + "|" + via.SentBy() + "|INVITE"
			select {
			case idReady <- struct{}{}:
			default:
			}
		},
	}

	c := newTestClient(t, tp, sipgox.WithHooks(hooks))

	type result struct {
		res *sip.Response
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := c.Invite(to, nil, nil, nil)
		done <- result{res, err}
	}()

	select {
	case <-idReady:
	case <-time.After(time.Second):
		t.Fatal("expected a provisional response before cancel could run")
	}
	require.NotEmpty(t, pendingID)

	cancelRes, err := c.Cancel(pendingID)
	require.NoError(t, err)
	require.NotNil(t, cancelRes)
	assert.Equal(t, sip.StatusOK, cancelRes.StatusCode)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.NotNil(t, r.res)
		assert.Equal(t, sip.StatusRequestTerminated, r.res.StatusCode)
	case <-time.After(time.Second):
		t.Fatal("expected the INVITE to terminate with 487 after CANCEL")
	}

	sent := sentEnvelopes(t, tp)
	var sawCancel, sawAckFor487 bool
	for _, req := range sent {
		if req.Method == sip.CANCEL {
			sawCancel = true
		}
		if req.Method == sip.ACK {
			sawAckFor487 = true
		}
	}
	assert.True(t, sawCancel)
	assert.True(t, sawAckFor487, "the 487 must be auto-ACKed")
}
