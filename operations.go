package sipgox

import (
	"strconv"
	"time"

	"github.com/oornnery/sipgox/dialog"
	"github.com/oornnery/sipgox/digest"
	"github.com/oornnery/sipgox/events"
	"github.com/oornnery/sipgox/sip"
)

// Register sends a REGISTER for aor to registrar, reusing the
// persistent (Call-ID, From-tag, CSeq) identity of any prior
// registration for the same aor (RFC 3261 §10.2). expires=0
// unregisters and cancels auto-refresh.
func (c *Client) Register(aor, registrar sip.URI, expires int) (*sip.Response, error) {
	if expires < 0 {
		return nil, &BadArgument{Field: "expires"}
	}
	key := aor.String()

	c.mu.Lock()
	reg, ok := c.registrations[key]
	if !ok {
		reg = &registration{
			aor:       aor,
			registrar: registrar,
			callID:    sip.GenerateCallID(c.localHost),
			fromTag:   sip.GenerateTag(),
		}
		c.registrations[key] = reg
	}
	reg.registrar = registrar
	reg.cseq++
	seq := reg.cseq
	callID := reg.callID
	fromTag := reg.fromTag
	c.mu.Unlock()

	from := sip.Address{URI: aor, Params: sip.Params{{K: "tag", V: fromTag}}}
	to := sip.Address{URI: aor}
	req := c.newStandaloneRequest(sip.REGISTER, registrar, from, to, callID, seq, nil, nil)

	contact := c.contactFor(aor.User)
	contact.Params = sip.Params{{K: "expires", V: strconv.Itoa(expires)}}
	req.Headers().Add("Contact", contact.String())
	req.Headers().Add("Expires", strconv.Itoa(expires))

	res, err := c.roundTripWithAuth(req, c.peerFor(registrar))
	if err != nil {
		return nil, err
	}

	if res.IsSuccess() {
		granted := expires
		if v, ok := res.Headers().Get("Expires"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				granted = n
			}
		}
		if rc, ok := res.Contact(); ok {
			if v, ok := rc.Params.Get("expires"); ok {
				if n, err := strconv.Atoi(v); err == nil {
					granted = n
				}
			}
		}
		c.mu.Lock()
		reg.expires = granted
		if expires == 0 {
			delete(c.registrations, key)
			c.autoRefreshEnabled = false
		}
		c.mu.Unlock()
		if expires == 0 {
			c.scheduler.Cancel()
		}
	}
	return res, nil
}

// Unregister sends expires=0 for a previously registered aor, reusing
// the registrar recorded by the earlier Register call.
func (c *Client) Unregister(aor sip.URI) (*sip.Response, error) {
	c.mu.Lock()
	reg, ok := c.registrations[aor.String()]
	c.mu.Unlock()
	if !ok {
		return nil, &BadArgument{Field: "aor"}
	}
	return c.Register(reg.aor, reg.registrar, 0)
}

// EnableAutoRefresh arms the refresh scheduler to re-REGISTER aor on a
// recurring cadence. With interval nil, the cadence follows
// Guard/Floor off the last known server-granted expiration; with
// interval set, it fires at exactly that period instead.
func (c *Client) EnableAutoRefresh(aor sip.URI, interval *time.Duration) error {
	c.mu.Lock()
	reg, ok := c.registrations[aor.String()]
	if !ok {
		c.mu.Unlock()
		return &BadArgument{Field: "aor"}
	}
	c.autoRefreshEnabled = true
	c.mu.Unlock()

	c.armAutoRefresh(reg, interval)
	return nil
}

func (c *Client) armAutoRefresh(reg *registration, interval *time.Duration) {
	fire := func() {
		c.mu.Lock()
		enabled := c.autoRefreshEnabled
		c.mu.Unlock()
		if !enabled {
			return
		}
		res, err := c.Register(reg.aor, reg.registrar, reg.expires)
		if err != nil {
			c.log.Debug().Err(err).Msg("auto-refresh register failed")
			return
		}
		if res.IsSuccess() {
			c.armAutoRefresh(reg, interval)
		}
	}
	if interval != nil {
		c.scheduler.ScheduleAfter(*interval, fire)
		return
	}
	c.scheduler.Schedule(time.Duration(reg.expires)*time.Second, fire)
}

// DisableAutoRefresh stops any further scheduled re-registration
// without affecting the current registration's validity.
func (c *Client) DisableAutoRefresh() {
	c.mu.Lock()
	c.autoRefreshEnabled = false
	c.mu.Unlock()
	c.scheduler.Cancel()
}

// Invite places a call: sends an INVITE, tracks the resulting early
// dialog across 1xx-with-To-tag responses, confirms it on 2xx (or
// terminates the early dialog on a final failure), and returns the
// final response. The INVITE transaction auto-ACKs any non-2xx; the
// caller must call Ack for a 2xx (SPEC_FULL §4.6).
func (c *Client) Invite(to sip.URI, from *sip.Address, body []byte, extraHeaders map[string]string) (*sip.Response, error) {
	fromAddr := c.identity
	if from != nil {
		fromAddr = *from
	}
	fromAddr.Params = append(fromAddr.Params.Clone(), sip.Param{K: "tag", V: sip.GenerateTag()})
	toAddr := sip.Address{URI: to}

	req := c.newStandaloneRequest(sip.INVITE, to, fromAddr, toAddr, sip.GenerateCallID(c.localHost), 1, extraHeaders, body)
	if body != nil && !req.Headers().Has("Content-Type") {
		req.Headers().Add("Content-Type", "application/sdp")
	}
	req.Headers().Add("Contact", c.contactFor(fromAddr.URI.User).String())

	return c.inviteRoundTrip(req, c.peerFor(to))
}

func (c *Client) inviteRoundTrip(req *sip.Request, peer string) (*sip.Response, error) {
	if c.userAgent != "" && !req.Headers().Has("User-Agent") {
		req.Headers().Add("User-Agent", c.userAgent)
	}
	ctx := &events.RequestContext{DestPeer: peer, SentAt: time.Now()}
	signed, err := c.hooks.OnRequestRun(req, ctx)
	if err != nil {
		return nil, err
	}
	req = signed

	tx, err := c.txl.Send(req, peer)
	if err != nil {
		return nil, &TransportError{Kind: "send", Cause: err}
	}
	c.trackPending(tx, req)
	defer c.untrackPending(tx)

	var dlg *dialog.Dialog
	tx.OnProvisional(func(res *sip.Response) {
		res.Request = req
		if to, ok := res.To(); ok {
			if _, hasTag := to.Tag(); hasTag && dlg == nil {
				if d, err := dialog.NewEarly(req, res); err == nil {
					dlg = d
					c.dialogs.Put(d)
				}
			}
		}
		subCtx := *ctx
		subCtx.ReceivedAt = time.Now()
		if dlg != nil {
			subCtx.DialogID = dlg.ID
		}
		if _, herr := c.hooks.OnResponseRun(res, &subCtx); herr != nil {
			c.log.Debug().Err(herr).Msg("provisional hook failed")
		}
	})

	var final *sip.Response
	for res := range tx.Responses() {
		res.Request = req
		final = res
		break
	}
	if final == nil {
		return nil, c.terminalErr(tx, req)
	}

	switch {
	case final.IsSuccess():
		if dlg != nil {
			oldID := dlg.ID
			if err := dlg.Confirm(final); err == nil {
				c.dialogs.Rekey(oldID, dlg)
			}
		} else if d, err := dialog.NewConfirmed(req, final); err == nil {
			dlg = d
			c.dialogs.Put(d)
		}
	case dlg != nil:
		dlg.Terminate()
	}

	ctx.ReceivedAt = time.Now()
	if dlg != nil {
		ctx.DialogID = dlg.ID
	}
	if _, err := c.hooks.OnResponseRun(final, ctx); err != nil {
		return nil, err
	}
	return final, nil
}

// Ack confirms a 2xx final response to an INVITE. A non-2xx is ACKed
// automatically by the INVITE transaction and must not be passed here.
func (c *Client) Ack(final *sip.Response) error {
	if final == nil || !final.IsSuccess() {
		return &BadArgument{Field: "final_response"}
	}
	callID, fromTag, toTag, err := sip.DialogIDFromResponse(final)
	if err != nil {
		return &MalformedMessage{Kind: "ack: " + err.Error()}
	}
	dlg, ok := c.dialogs.Get(callID, fromTag, toTag)
	if !ok {
		return &NoDialog{CallID: callID}
	}
	ack := dlg.BuildAckFor2xx(c.tp.Network(), c.localHost, c.localPort)
	peer := c.peerFor(ack.RequestURI)
	if err := c.tp.Send(peer, []byte(ack.String())); err != nil {
		return &TransportError{Kind: "ack", Cause: err}
	}
	return nil
}

// Bye ends a confirmed dialog, identified either by the dialog's final
// response or by its dialog ID (sip.DialogID(callID, localTag,
// remoteTag)). Exactly one of response/dialogID should be non-zero.
func (c *Client) Bye(response *sip.Response, dialogID string) (*sip.Response, error) {
	var dlg *dialog.Dialog
	var ok bool
	switch {
	case response != nil:
		callID, fromTag, toTag, err := sip.DialogIDFromResponse(response)
		if err != nil {
			return nil, &MalformedMessage{Kind: "bye: " + err.Error()}
		}
		dlg, ok = c.dialogs.Get(callID, fromTag, toTag)
	case dialogID != "":
		dlg, ok = c.dialogs.GetByID(dialogID)
	default:
		return nil, &BadArgument{Field: "response/dialog_id"}
	}
	if !ok {
		return nil, &NoDialog{CallID: dialogID}
	}
	if dlg.State() != dialog.Confirmed {
		return nil, &NoDialog{CallID: dlg.CallID}
	}

	req := dlg.BuildRequest(sip.BYE, c.tp.Network(), c.localHost, c.localPort)
	res, err := c.roundTripWithAuth(req, c.peerFor(req.RequestURI))
	if err != nil {
		return nil, err
	}
	if res.IsSuccess() {
		dlg.Terminate()
		c.dialogs.Remove(dlg.ID)
	}
	return res, nil
}

// Cancel sends a CANCEL for a pending INVITE transaction named by the
// ID returned alongside Invite's in-flight bookkeeping (SPEC_FULL
// §4.5: only permitted once a provisional has been seen).
func (c *Client) Cancel(pendingInviteTxnID string) (*sip.Response, error) {
	c.mu.Lock()
	p, ok := c.pending[pendingInviteTxnID]
	c.mu.Unlock()
	if !ok {
		return nil, &BadArgument{Field: "pending_invite_transaction_id"}
	}
	cancelTx, err := c.txl.Cancel(p.tx, c.peerFor(p.invite.RequestURI))
	if err != nil {
		return nil, &TransportError{Kind: "cancel", Cause: err}
	}
	c.trackPending(cancelTx, cancelTx.Origin())
	defer c.untrackPending(cancelTx)

	var final *sip.Response
	for res := range cancelTx.Responses() {
		final = res
		break
	}
	if final == nil {
		return nil, c.terminalErr(cancelTx, cancelTx.Origin())
	}
	return final, nil
}

// Options pings uri with an OPTIONS request, outside any dialog.
func (c *Client) Options(uri sip.URI) (*sip.Response, error) {
	from := c.identity
	from.Params = append(from.Params.Clone(), sip.Param{K: "tag", V: sip.GenerateTag()})
	to := sip.Address{URI: uri}
	req := c.newStandaloneRequest(sip.OPTIONS, uri, from, to, sip.GenerateCallID(c.localHost), 1, nil, nil)
	return c.roundTripWithAuth(req, c.peerFor(uri))
}

// Message sends a pager-mode instant message (RFC 3428), outside any
// dialog.
func (c *Client) Message(to sip.URI, text string, contentType string) (*sip.Response, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	from := c.identity
	from.Params = append(from.Params.Clone(), sip.Param{K: "tag", V: sip.GenerateTag()})
	toAddr := sip.Address{URI: to}
	req := c.newStandaloneRequest(sip.MESSAGE, to, from, toAddr, sip.GenerateCallID(c.localHost), 1,
		map[string]string{"Content-Type": contentType}, []byte(text))
	return c.roundTripWithAuth(req, c.peerFor(to))
}

// RetryWithAuth retries the request that produced challengeResponse
// with the given credentials (or the client's configured resolver when
// credentials is nil), bypassing the one-retry attempt gate that
// roundTripWithAuth applies automatically (SPEC_FULL §4.10).
func (c *Client) RetryWithAuth(challengeResponse *sip.Response, credentials *digest.Credentials) (*sip.Response, error) {
	if challengeResponse == nil || challengeResponse.Request == nil {
		return nil, &BadArgument{Field: "challenge_response"}
	}
	if !isChallenge(challengeResponse.StatusCode) {
		return nil, &BadArgument{Field: "challenge_response.status"}
	}
	challenged, err := c.hooks.OnAuthChallengeRun(challengeResponse, &events.RequestContext{})
	if err != nil {
		return nil, err
	}
	retry, err := c.authCtrl.AuthenticateWith(challengeResponse.Request, challenged, credentials)
	if err != nil {
		return nil, &AuthFailed{Reason: err.Error()}
	}
	return c.roundTrip(retry, c.peerFor(retry.RequestURI))
}
