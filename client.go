package sipgox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oornnery/sipgox/auth"
	"github.com/oornnery/sipgox/dialog"
	"github.com/oornnery/sipgox/events"
	"github.com/oornnery/sipgox/refresh"
	"github.com/oornnery/sipgox/sip"
	"github.com/oornnery/sipgox/transaction"
	"github.com/oornnery/sipgox/transport"
)

// Client is the synchronous SIP UAC facade of SPEC_FULL §4.10: the
// teacher's UserAgent/Client/DialogClient/DialogClientSession
// composition collapsed into one instance-owned type (R1 — no global
// state, no package-level logger or registry).
type Client struct {
	log zerolog.Logger

	tp  transport.Transport
	txl *transaction.Layer

	dialogs      *dialog.Table
	authCtrl     *auth.Controller
	authResolver auth.Resolver
	scheduler    *refresh.Scheduler
	hooks        events.Hooks

	userAgent    string
	preferSHA256 bool
	identity     sip.Address

	localHost string
	localPort int

	mu                 sync.Mutex
	closed             bool
	pending            map[string]*pendingInvite
	registrations      map[string]*registration
	autoRefreshEnabled bool
}

// pendingInvite tracks a live INVITE transaction so Cancel/Close can
// reach it by the public transaction ID returned alongside responses.
type pendingInvite struct {
	tx     *transaction.ClientTx
	invite *sip.Request
}

// registration holds the persistent (Call-ID, From-tag, CSeq) identity
// of one address-of-record's registration, refreshed in place across
// calls to Register and the auto-refresh scheduler (RFC 3261 §10.2).
type registration struct {
	aor       sip.URI
	registrar sip.URI
	callID    string
	fromTag   string
	cseq      uint32
	expires   int
}

// NewClient builds a facade bound to an already-open transport.
// localHost/localPort name the address this client advertises in Via
// and Contact headers; when empty they are derived from
// tp.LocalAddress().
func NewClient(tp transport.Transport, localHost string, localPort int, opts ...Option) (*Client, error) {
	if tp == nil {
		return nil, &BadArgument{Field: "transport"}
	}
	if localHost == "" || localPort == 0 {
		addr, err := sip.AddrFromString(tp.LocalAddress())
		if err != nil {
			return nil, &TransportError{Kind: "local-address", Cause: err}
		}
		if localHost == "" {
			localHost = addr.Hostname
		}
		if localPort == 0 {
			localPort = addr.Port
		}
	}

	c := &Client{
		log:           zerolog.Nop(),
		tp:            tp,
		dialogs:       dialog.NewTable(),
		localHost:     localHost,
		localPort:     localPort,
		pending:       map[string]*pendingInvite{},
		registrations: map[string]*registration{},
		preferSHA256:  true,
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	c.log = c.log.With().Str("component", "client").Logger()
	c.txl = transaction.NewLayer(tp, c.log)
	c.scheduler = refresh.NewScheduler(c.log)
	c.authCtrl = auth.NewController(c.authResolver, c.preferSHA256, c.log)
	return c, nil
}

// freshVia builds a new top Via hop for a standalone (non-dialog)
// request, minting a fresh branch per send (SPEC_FULL §6.1).
func (c *Client) freshVia() sip.Via {
	return sip.Via{
		Transport: c.tp.Network(),
		Host:      c.localHost,
		Port:      c.localPort,
		Params:    sip.Params{{K: "branch", V: sip.GenerateBranch()}},
	}
}

// contactFor returns the Contact header value this client advertises
// when identifying itself as user.
func (c *Client) contactFor(user string) sip.Address {
	return sip.Address{URI: sip.URI{User: user, Host: c.localHost, Port: c.localPort}}
}

// peerFor resolves the transport-level destination for a Request-URI,
// falling back to the transport's default port when the URI carries
// none.
func (c *Client) peerFor(uri sip.URI) string {
	port := uri.Port
	if port == 0 {
		port = sip.DefaultPort(c.tp.Network())
	}
	return fmt.Sprintf("%s:%d", sip.NormalizeHost(uri.Host), port)
}

// newStandaloneRequest builds a request outside any dialog: REGISTER,
// the initial INVITE, OPTIONS, MESSAGE.
func (c *Client) newStandaloneRequest(method sip.RequestMethod, requestURI sip.URI, from, to sip.Address, callID string, cseq uint32, extraHeaders map[string]string, body []byte) *sip.Request {
	req := sip.NewRequest(method, requestURI)
	req.Headers().Add("Via", c.freshVia().String())
	req.Headers().Add("Max-Forwards", "70")
	req.Headers().Add("From", from.String())
	req.Headers().Add("To", to.String())
	req.Headers().Add("Call-ID", callID)
	req.Headers().Add("CSeq", sip.CSeq{Seq: cseq, Method: method}.String())
	for k, v := range extraHeaders {
		req.Headers().Add(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}
	return req
}

// txnID renders a transaction's matching key as the public
// pending-INVITE identifier handed back to callers (SPEC_FULL §4.10
// cancel(pending_invite_transaction_id)).
func txnID(tx *transaction.ClientTx) string {
	k := tx.Key()
	return k.Branch + "|" + k.SentBy + "|" + k.Method.String()
}

func (c *Client) trackPending(tx *transaction.ClientTx, req *sip.Request) {
	id := txnID(tx)
	c.mu.Lock()
	c.pending[id] = &pendingInvite{tx: tx, invite: req}
	c.mu.Unlock()
}

func (c *Client) untrackPending(tx *transaction.ClientTx) {
	id := txnID(tx)
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func timerNameFor(req *sip.Request) string {
	if req.IsInvite() {
		return "Timer B"
	}
	return "Timer F"
}

func isChallenge(code int) bool {
	return code == sip.StatusUnauthorized || code == sip.StatusProxyAuthRequired
}

// roundTrip sends req over peer through the transaction layer, running
// the pre-send and post-receive hooks, and returns the final response.
func (c *Client) roundTrip(req *sip.Request, peer string) (*sip.Response, error) {
	if c.userAgent != "" && !req.Headers().Has("User-Agent") {
		req.Headers().Add("User-Agent", c.userAgent)
	}
	ctx := &events.RequestContext{DestPeer: peer, SentAt: time.Now()}
	if via, ok := req.Via(); ok {
		if branch, ok := via.Branch(); ok {
			ctx.TxnKey = branch
		}
	}
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

	var final *sip.Response
	for res := range tx.Responses() {
		res.Request = req
		ctx.ReceivedAt = time.Now()
		if res.IsProvisional() {
			if _, herr := c.hooks.OnResponseRun(res, ctx); herr != nil {
				c.log.Debug().Err(herr).Msg("provisional hook failed")
			}
			continue
		}
		final = res
		break
	}
	if final == nil {
		return nil, c.terminalErr(tx, req)
	}
	if _, err := c.hooks.OnResponseRun(final, ctx); err != nil {
		return nil, err
	}
	return final, nil
}

func (c *Client) terminalErr(tx *transaction.ClientTx, req *sip.Request) error {
	err := tx.Err()
	switch {
	case errors.Is(err, transaction.ErrTimeout):
		return &TransactionTimedOut{TxnID: txnID(tx), Timer: timerNameFor(req)}
	case errors.Is(err, transaction.ErrTerminated):
		return &TransportError{Kind: "terminated", Cause: err}
	case err != nil:
		return &TransportError{Kind: "transaction", Cause: err}
	default:
		return &TransportError{Kind: "transaction", Cause: transaction.ErrTerminated}
	}
}

// roundTripWithAuth sends req and, if challenged, retries exactly once
// with the resolved credentials (SPEC_FULL §4.7 step 5).
func (c *Client) roundTripWithAuth(req *sip.Request, peer string) (*sip.Response, error) {
	res, err := c.roundTrip(req, peer)
	if err != nil {
		return nil, err
	}
	if !isChallenge(res.StatusCode) {
		return res, nil
	}
	challenged, err := c.hooks.OnAuthChallengeRun(res, &events.RequestContext{DestPeer: peer})
	if err != nil {
		return nil, err
	}
	retry, err := c.authCtrl.Authenticate(req, challenged, 0)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredentials) || errors.Is(err, auth.ErrNoChallenge) {
			return nil, &AuthFailed{Reason: err.Error()}
		}
		return nil, err
	}
	return c.roundTrip(retry, peer)
}

// Close tears the facade down in the order SPEC_FULL §5 requires:
// scheduler, then in-flight transactions (CANCEL for pending INVITEs,
// BYE for confirmed dialogs, best-effort), then dialogs, then
// transport. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := make([]*pendingInvite, 0, len(c.pending))
	for _, p := range c.pending {
		pending = append(pending, p)
	}
	c.pending = map[string]*pendingInvite{}
	c.mu.Unlock()

	c.scheduler.Close()

	for _, p := range pending {
		if p.invite.IsInvite() && p.tx.CanCancel() {
			peer := c.peerFor(p.invite.RequestURI)
			if _, err := c.txl.Cancel(p.tx, peer); err != nil {
				c.log.Debug().Err(err).Msg("best-effort cancel on close failed")
			}
			continue
		}
		p.tx.Terminate()
	}

	for _, d := range c.dialogs.All() {
		if d.State() != dialog.Confirmed {
			continue
		}
		req := d.BuildRequest(sip.BYE, c.tp.Network(), c.localHost, c.localPort)
		peer := c.peerFor(req.RequestURI)
		if _, err := c.roundTrip(req, peer); err != nil {
			c.log.Debug().Err(err).Msg("best-effort bye on close failed")
		}
		d.Terminate()
	}

	c.txl.Close()
	return c.tp.Close()
}
