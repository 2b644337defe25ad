package transaction

import "github.com/oornnery/sipgox/sip"

// BuildCancel constructs a CANCEL for an in-progress INVITE per
// SPEC_FULL §4.5: same Request-URI, To, From, Call-ID and top-Via
// (including branch) as the INVITE, CSeq number unchanged but method
// rewritten to CANCEL. CANCEL always runs as its own non-INVITE
// transaction.
func BuildCancel(invite *sip.Request) *sip.Request {
	cancel := sip.NewRequest(sip.CANCEL, invite.RequestURI.Clone())
	cancel.Raddr = invite.Raddr

	if via, ok := invite.Via(); ok {
		cancel.Headers().Add("Via", via.String())
	}
	if from, ok := invite.From(); ok {
		cancel.Headers().Add("From", from.String())
	}
	if to, ok := invite.To(); ok {
		cancel.Headers().Add("To", to.String())
	}
	if cid, ok := invite.CallID(); ok {
		cancel.Headers().Add("Call-ID", cid)
	}
	if cseq, ok := invite.CSeqHeader(); ok {
		cancel.Headers().Add("CSeq", sip.CSeq{Seq: cseq.Seq, Method: sip.CANCEL}.String())
	}
	if mf, ok := invite.Headers().Get("Max-Forwards"); ok {
		cancel.Headers().Add("Max-Forwards", mf)
	} else {
		cancel.Headers().Add("Max-Forwards", "70")
	}
	if ua, ok := invite.Headers().Get("User-Agent"); ok {
		cancel.Headers().Add("User-Agent", ua)
	}
	cancel.SetBody(nil)
	return cancel
}
