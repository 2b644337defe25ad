package transaction

import "github.com/oornnery/sipgox/sip"

// BuildAckNon2xx constructs the ACK for a non-2xx final response to an
// INVITE. Per SPEC_FULL §4.5/§6.4, this ACK reuses the INVITE's top-Via
// branch and CSeq number (method rewritten to ACK) because it belongs
// to the same transaction, not a new one. This is deliberately kept
// apart from the dialog layer's ACK-to-2xx builder, which runs as a
// fresh transaction with its own branch (R7).
func BuildAckNon2xx(invite *sip.Request, final *sip.Response) *sip.Request {
	ack := sip.NewRequest(sip.ACK, invite.RequestURI.Clone())
	ack.Raddr = invite.Raddr

	if via, ok := invite.Via(); ok {
		ack.Headers().Add("Via", via.String())
	}
	if from, ok := invite.From(); ok {
		ack.Headers().Add("From", from.String())
	}
	if to, ok := final.To(); ok {
		ack.Headers().Add("To", to.String())
	} else if to, ok := invite.To(); ok {
		ack.Headers().Add("To", to.String())
	}
	if cid, ok := invite.CallID(); ok {
		ack.Headers().Add("Call-ID", cid)
	}
	if cseq, ok := invite.CSeqHeader(); ok {
		ack.Headers().Add("CSeq", sip.CSeq{Seq: cseq.Seq, Method: sip.ACK}.String())
	}
	if mf, ok := invite.Headers().Get("Max-Forwards"); ok {
		ack.Headers().Add("Max-Forwards", mf)
	} else {
		ack.Headers().Add("Max-Forwards", "70")
	}
	ack.SetBody(nil)
	return ack
}
