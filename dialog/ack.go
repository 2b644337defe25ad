package dialog

import "github.com/oornnery/sipgox/sip"

// BuildAckFor2xx constructs the ACK that confirms a 2xx response to the
// INVITE. Per SPEC_FULL §4.6/R7 this is a dialog-layer operation, not a
// transaction-layer one: it reuses the INVITE's CSeq NUMBER (but with
// method ACK) while minting a brand new Via branch, because this ACK
// begins its own transaction scoped to the dialog rather than
// finishing the INVITE transaction's own. Compare
// transaction.BuildAckNon2xx, which instead reuses the INVITE's branch
// because that ACK belongs to the same transaction.
func (d *Dialog) BuildAckFor2xx(transport string, localHost string, localPort int) *sip.Request {
	ack := sip.NewRequest(sip.ACK, d.RemoteTarget.Clone())
	ack.Headers().Add("Via", sip.Via{
		Transport: transport,
		Host:      localHost,
		Port:      localPort,
		Params:    sip.Params{{K: "branch", V: sip.GenerateBranch()}},
	}.String())

	for _, r := range d.RouteSet() {
		ack.Headers().Add("Route", r.String())
	}

	from := sip.Address{URI: d.LocalURI.URI, Params: sip.Params{{K: "tag", V: d.LocalTag}}}
	to := sip.Address{URI: d.RemoteURI.URI, Params: sip.Params{{K: "tag", V: d.RemoteTag}}}
	ack.Headers().Add("From", from.String())
	ack.Headers().Add("To", to.String())
	ack.Headers().Add("Call-ID", d.CallID)

	invSeq, _ := d.InviteRequest.CSeqHeader()
	ack.Headers().Add("CSeq", sip.CSeq{Seq: invSeq.Seq, Method: sip.ACK}.String())
	ack.Headers().Add("Max-Forwards", "70")
	return ack
}
